// Package trace provides lightweight call-entry/exit logging helpers used
// throughout the router and link-negotiation hot paths.
package trace

import (
	"fmt"
	"runtime"
)

// GetCaller returns "file:line" of the call to GetCaller itself, i.e. the
// line inside the function that invoked GetCaller.
func GetCaller() string {
	return GetCallerN(2)
}

// GetCallerN returns "file:line" of the nth frame up the stack, where
// skip=1 is the caller of GetCallerN itself.
func GetCallerN(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Trace formats a short "tag @ file:line" string for entry/exit log lines.
func Trace(tag string) string {
	return fmt.Sprintf("%s @ %s", tag, GetCallerN(3))
}
