package main

import "github.com/sirupsen/logrus"

// log is the CLI's own structured logger; the library packages this
// harness drives (pkg/raceconfig, pkg/persona) log nothing themselves, so
// this is the only logger in the binary.
var log = logrus.New()

var logLevel string

func initLogging() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}
