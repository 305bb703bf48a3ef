package main

import (
	"github.com/sirupsen/logrus"
)

// log is the CLI's own structured logger, deliberately distinct from the
// skycoin logger pkg/configgen uses internally: command-line tools in this
// codebase report progress to the operator via logrus, while library
// packages log through the host's logging facade.
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
