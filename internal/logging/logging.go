// Package logging configures the process-wide logrus logger. Every package logs
// through an entry tagged with its component name.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup sets the level ("debug", "info", "warn", "error") and format ("text" or
// "json") of the standard logger.
func Setup(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)

	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log format %q: want text or json", format)
	}
	return nil
}

// For returns an entry for the named component.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Discard returns an entry that writes nowhere, for tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
