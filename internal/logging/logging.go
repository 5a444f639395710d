// Package logging builds the diagnostic logger shared by every command.
// Diagnostics go to stderr so stdout stays reserved for command output.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Options selects the level and format of the logger.
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// New returns a logger for opts. Unknown levels fall back to warn.
func New(opts Options) *log.Logger {
	logger := log.New()

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.WarnLevel
	}
	logger.SetLevel(level)

	if opts.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
		})
	}
	return logger
}

// Discard returns a logger that drops everything. Used when a caller passes
// no logger.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
