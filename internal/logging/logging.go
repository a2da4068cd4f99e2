// Package logging builds the logrus loggers used across qsoul.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"

	timestampFormat = "2006-01-02 15:04:05"
)

type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// New returns a logger writing to opts.Out (stderr when nil). The auto format
// picks coloured text on a terminal and JSON everywhere else.
func New(opts Options) (*logrus.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatAuto:
		if isTerminal(out) {
			logger.SetFormatter(textFormatter(true))
		} else {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
	case FormatText:
		logger.SetFormatter(textFormatter(isTerminal(out)))
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	level := logrus.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func textFormatter(colors bool) *logrus.TextFormatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		ForceColors:     colors,
		DisableColors:   !colors,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
