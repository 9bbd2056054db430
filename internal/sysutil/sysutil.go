// Package sysutil holds small process-level helpers: logger bootstrap and
// log-level plumbing shared by the entrypoint and tests.
package sysutil

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// InitLogger sets the global level and returns the process logger, pretty
// console output when asked for (dev), JSON otherwise. The returned logger
// also replaces the zerolog global so package-level log calls agree with it.
func InitLogger(level string, pretty bool) zerolog.Logger {
	SetLogLevel(level)
	var lg zerolog.Logger
	if pretty {
		lg = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
			With().Timestamp().Logger()
	} else {
		lg = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = lg
	return lg
}
