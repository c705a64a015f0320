// Package logging provides application-wide logging configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var debugEnabled bool

// Init initializes the global logger. Logs always go to stderr so they never
// mix with the result channel.
func Init(debug bool) {
	initWithWriter(os.Stderr, debug)
}

func initWithWriter(w io.Writer, debug bool) {
	debugEnabled = debug
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	})
}

// DebugEnabled reports whether debug logging is enabled.
func DebugEnabled() bool {
	return debugEnabled
}

// Component returns a sub-logger for a noisy component with its own minimum
// level, e.g. "error" for the agent runtime. An empty level inherits the global one.
func Component(name, level string) (zerolog.Logger, error) {
	l := log.Logger.With().Str("component", name).Logger()
	if strings.TrimSpace(level) == "" {
		return l, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return l, fmt.Errorf("parse %s log level: %w", name, err)
	}
	if debugEnabled && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	return l.Level(lvl), nil
}
