// Package logger builds the zerolog.Logger every command and internal
// package logs through, so ingestion runs and backtests both produce
// structured, greppable output instead of ad hoc fmt.Println calls.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console-friendly output instead of JSON lines
}

// New creates a structured logger per cfg.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Logger()
}

// SetGlobalLogger points the package-level log.Logger at l, so library
// code that logs via the global logger (rather than a threaded
// zerolog.Logger) picks up the same configuration.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
