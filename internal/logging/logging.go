// Package logging provides the process-wide zerolog logger and the
// component/agent/workload scoped child loggers used throughout the
// server, agent and CLI.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once via Init.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the given component
// name, e.g. "dispatcher" or "runtimemanager".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithAgent returns a child logger tagged with the given agent name.
func WithAgent(agentName string) zerolog.Logger {
	return Logger.With().Str("agent", agentName).Logger()
}

// WithWorkload returns a child logger tagged with the given workload
// instance name.
func WithWorkload(instanceName string) zerolog.Logger {
	return Logger.With().Str("workload", instanceName).Logger()
}

func init() {
	// Sensible default before Init is called explicitly by cmd/*, so
	// package-level code that logs during tests or early init doesn't
	// panic on a zero-value Logger.
	Init(Config{Level: InfoLevel})
}
