// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "options-trader", "logs", "engine.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithAutomation adds automation context to the logger.
func WithAutomation(logger zerolog.Logger, automationID, symbol string) zerolog.Logger {
	return logger.With().Str("automation_id", automationID).Str("symbol", symbol).Logger()
}

// WithCycle adds a cycle sequence number to the logger.
func WithCycle(logger zerolog.Logger, cycle uint64) zerolog.Logger {
	return logger.With().Uint64("cycle", cycle).Logger()
}

// LogTrade logs a fill event.
func LogTrade(logger zerolog.Logger, symbol, action string, qty int, price float64, paper bool) {
	logger.Info().
		Str("event", "trade").
		Str("symbol", symbol).
		Str("action", action).
		Int("quantity", qty).
		Float64("price", price).
		Bool("paper", paper).
		Msg("Trade executed")
}

// LogSignal logs a generated signal.
func LogSignal(logger zerolog.Logger, symbol, direction string, confidence float64) {
	logger.Debug().
		Str("event", "signal").
		Str("symbol", symbol).
		Str("direction", direction).
		Float64("confidence", confidence).
		Msg("Signal generated")
}
