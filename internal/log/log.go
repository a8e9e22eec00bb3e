// Package log provides the wallet's zerolog loggers. Every subsystem logs
// through a component logger; wallet-scoped code adds the wallet name.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers derive from it.
var Logger zerolog.Logger

// Component loggers. They are rebuilt by Init.
var (
	Wallet    zerolog.Logger
	Sync      zerolog.Logger
	RateLimit zerolog.Logger
	Ledger    zerolog.Logger
	Storage   zerolog.Logger
	CLI       zerolog.Logger
)

const consoleTimeFormat = "15:04:05"

func init() {
	// stderr keeps command output on stdout machine-readable.
	Logger = NewConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Init replaces the root logger. Console output on stderr is colored unless
// jsonOutput is set. A non-empty file additionally receives JSON lines.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stderr
	if !jsonOutput {
		console = consoleWriter(os.Stderr)
	}

	out := console
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(console, f)
	}

	Logger = newLogger(out, level)
	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger creates a JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

// parseLevel maps a level name to a zerolog level. Unknown names mean info.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func initComponentLoggers() {
	Wallet = WithComponent("wallet")
	Sync = WithComponent("sync")
	RateLimit = WithComponent("ratelimit")
	Ledger = WithComponent("ledger")
	Storage = WithComponent("storage")
	CLI = WithComponent("cli")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithWallet returns a component logger tagged with a wallet name.
func WithWallet(component zerolog.Logger, name string) zerolog.Logger {
	return component.With().Str("wallet", name).Logger()
}

// Timed logs the duration of an operation at debug level when the
// returned func is called.
//
//	defer log.Timed(logger, "sync")()
func Timed(logger zerolog.Logger, op string) func() {
	start := time.Now()
	return func() {
		logger.Debug().Str("operation", op).Dur("duration", time.Since(start)).Msg("Timed")
	}
}
