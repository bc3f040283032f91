// Package logging configures the global zerolog logger used by every webscope
// component.
package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	mu sync.Mutex
	// logWriter overrides the destination chosen from Options when set.
	logWriter io.Writer
)

func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	log.Logger = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
}

// Options selects the level, encoding and destination of log output.
type Options struct {
	Level  string
	Format string
	File   string
}

// Configure installs the global logger described by opts. When opts.File is
// set the returned closer releases it; otherwise the closer is a no-op.
func Configure(opts Options) (io.Closer, error) {
	level := ParseLevel(opts.Level)

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	mu.Lock()
	if logWriter != nil {
		out = logWriter
	}
	mu.Unlock()

	var w io.Writer
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		w = consoleWriter(out)
		if opts.File != "" {
			w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
		}
	case FormatJSON:
		w = out
	default:
		_ = closer.Close()
		return nil, fmt.Errorf("unsupported log format %q (want text or json)", opts.Format)
	}

	zerolog.SetGlobalLevel(level)
	logCtx := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logCtx = logCtx.Caller()
	}
	log.Logger = logCtx.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	// Route stray stdlib log output through zerolog.
	stdLog.SetFlags(0)
	stdLog.SetOutput(log.Logger.With().Str("component", "stdlog").Logger())

	return closer, nil
}

// ParseLevel converts a level name to a zerolog level. Empty or invalid input
// falls back to error.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.ErrorLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		log.Error().Str("logLevel", s).Msg("Invalid log level provided. Defaulting to error level.")
		return zerolog.ErrorLevel
	}
	return level
}

// SetLogWriter redirects log output regardless of Options. Passing nil restores
// the default destination. Tests use it to capture output.
func SetLogWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logWriter = w
}

// NewLogger returns a logger for component on the configured global output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
