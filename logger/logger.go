// Package logger wraps zerolog.Logger with the constructors the service uses.
//
// Logger embeds zerolog.Logger, so Debug, Info, Warn, Error and friends are
// available directly. Pass *Logger by pointer; tests use Nop.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// NewLogger builds a JSON logger writing to stdout with a "role" field and a
// timestamp on every entry. level is a zerolog level name; unknown names fall
// back to info.
func NewLogger(role, level string) *Logger {
	return NewWithWriter(os.Stdout, role, level)
}

// NewWithWriter is NewLogger with a caller supplied destination.
func NewWithWriter(w io.Writer, role, level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(w).Level(lvl).With().
		Str("role", role).
		Timestamp().
		Logger()
	return &Logger{l}
}

// Nop returns a *Logger that discards everything.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With().Str("component", name).Logger()}
}

// FromContext returns the logger attached to ctx with WithContext, or a
// disabled logger if there is none. It never returns nil.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}
