// Package logger builds the process-wide zerolog logger.  Components receive
// the logger explicitly; nothing in the tree reads a global logger except
// main before configuration has loaded.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the given level.  format "console"
// selects the human readable writer used in development.
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "evms").Logger()
}

// Nop is handy for tests.
func Nop() zerolog.Logger { return zerolog.Nop() }
