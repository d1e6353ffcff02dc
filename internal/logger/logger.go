// Package logger builds the zerolog logger used by binaries.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stdout at level ("trace" to "error").
// pretty selects human readable console output instead of JSON lines.
func New(level string, pretty bool) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, pretty bool) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}

	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
