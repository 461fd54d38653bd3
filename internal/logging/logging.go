// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FormatConsole writes human readable lines
	FormatConsole = "console"
	// FormatJSON writes one JSON object per line
	FormatJSON = "json"
)

// Config selects the level, format and destination of logs
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New returns a logger for cfg. Empty fields default to info, console and stderr.
func New(cfg Config) (zerolog.Logger, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var w io.Writer
	switch strings.ToLower(cfg.Format) {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.TimeOnly}
	case FormatJSON:
		w = cfg.Output
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (want %s or %s)", cfg.Format, FormatConsole, FormatJSON)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
