// Package log configures the process-wide zerolog logger.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Setup configures the global logger. Components log through
// github.com/rs/zerolog/log directly.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	zlog.Logger = logger.Level(lvl).With().Timestamp().Logger()

	if err != nil {
		zlog.Warn().Str("configured_level", level).Msg("invalid LOG_LEVEL, defaulting to info")
	}
}
