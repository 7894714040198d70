package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. Development gets a console writer, every
// other environment emits JSON lines.
func New(environment, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if strings.EqualFold(environment, "development") {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(lvl).With().Timestamp().Str("service", "contractor-ledger").Logger()
}
