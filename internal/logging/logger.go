package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/providentiaww/trilix-oauth/internal/config"
)

// NewLogger creates a zerolog.Logger writing JSON to stdout, tagged with
// the service name and filtered at the configured level.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return New(os.Stdout, cfg)
}

func New(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
