package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/trilix-oauth/internal/config"
)

func TestNew_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &config.Config{ServiceName: "trilix-oauth", LogLevel: "info"})
	logger.Info().Str("client_id", "c1").Msg("client registered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trilix-oauth", entry["service"])
	assert.Equal(t, "c1", entry["client_id"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := New(&bytes.Buffer{}, &config.Config{LogLevel: tt.level})
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &config.Config{LogLevel: "warn"})
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
}
