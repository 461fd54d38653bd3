package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json_output", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Level: "debug", Format: "json", Output: &buf})
		require.NoError(t, err)

		log.Debug().Str("component", "broker").Msg("connected")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "debug", entry["level"])
		assert.Equal(t, "broker", entry["component"])
		assert.Equal(t, "connected", entry["message"])
		assert.Contains(t, entry, "time")
	})

	t.Run("level_filters", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Level: "WARN", Format: "json", Output: &buf})
		require.NoError(t, err)

		log.Info().Msg("hidden")
		assert.Zero(t, buf.Len())
		assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
	})

	t.Run("console_default", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Config{Output: &buf})
		require.NoError(t, err)

		log.Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
	})

	t.Run("invalid_values", func(t *testing.T) {
		_, err := New(Config{Level: "loud"})
		assert.Error(t, err)

		_, err = New(Config{Format: "xml"})
		assert.Error(t, err)
	})
}
