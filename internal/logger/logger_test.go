package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info().Msg("dropped")
	log.Warn().Str("key", "k").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "k", line["key"])
	assert.Contains(t, line, "time")
}

func TestNew_UnknownLevelIsInfo(t *testing.T) {
	for _, level := range []string{"", "loud"} {
		log := NewWithWriter(&bytes.Buffer{}, level, "json")
		assert.Equal(t, zerolog.InfoLevel, log.GetLevel(), "level %q", level)
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "console").Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNew_AutoOnBufferIsJSON(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "auto").Info().Msg("hello")
	assert.Contains(t, buf.String(), `"message":"hello"`)
}
