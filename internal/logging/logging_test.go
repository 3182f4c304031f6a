package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentTagsSubLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	sub := Component(base, "search")
	sub.Info().Msg("hello")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "search", payload["component"])
	assert.Equal(t, "hello", payload["message"])
}

func TestNewRespectsJSONEnv(t *testing.T) {
	t.Setenv("CORTEX_LOG_JSON", "1")
	logger := New()
	assert.NotEqual(t, zerolog.Disabled, logger.GetLevel())
}
