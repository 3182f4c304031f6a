package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesDBPathFromEnv(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memories.db")
	t.Setenv("CLAUDE_MEMORY_DB", dbPath)
	t.Setenv("CORTEX_PROJECT", "my-proj")
	t.Setenv("CORTEX_HARD_CAP_MB", "200")
	t.Setenv("CORTEX_WARN_CAP_MB", "100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.DBPath)
	assert.Equal(t, "my-proj", cfg.Project)
	assert.EqualValues(t, 200*1024*1024, cfg.HardCapBytes)
	assert.EqualValues(t, 100*1024*1024, cfg.WarnCapBytes)
}

func TestLoadDefaultsHTTPAddr(t *testing.T) {
	t.Setenv("CLAUDE_MEMORY_DB", filepath.Join(t.TempDir(), "memories.db"))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8181", cfg.HTTPAddr)
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
