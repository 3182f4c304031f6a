// Package config loads process configuration from the environment,
// optionally from a .env file during local development.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultDBDir     = ".claude-cortex"
	legacyDBDir      = ".claude-memory"
	dbFileName       = "memories.db"
	defaultHardCapMB = 100
	defaultWarnMB    = 50
)

// Config is the process-wide configuration resolved from the
// environment (and, if present, a .env file) at startup.
type Config struct {
	Project      string
	DBPath       string
	HTTPAddr     string
	HardCapBytes int64
	WarnCapBytes int64
}

// Load reads .env (if present) then resolves Config from environment
// variables, falling back to computed defaults.
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := &Config{
		Project:      firstNonEmpty(os.Getenv("CORTEX_PROJECT"), os.Getenv("CLAUDE_MEMORY_PROJECT")),
		HTTPAddr:     firstNonEmpty(os.Getenv("CORTEX_HTTP_ADDR"), ":8181"),
		HardCapBytes: int64(defaultHardCapMB) * 1024 * 1024,
		WarnCapBytes: int64(defaultWarnMB) * 1024 * 1024,
	}

	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	cfg.DBPath = dbPath

	if v := os.Getenv("CORTEX_HARD_CAP_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HardCapBytes = n * 1024 * 1024
		}
	}
	if v := os.Getenv("CORTEX_WARN_CAP_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.WarnCapBytes = n * 1024 * 1024
		}
	}

	return cfg, nil
}

// resolveDBPath honors CLAUDE_MEMORY_DB, then an existing legacy path,
// then the new default path, per the environment contract.
func resolveDBPath() (string, error) {
	if v := os.Getenv("CLAUDE_MEMORY_DB"); v != "" {
		return v, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	legacy := filepath.Join(home, legacyDBDir, dbFileName)
	if _, err := os.Stat(legacy); err == nil {
		return legacy, nil
	}

	dir := filepath.Join(home, defaultDBDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, dbFileName), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
