package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[llm]
provider = "openai"
model = "gpt-4o-mini"

[store]
backend = "sqlite"

[matching]
max_group_size = 6
workers = 2
oracle_timeout = "5s"

[prompts]
canonicalize = "map %s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 6, cfg.Matching.MaxGroupSize)
	assert.Equal(t, 2, cfg.Matching.Workers)
	assert.Equal(t, 5*time.Second, cfg.Matching.OracleTimeout.Duration)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Matching.TransportTimeout.Duration)
	assert.Equal(t, "map %s", cfg.Prompts.Canonicalize)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Matching.MaxGroupSize)
	assert.Equal(t, "memgraph", cfg.Store.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Server.RunTimeout.Duration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CRON_TOKEN", "secret")
	t.Setenv("MATCH_MAX_GROUP_SIZE", "8")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "secret", cfg.Server.CronToken)
	assert.Equal(t, 8, cfg.Matching.MaxGroupSize)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\nbackend = \"postgres\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[matching]\noracle_timeout = \"soon\"\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
