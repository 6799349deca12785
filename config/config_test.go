package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "rosterflow.db", cfg.StoreDSN)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.JobWorkers)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout)
	assert.Empty(t, cfg.PhraseProvider)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ROSTERFLOW_HTTP_ADDR", ":9090")
	t.Setenv("ROSTERFLOW_STORE_DRIVER", "postgres")
	t.Setenv("ROSTERFLOW_STORE_DSN", "host=localhost dbname=rosterflow")
	t.Setenv("ROSTERFLOW_SESSION_TTL", "1h")
	t.Setenv("ROSTERFLOW_JOB_WORKERS", "8")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "host=localhost dbname=rosterflow", cfg.StoreDSN)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 8, cfg.JobWorkers)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rosterflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":7070\"\nstore:\n  driver: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.StoreDriver)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rosterflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":7070\"\n"), 0o600))
	t.Setenv("ROSTERFLOW_HTTP_ADDR", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.HTTPAddr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ROSTERFLOW_STORE_DRIVER", "cassandra")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPhraseProviderRequiresKey(t *testing.T) {
	t.Setenv("ROSTERFLOW_PHRASE_PROVIDER", "anthropic")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("ROSTERFLOW_ANTHROPIC_API_KEY", "sk-test")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.PhraseProvider)
	assert.Equal(t, "sk-test", cfg.AnthropicKey)
}
