package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, "openai:gpt-4o-mini", cfg.JudgeModel)
	assert.Equal(t, "retrace.db", cfg.Database)
	assert.Equal(t, "127.0.0.1:8321", cfg.Listen)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 8\njudge_model: mock:judge\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "mock:judge", cfg.JudgeModel)
	assert.Equal(t, "retrace.db", cfg.Database, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 8\n"), 0o644))

	t.Setenv("RETRACE_WORKERS", "2")
	t.Setenv("RETRACE_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("RETRACE_WORKERS", "0")
	t.Chdir(t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}
