package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, LLMProviderGemini, cfg.LLM.DefaultProvider)
	assert.Equal(t, 50, cfg.Trust.QualityThreshold)
	assert.Equal(t, 3, cfg.Discovery.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Discovery.GlobalBudget)
	assert.Equal(t, 2, cfg.Browser.PoolSize)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadFromFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(base, []byte("[trust]\nquality_threshold = 60\n\n[discovery]\nworkers = 5\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("[discovery]\nworkers = 2\n"), 0644))

	cfg, err := LoadFromFiles(base, local)
	require.NoError(t, err)

	// Later files override earlier ones; untouched keys keep defaults.
	assert.Equal(t, 60, cfg.Trust.QualityThreshold)
	assert.Equal(t, 2, cfg.Discovery.Workers)
	assert.Equal(t, 10, cfg.Discovery.MaxCandidates)
}

func TestLoadFromFilesEnvOverride(t *testing.T) {
	t.Setenv("SUBSIDIA_GEMINI_API_KEY", "env-key")
	t.Setenv("SUBSIDIA_LLM_PROVIDER", "claude")
	t.Setenv("SUBSIDIA_DATA_DIR", "/tmp/subsidia-test")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
	assert.Equal(t, LLMProviderClaude, cfg.LLM.DefaultProvider)
	assert.Equal(t, "/tmp/subsidia-test", cfg.Storage.Badger.Path)
}

func TestLoadFromFilesRejectsBadProvider(t *testing.T) {
	t.Setenv("SUBSIDIA_LLM_PROVIDER", "openai")

	_, err := LoadFromFiles()
	assert.Error(t, err)
}

func TestLoadFromFilesRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[gemini]\ntimeout = \"not-a-duration\"\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadFromFilesRejectsOutOfRangeThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[trust]\nquality_threshold = 150\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}
