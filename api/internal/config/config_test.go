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
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("PGHOST", "pg")
	t.Setenv("PGPORT", "6543")
	t.Setenv("POSTGRES_DB", "dx")
	t.Setenv("ANALYSIS_TIMEOUT", "")
	t.Setenv("VISION_PROVIDER", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@pg:6543/dx?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 90*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "host=pg port=6543 db=dx user=u", SafeDSNSummary(cfg.DatabaseURL))
}

func TestLoadDurationForms(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ANALYSIS_TIMEOUT", "45")
	t.Setenv("STUCK_AFTER", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, 2*time.Minute, cfg.StuckAfter)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parascope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\nopenai_model: gpt-4.1\nanalysis_timeout: 30s\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("VISION_PROVIDER", "gemini")
	t.Setenv("OPENAI_API_KEY", "k")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4.1", cfg.OpenAIModel)
	assert.Equal(t, 30*time.Second, cfg.AnalysisTimeout)
	require.NoError(t, cfg.ValidateVision())
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateVision(t *testing.T) {
	cfg := &Config{Provider: "gemini", AnalysisTimeout: time.Second}
	assert.Error(t, cfg.ValidateVision())
	cfg.GeminiAPIKey = "k"
	assert.NoError(t, cfg.ValidateVision())
	cfg.Provider = "yandex"
	assert.Error(t, cfg.ValidateVision())
}

func TestVisionModelFollowsProvider(t *testing.T) {
	c := &Config{Provider: "gemini", GeminiModel: "g", OpenAIModel: "o"}
	assert.Equal(t, "g", c.VisionModel())
	c.Provider = "openai"
	assert.Equal(t, "o", c.VisionModel())
}
