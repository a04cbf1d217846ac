package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aura.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Sampler.Interval)
	assert.Equal(t, 100.0, cfg.Sampler.ChangeThreshold)
	assert.Equal(t, "hey assistant", cfg.Voice.WakePhrase)
	assert.Equal(t, 16000, cfg.Voice.SampleRate)
	assert.Equal(t, []string{"openai", "gemini"}, cfg.LLM.Backends)
	assert.Equal(t, 10*time.Second, cfg.LLM.QueryTimeout)
	assert.Equal(t, ":8765", cfg.Web.Addr)
	assert.False(t, cfg.TTS.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
sampler:
  interval: 2s
voice:
  wake_phrase: "hey aura"
llm:
  backends: ["gemini"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Sampler.Interval)
	assert.Equal(t, "hey aura", cfg.Voice.WakePhrase)
	assert.Equal(t, []string{"gemini"}, cfg.LLM.Backends)
}

func TestAPIKeyEnvResolution(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLM.OpenAIKey)
	assert.Empty(t, cfg.LLM.GeminiKey)
}

func TestValidationRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "sampler:\n  downscale_factor: 1.5\n"))
	assert.ErrorContains(t, err, "downscale_factor")

	_, err = Load(writeConfig(t, "llm:\n  backends: [\"claude\"]\n"))
	assert.ErrorContains(t, err, "unknown llm backend")
}

func TestLoadSecretsMissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadSecrets(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadSecretsReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AURA_TEST_SECRET=shh\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AURA_TEST_SECRET") })

	require.NoError(t, LoadSecrets(path))
	assert.Equal(t, "shh", os.Getenv("AURA_TEST_SECRET"))
}
