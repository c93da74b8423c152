package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ZyroChat/internal/persona"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "backend = \"ollama\"\nmodel = \"mistral:7b\"\nlog_dir = \"/tmp/zyro\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, "mistral:7b", cfg.Model)
	assert.Equal(t, "/tmp/zyro", cfg.LogDir)
	assert.Equal(t, DefaultOllamaURL, cfg.OllamaURL)
	assert.Equal(t, persona.SystemInstruction, cfg.SystemInstruction)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = "), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvPrefersAPIKey(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"API_KEY":        "primary",
		"GEMINI_API_KEY": "fallback",
	}))
	assert.Equal(t, "primary", cfg.APIKey)
}

func TestApplyEnvBackendFallback(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendOpenAI
	cfg.ApplyEnv(envMap(map[string]string{
		"GEMINI_API_KEY": "gemini",
		"OPENAI_API_KEY": "openai",
		"OLLAMA_HOST":    "http://gpu-box:11434",
	}))
	assert.Equal(t, "openai", cfg.APIKey)
	assert.Equal(t, "http://gpu-box:11434", cfg.OllamaURL)
}

func TestApplyEnvDropsKeyOfPreviousBackend(t *testing.T) {
	env := envMap(map[string]string{"GEMINI_API_KEY": "g-secret"})

	cfg := Default()
	cfg.ApplyEnv(env)
	require.Equal(t, "g-secret", cfg.APIKey)

	cfg.Backend = BackendOpenAI
	cfg.ApplyEnv(env)
	assert.Empty(t, cfg.APIKey)

	cfg.Backend = BackendAnthropic
	cfg.ApplyEnv(envMap(map[string]string{"ANTHROPIC_API_KEY": "a-secret"}))
	assert.Equal(t, "a-secret", cfg.APIKey)
}

func TestApplyEnvNoCredential(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(nil))
	assert.Empty(t, cfg.APIKey)
}

func TestFinalizeDefaultModels(t *testing.T) {
	tests := []struct {
		backend string
		model   string
	}{
		{BackendGemini, DefaultGeminiModel},
		{BackendOpenAI, DefaultOpenAIModel},
		{BackendOllama, DefaultOllamaModel},
		{BackendAnthropic, DefaultAnthropicModel},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := Default()
			cfg.Backend = tt.backend
			require.NoError(t, cfg.Finalize())
			assert.Equal(t, tt.model, cfg.Model)
		})
	}
}

func TestFinalizeKeepsExplicitModel(t *testing.T) {
	cfg := Default()
	cfg.Model = "gemini-2.5-pro"
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
}

func TestFinalizeDerivesDBPath(t *testing.T) {
	cfg := Default()
	cfg.LogDir = "/var/log/zyro"
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, filepath.Join("/var/log/zyro", "exchanges.db"), cfg.DBPath)

	cfg = Default()
	cfg.DBPath = "/tmp/x.db"
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
}

func TestFinalizeUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = "carrier-pigeon"
	assert.ErrorIs(t, cfg.Finalize(), ErrUnknownBackend)
}
