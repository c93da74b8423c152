package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"ZyroChat/internal/persona"
)

const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
)

const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultOllamaModel    = "llama3:latest"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultOllamaURL      = "http://localhost:11434"
)

// ErrUnknownBackend is returned for a backend name that has no implementation
var ErrUnknownBackend = errors.New("unknown backend")

// Config holds application configuration
type Config struct {
	Backend           string `toml:"backend"`
	Model             string `toml:"model"`
	APIKey            string `toml:"-"`        // only ever read from the environment
	BaseURL           string `toml:"base_url"` // OpenAI-compatible hosts (e.g. https://api.x.ai/v1) or an Anthropic proxy
	OllamaURL         string `toml:"ollama_url"`
	SystemInstruction string `toml:"system_instruction"`

	Plain     bool   `toml:"plain"`
	Debug     bool   `toml:"debug"`
	Telemetry bool   `toml:"telemetry"`
	LogDir    string `toml:"log_dir"`
	DBPath    string `toml:"db_path"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() Config {
	return Config{
		Backend:           BackendGemini,
		OllamaURL:         DefaultOllamaURL,
		SystemInstruction: persona.SystemInstruction,
		LogDir:            "logs",
	}
}

// DefaultPath returns the per-user config file location
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "zyrochat", "config.toml"), nil
}

// Load reads the TOML file at path on top of Default.
// An empty path means DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv fills the credential and endpoint settings from the environment.
// API_KEY wins over the backend specific variables. The credential is looked
// up again from scratch, so a key read for one backend never carries over to another.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	c.APIKey = ""
	if v, ok := lookup("API_KEY"); ok && v != "" {
		c.APIKey = v
	} else {
		var name string
		switch c.Backend {
		case BackendGemini:
			name = "GEMINI_API_KEY"
		case BackendOpenAI:
			name = "OPENAI_API_KEY"
		case BackendAnthropic:
			name = "ANTHROPIC_API_KEY"
		}
		if name != "" {
			if v, ok := lookup(name); ok {
				c.APIKey = v
			}
		}
	}

	if v, ok := lookup("OLLAMA_HOST"); ok && v != "" {
		c.OllamaURL = v
	}
}

// Finalize validates the backend and fills in defaults that depend on other fields
func (c *Config) Finalize() error {
	switch c.Backend {
	case BackendGemini:
		if c.Model == "" {
			c.Model = DefaultGeminiModel
		}
	case BackendOpenAI:
		if c.Model == "" {
			c.Model = DefaultOpenAIModel
		}
	case BackendOllama:
		if c.Model == "" {
			c.Model = DefaultOllamaModel
		}
	case BackendAnthropic:
		if c.Model == "" {
			c.Model = DefaultAnthropicModel
		}
	default:
		return fmt.Errorf("%w: %s (gemini|openai|ollama|anthropic)", ErrUnknownBackend, c.Backend)
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = persona.SystemInstruction
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.LogDir, "exchanges.db")
	}
	return nil
}
