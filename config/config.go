package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the client-side settings for connecting runs to a chat
// backend and to model providers.
type Config struct {
	Server    Server    `yaml:"server,omitempty"`
	Providers Providers `yaml:"providers,omitempty"`
	Logging   Logging   `yaml:"logging,omitempty"`
	Runs      Runs      `yaml:"runs,omitempty"`
}

// Server describes the streaming backend endpoint.
type Server struct {
	URL string `yaml:"url,omitempty"`
}

// Providers carries credentials and model selection per provider.
type Providers struct {
	Anthropic Provider `yaml:"anthropic,omitempty"`
	OpenAI    Provider `yaml:"openai,omitempty"`
}

type Provider struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// Logging selects the log level for the client.
type Logging struct {
	Level string `yaml:"level,omitempty"`
}

// Runs tunes run lifecycle behavior.
type Runs struct {
	// FeedBuffer is the per-subscriber buffer for lifecycle events.
	FeedBuffer int `yaml:"feed_buffer,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info"},
		Runs:    Runs{FeedBuffer: 16},
	}
}

// DefaultPath returns the config file location, honoring LOOM_CONFIG_PATH.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("LOOM_CONFIG_PATH")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "loom", "config.yaml"), nil
}

// Load resolves the configuration from the default path and environment.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the YAML file at path, applying defaults and environment
// overrides. A missing file is not an error; defaults and environment
// settings still apply.
func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if cfg.Runs.FeedBuffer <= 0 {
		cfg.Runs.FeedBuffer = Default().Runs.FeedBuffer
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("LOOM_SERVER_URL")); v != "" {
		c.Server.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOOM_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOOM_FEED_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Runs.FeedBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		c.Providers.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path atomically, creating parent
// directories as needed.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config.yaml.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
