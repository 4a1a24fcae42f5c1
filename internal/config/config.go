// Package config handles infinite-chat configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/infinite-chat/config.yaml,
// /etc/infinite-chat/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "infinite-chat", "config.yaml"))
	}

	paths = append(paths, "/etc/infinite-chat/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all infinite-chat configuration.
type Config struct {
	Listen   ListenConfig  `yaml:"listen"`
	LLM      LLMConfig     `yaml:"llm"`
	Storage  StorageConfig `yaml:"storage"`
	Agent    AgentConfig   `yaml:"agent"`
	LogLevel string        `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the model backend connection.
type LLMConfig struct {
	// Provider selects auth conventions: openai, zai, anthropic, ollama.
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	// MaxTokens caps completion length per request (default 4000).
	MaxTokens int `yaml:"max_tokens"`
	// TimeoutSec bounds a single backend call (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
}

// Timeout returns the per-call backend timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// StorageConfig defines where conversation history lives.
type StorageConfig struct {
	// DataDir holds the SQLite database. Defaults to ./data.
	DataDir string `yaml:"data_dir"`
}

// AgentConfig tunes the root agent loop.
type AgentConfig struct {
	// MaxIterations bounds the tool-calling loop (default 20).
	MaxIterations int `yaml:"max_iterations"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			Provider:   "openai",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4",
			MaxTokens:  4000,
			TimeoutSec: 120,
		},
		Storage: StorageConfig{DataDir: "data"},
		Agent:   AgentConfig{MaxIterations: 20},
	}
}
