// Package config loads, validates and persists the convoguard runtime
// configuration (.convoguard.yml plus CONVOGUARD_* overrides).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is where the wizard writes the config and where Load
// looks when no explicit path is given.
const DefaultPath = ".convoguard.yml"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CONVOGUARD_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: CONVOGUARD_PORT -> port, etc.
	if err := k.Load(env.Provider("CONVOGUARD_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CONVOGUARD_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validSeverities is the set of recognized webhook severity floors.
var validSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.EvaluatorModel == "" {
		return fmt.Errorf("evaluator_model is required")
	}

	if c.SemanticRouting && c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required when semantic_routing is enabled")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.EvaluatorTimeoutSeconds < 1 {
		return fmt.Errorf("evaluator_timeout_seconds must be positive")
	}

	if c.Webhooks.MinSeverity != "" && !validSeverities[c.Webhooks.MinSeverity] {
		return fmt.Errorf("invalid webhooks.min_severity %q: must be one of low, medium, high, critical", c.Webhooks.MinSeverity)
	}

	return nil
}

// APIKeyEnvVar is the environment variable holding the OpenAI API key
// used by the generator, evaluator and embedder.
const APIKeyEnvVar = "OPENAI_API_KEY"
