// Package config provides API key management utilities.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Provider names a model API provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// envVar returns the conventional environment variable for a provider key.
func (p Provider) envVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// keyPrefix returns the expected key prefix for a provider.
func (p Provider) keyPrefix() string {
	switch p {
	case ProviderOpenAI:
		return "sk-"
	default:
		return "sk-ant-"
	}
}

func (p Provider) configured(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	switch p {
	case ProviderOpenAI:
		return cfg.OpenAI.APIKey
	default:
		return cfg.Anthropic.APIKey
	}
}

// GetAPIKey returns the provider's API key from the configuration.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config, p Provider) (string, error) {
	// First check environment variable directly
	if key := os.Getenv(p.envVar()); key != "" {
		return key, nil
	}

	// Then check config
	if raw := p.configured(cfg); raw != "" {
		// Expand any remaining env var references
		key := os.ExpandEnv(raw)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", fmt.Errorf("%s: %w", p, ErrNoAPIKey)
}

// ValidateAPIKey performs basic validation on an API key.
// It checks format but does not verify the key with the provider.
func ValidateAPIKey(p Provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	if !strings.HasPrefix(key, p.keyPrefix()) {
		return fmt.Errorf("invalid %s API key format: expected %q prefix", p, p.keyPrefix())
	}

	// Keys should be reasonably long
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the provider's API key was sourced from.
func GetAPIKeySource(cfg *Config, p Provider) KeySource {
	if os.Getenv(p.envVar()) != "" {
		return KeySourceEnv
	}

	if raw := p.configured(cfg); raw != "" {
		key := os.ExpandEnv(raw)
		if key != "" && !strings.HasPrefix(key, "${") {
			return KeySourceConfig
		}
	}

	return KeySourceNone
}
