package config

import (
	"errors"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{}, ProviderAnthropic)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-test-key" {
			t.Errorf("expected 'sk-ant-test-key', got %q", key)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{
			Anthropic: AnthropicConfig{
				APIKey: "sk-ant-config-key",
			},
		}
		key, err := GetAPIKey(cfg, ProviderAnthropic)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-config-key" {
			t.Errorf("expected 'sk-ant-config-key', got %q", key)
		}
	})

	t.Run("openai from environment", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-openai-env")

		key, err := GetAPIKey(&Config{}, ProviderOpenAI)
		if err != nil || key != "sk-openai-env" {
			t.Errorf("GetAPIKey = %q, %v", key, err)
		}
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		_, err := GetAPIKey(&Config{}, ProviderAnthropic)
		if !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("unexpanded reference", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{OpenAI: OpenAIConfig{APIKey: "${AGORA_UNSET_TEST_VAR}"}}
		if _, err := GetAPIKey(cfg, ProviderOpenAI); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		key      string
		wantErr  bool
	}{
		{"valid anthropic key", ProviderAnthropic, "sk-ant-REDACTED", false},
		{"valid openai key", ProviderOpenAI, "sk-proj-abcdefghijklmnopqrstuvwxyz", false},
		{"empty key", ProviderAnthropic, "", true},
		{"wrong prefix", ProviderAnthropic, "sk-openai-12345678901234567890", true},
		{"too short", ProviderAnthropic, "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.provider, tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"valid key", "sk-ant-REDACTED", "sk-ant-...wxyz"},
		{"empty key", "", "(not set)"},
		{"short key", "short", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskAPIKey(tt.key)
			if result != tt.expected {
				t.Errorf("MaskAPIKey() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "test-key")

		source := GetAPIKeySource(&Config{}, ProviderAnthropic)
		if source != KeySourceEnv {
			t.Errorf("expected KeySourceEnv, got %v", source)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{
			OpenAI: OpenAIConfig{
				APIKey: "sk-config-key",
			},
		}
		source := GetAPIKeySource(cfg, ProviderOpenAI)
		if source != KeySourceConfig {
			t.Errorf("expected KeySourceConfig, got %v", source)
		}
	})

	t.Run("no key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		source := GetAPIKeySource(&Config{}, ProviderAnthropic)
		if source != KeySourceNone {
			t.Errorf("expected KeySourceNone, got %v", source)
		}
	})
}
