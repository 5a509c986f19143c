package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected default driver 'sqlite', got %q", cfg.Store.Driver)
	}

	if cfg.Routing.ConsensusThreshold != 7 {
		t.Errorf("expected consensus threshold 7, got %d", cfg.Routing.ConsensusThreshold)
	}

	if cfg.Routing.SoloCeiling != 3 {
		t.Errorf("expected solo ceiling 3, got %d", cfg.Routing.SoloCeiling)
	}

	if cfg.Routing.MaxConsensusAgents != 3 {
		t.Errorf("expected max consensus agents 3, got %d", cfg.Routing.MaxConsensusAgents)
	}

	if cfg.Calibration.Window != 50 || cfg.Calibration.MinSamples != 10 {
		t.Errorf("unexpected calibration defaults: %+v", cfg.Calibration)
	}

	if cfg.Calibration.Interval != 10*time.Minute {
		t.Errorf("expected calibration interval 10m, got %v", cfg.Calibration.Interval)
	}

	if cfg.Consensus.QuorumTimeout != 30*time.Minute {
		t.Errorf("expected quorum timeout 30m, got %v", cfg.Consensus.QuorumTimeout)
	}

	if cfg.Workflow.PollInterval != 2*time.Second {
		t.Errorf("expected poll interval 2s, got %v", cfg.Workflow.PollInterval)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  use_bedrock: true
store:
  driver: sqlite3
  path: data/agora.db
routing:
  consensus_threshold: 8
  solo_ceiling: 2
consensus:
  quorum_timeout: 5m
  strategies:
    review: [voting, merge]
workflow:
  agent_timeout: 90s
agents:
  - id: claude
    aliases: [cc]
    type: claude
    backend: anthropic
    capabilities:
      architecture: 0.9
      implementation: 0.8
  - id: gpt
    type: gpt
    status: busy
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if !cfg.Anthropic.UseBedrock {
		t.Error("expected use_bedrock to be true")
	}
	if cfg.Anthropic.Model != Default().Anthropic.Model {
		t.Errorf("expected default model to survive, got %q", cfg.Anthropic.Model)
	}

	if cfg.Store.Driver != "sqlite3" {
		t.Errorf("expected driver 'sqlite3', got %q", cfg.Store.Driver)
	}
	if got := cfg.DBPath("/proj"); got != filepath.Join("/proj", "data", "agora.db") {
		t.Errorf("DBPath = %q", got)
	}

	if cfg.Routing.ConsensusThreshold != 8 || cfg.Routing.SoloCeiling != 2 {
		t.Errorf("unexpected routing config: %+v", cfg.Routing)
	}

	if cfg.Consensus.QuorumTimeout != 5*time.Minute {
		t.Errorf("expected quorum timeout 5m, got %v", cfg.Consensus.QuorumTimeout)
	}

	if cfg.Workflow.AgentTimeout != 90*time.Second {
		t.Errorf("expected agent timeout 90s, got %v", cfg.Workflow.AgentTimeout)
	}

	review := cfg.StrategiesFor(models.TaskTypeReview)
	if len(review) != 2 || review[1] != models.VotingMerge {
		t.Errorf("review strategies = %v", review)
	}

	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	claude, err := cfg.Agents[0].ToAgent()
	if err != nil {
		t.Fatalf("ToAgent failed: %v", err)
	}
	if claude.Status != models.AgentStatusOnline {
		t.Errorf("expected default status online, got %s", claude.Status)
	}
	if claude.Capability(models.TaskTypeArchitecture) != 0.9 {
		t.Errorf("architecture capability = %v", claude.Capability(models.TaskTypeArchitecture))
	}
	if !claude.Matches("CC") {
		t.Error("expected alias lookup to match")
	}
	gpt, err := cfg.Agents[1].ToAgent()
	if err != nil {
		t.Fatalf("ToAgent failed: %v", err)
	}
	if gpt.Status != models.AgentStatusBusy {
		t.Errorf("expected busy, got %s", gpt.Status)
	}
}

func TestLoadFromPath_InvalidThresholds(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
routing:
  consensus_threshold: 3
  solo_ceiling: 5
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadFromPath(configPath); err == nil {
		t.Error("expected validation error for inverted thresholds")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"too few consensus agents", func(c *Config) { c.Routing.MaxConsensusAgents = 1 }, true},
		{"unknown strategy", func(c *Config) { c.Consensus.Strategies["review"] = []string{"coinflip"} }, true},
		{"unknown task type", func(c *Config) { c.Consensus.Strategies["gardening"] = []string{"voting"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStrategiesFor(t *testing.T) {
	cfg := Default()

	tests := []struct {
		taskType models.TaskType
		want     []models.VotingStrategy
	}{
		{models.TaskTypeArchitecture, []models.VotingStrategy{models.VotingPlurality, models.VotingReasoningQuality, models.VotingMerge}},
		{models.TaskTypeImplementation, []models.VotingStrategy{models.VotingPlurality, models.VotingTokenOptimization}},
		{models.TaskTypeTesting, []models.VotingStrategy{models.VotingPlurality}},
	}

	for _, tt := range tests {
		t.Run(string(tt.taskType), func(t *testing.T) {
			got := cfg.StrategiesFor(tt.taskType)
			if len(got) != len(tt.want) {
				t.Fatalf("StrategiesFor(%s) = %v, want %v", tt.taskType, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("StrategiesFor(%s)[%d] = %s, want %s", tt.taskType, i, got[i], tt.want[i])
				}
			}
		})
	}

	empty := &Config{}
	if got := empty.StrategiesFor(models.TaskTypeReview); len(got) != 1 || got[0] != models.VotingPlurality {
		t.Errorf("empty config strategies = %v, want [voting]", got)
	}
}

func TestToAgent_Errors(t *testing.T) {
	tests := []struct {
		name string
		ac   AgentConfig
	}{
		{"missing id", AgentConfig{Type: "claude"}},
		{"bad status", AgentConfig{ID: "a", Status: "sleeping"}},
		{"bad capability", AgentConfig{ID: "a", Capabilities: map[string]float64{"gardening": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.ac.ToAgent(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Routing.ConsensusThreshold = 6
	cfg.Workflow.AgentTimeout = 3 * time.Minute
	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Routing.ConsensusThreshold != 6 {
		t.Errorf("consensus threshold = %d, want 6", loaded.Routing.ConsensusThreshold)
	}
	if loaded.Workflow.AgentTimeout != 3*time.Minute {
		t.Errorf("agent timeout = %v, want 3m", loaded.Workflow.AgentTimeout)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/agora"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}
