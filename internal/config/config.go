// Package config handles configuration loading and management for agora.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/agora/pkg/models"
)

// ProjectConfigName is the project-level override file name.
const ProjectConfigName = ".agora.yaml"

// Config holds all configuration for agora.
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Routing     RoutingConfig     `mapstructure:"routing"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Consensus   ConsensusConfig   `mapstructure:"consensus"`
	Workflow    WorkflowConfig    `mapstructure:"workflow"`
	Agents      []AgentConfig     `mapstructure:"agents"`
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`

	// AgentsFile is an optional YAML file of agents, watched for changes.
	AgentsFile string `mapstructure:"agents_file"`
	// ProtectedAreasFile is an optional YAML file of extra sensitive-area rules.
	ProtectedAreasFile string `mapstructure:"protected_areas_file"`
	// Debug enables the file-backed debug log.
	Debug bool `mapstructure:"debug"`
}

// StoreConfig holds state database settings.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo builds only).
	Driver string `mapstructure:"driver"`
	// Path is the database file. Empty means .agora/state.db in the project root.
	Path string `mapstructure:"path"`
}

// RoutingConfig holds strategy heuristic thresholds and agent limits.
type RoutingConfig struct {
	// ConsensusThreshold is the risk/complexity at or above which consensus is used.
	ConsensusThreshold int `mapstructure:"consensus_threshold"`
	// SoloCeiling is the risk/complexity at or below which solo is used.
	SoloCeiling int `mapstructure:"solo_ceiling"`
	// MaxConsensusAgents caps consensus participants.
	MaxConsensusAgents int `mapstructure:"max_consensus_agents"`
	// MaxParallelAgents caps parallel participants.
	MaxParallelAgents int `mapstructure:"max_parallel_agents"`
}

// CalibrationConfig holds threshold self-calibration settings.
type CalibrationConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Window is how many recent outcomes are summarized.
	Window int `mapstructure:"window"`
	// MinSamples is the fewest outcomes needed before thresholds move.
	MinSamples int `mapstructure:"min_samples"`
	// Interval is the minimum time between outcome summaries.
	Interval time.Duration `mapstructure:"interval"`
}

// ConsensusConfig holds consensus workflow settings.
type ConsensusConfig struct {
	// QuorumTimeout bounds how long a consensus waits for proposals.
	QuorumTimeout time.Duration `mapstructure:"quorum_timeout"`
	// Strategies maps task type to voting strategies. The "default" key
	// applies to task types without an entry.
	Strategies map[string][]string `mapstructure:"strategies"`
}

// WorkflowConfig holds workflow execution settings.
type WorkflowConfig struct {
	// AgentTimeout bounds a single agent's work in solo, parallel and phase execution.
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
	// PollInterval is how often waiting workflows re-read the store.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// DispatchInterval is how often the serve loop looks for unowned tasks.
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	// MaxConcurrent caps the number of workflows running at once (0 = unlimited).
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// AgentConfig declares an agent in the config file.
type AgentConfig struct {
	ID           string             `mapstructure:"id"`
	Aliases      []string           `mapstructure:"aliases"`
	Type         string             `mapstructure:"type"`
	Capabilities map[string]float64 `mapstructure:"capabilities"`
	Status       string             `mapstructure:"status"`
	Backend      string             `mapstructure:"backend"`
	Model        string             `mapstructure:"model"`
}

// ToAgent converts the config entry into a registry agent.
func (ac AgentConfig) ToAgent() (*models.Agent, error) {
	if strings.TrimSpace(ac.ID) == "" {
		return nil, fmt.Errorf("agent entry missing id")
	}
	status := models.AgentStatus(strings.ToLower(ac.Status))
	if status == "" {
		status = models.AgentStatusOnline
	}
	if !status.Valid() {
		return nil, fmt.Errorf("agent %s: unknown status %q", ac.ID, ac.Status)
	}

	caps := make(map[models.TaskType]float64, len(ac.Capabilities))
	for name, score := range ac.Capabilities {
		tt, err := models.ParseTaskType(name)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		caps[tt] = score
	}

	return &models.Agent{
		ID:           ac.ID,
		Aliases:      append([]string(nil), ac.Aliases...),
		Type:         ac.Type,
		Capabilities: caps,
		Status:       status,
		Backend:      ac.Backend,
		Model:        ac.Model,
	}, nil
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
	// UseBedrock routes requests through AWS Bedrock instead of the direct API.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	Region     string `mapstructure:"region"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (AGORA_*, ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (.agora.yaml in current directory or parent)
// 3. User config (~/.config/agora/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// bindEnv maps environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("AGORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys use their conventional names.
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	cfg.AgentsFile = expandEnv(cfg.AgentsFile)
	cfg.ProtectedAreasFile = expandEnv(cfg.ProtectedAreasFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside routing.
func (c *Config) Validate() error {
	if c.Routing.SoloCeiling >= c.Routing.ConsensusThreshold {
		return fmt.Errorf("routing.solo_ceiling (%d) must be below routing.consensus_threshold (%d)",
			c.Routing.SoloCeiling, c.Routing.ConsensusThreshold)
	}
	if c.Routing.MaxConsensusAgents < 2 {
		return fmt.Errorf("routing.max_consensus_agents must be at least 2, got %d", c.Routing.MaxConsensusAgents)
	}
	for taskType, names := range c.Consensus.Strategies {
		if taskType != "default" {
			if _, err := models.ParseTaskType(taskType); err != nil {
				return fmt.Errorf("consensus.strategies: %w", err)
			}
		}
		for _, name := range names {
			if !models.VotingStrategy(name).Valid() {
				return fmt.Errorf("consensus.strategies.%s: unknown strategy %q", taskType, name)
			}
		}
	}
	return nil
}

// StrategiesFor returns the voting strategies configured for a task type.
func (c *Config) StrategiesFor(t models.TaskType) []models.VotingStrategy {
	names, ok := c.Consensus.Strategies[string(t)]
	if !ok {
		names = c.Consensus.Strategies["default"]
	}
	out := make([]models.VotingStrategy, 0, len(names))
	for _, n := range names {
		out = append(out, models.VotingStrategy(n))
	}
	if len(out) == 0 {
		out = append(out, models.VotingPlurality)
	}
	return out
}

// DBPath returns the configured database path, resolved against projectRoot.
func (c *Config) DBPath(projectRoot string) string {
	if c.Store.Path == "" {
		return filepath.Join(projectRoot, ".agora", "state.db")
	}
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(projectRoot, c.Store.Path)
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to the given path.
func SaveTo(cfg *Config, configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("store.driver", cfg.Store.Driver)
	v.Set("store.path", cfg.Store.Path)
	v.Set("routing.consensus_threshold", cfg.Routing.ConsensusThreshold)
	v.Set("routing.solo_ceiling", cfg.Routing.SoloCeiling)
	v.Set("routing.max_consensus_agents", cfg.Routing.MaxConsensusAgents)
	v.Set("routing.max_parallel_agents", cfg.Routing.MaxParallelAgents)
	v.Set("calibration.enabled", cfg.Calibration.Enabled)
	v.Set("calibration.window", cfg.Calibration.Window)
	v.Set("calibration.min_samples", cfg.Calibration.MinSamples)
	v.Set("calibration.interval", cfg.Calibration.Interval.String())
	v.Set("consensus.quorum_timeout", cfg.Consensus.QuorumTimeout.String())
	v.Set("consensus.strategies", cfg.Consensus.Strategies)
	v.Set("workflow.agent_timeout", cfg.Workflow.AgentTimeout.String())
	v.Set("workflow.poll_interval", cfg.Workflow.PollInterval.String())
	v.Set("workflow.dispatch_interval", cfg.Workflow.DispatchInterval.String())
	v.Set("workflow.max_concurrent", cfg.Workflow.MaxConcurrent)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.region", cfg.Anthropic.Region)
	v.Set("openai.api_key", cfg.OpenAI.APIKey)
	v.Set("openai.model", cfg.OpenAI.Model)
	v.Set("openai.max_tokens", cfg.OpenAI.MaxTokens)
	v.Set("openai.base_url", cfg.OpenAI.BaseURL)
	v.Set("agents_file", cfg.AgentsFile)
	v.Set("protected_areas_file", cfg.ProtectedAreasFile)
	v.Set("debug", cfg.Debug)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("routing.consensus_threshold", d.Routing.ConsensusThreshold)
	v.SetDefault("routing.solo_ceiling", d.Routing.SoloCeiling)
	v.SetDefault("routing.max_consensus_agents", d.Routing.MaxConsensusAgents)
	v.SetDefault("routing.max_parallel_agents", d.Routing.MaxParallelAgents)

	v.SetDefault("calibration.enabled", d.Calibration.Enabled)
	v.SetDefault("calibration.window", d.Calibration.Window)
	v.SetDefault("calibration.min_samples", d.Calibration.MinSamples)
	v.SetDefault("calibration.interval", "10m")

	v.SetDefault("consensus.quorum_timeout", "30m")
	// Per-key defaults so a project file can override one task type only.
	for taskType, names := range d.Consensus.Strategies {
		v.SetDefault("consensus.strategies."+taskType, names)
	}

	v.SetDefault("workflow.agent_timeout", "10m")
	v.SetDefault("workflow.poll_interval", "2s")
	v.SetDefault("workflow.dispatch_interval", "2s")
	v.SetDefault("workflow.max_concurrent", d.Workflow.MaxConcurrent)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.region", d.Anthropic.Region)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", d.OpenAI.Model)
	v.SetDefault("openai.max_tokens", d.OpenAI.MaxTokens)
	v.SetDefault("openai.base_url", "")

	v.SetDefault("agents_file", "")
	v.SetDefault("protected_areas_file", "")
	v.SetDefault("debug", false)
}

// getUserConfigDir returns the XDG config directory for agora.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agora")
	}

	// Fall back to ~/.config/agora
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agora")
	}
	return filepath.Join(home, ".config", "agora")
}

// findProjectConfig searches for .agora.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Routing: RoutingConfig{
			ConsensusThreshold: 7,
			SoloCeiling:        3,
			MaxConsensusAgents: 3,
			MaxParallelAgents:  3,
		},
		Calibration: CalibrationConfig{
			Enabled:    true,
			Window:     50,
			MinSamples: 10,
			Interval:   10 * time.Minute,
		},
		Consensus: ConsensusConfig{
			QuorumTimeout: 30 * time.Minute,
			Strategies: map[string][]string{
				"default":        {"voting"},
				"architecture":   {"voting", "reasoning_quality", "merge"},
				"review":         {"voting", "reasoning_quality"},
				"implementation": {"voting", "token_optimization"},
			},
		},
		Workflow: WorkflowConfig{
			AgentTimeout:     10 * time.Minute,
			PollInterval:     2 * time.Second,
			DispatchInterval: 2 * time.Second,
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Region:    "us-east-1",
		},
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
	}
}
