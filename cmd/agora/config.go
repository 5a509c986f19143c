package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agora/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Agora configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/agora/config.yaml
Project-specific overrides can be placed in .agora.yaml`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// configKeys lists the keys shown by 'agora config', in display order.
var configKeys = []string{
	"store.driver",
	"store.path",
	"routing.consensus_threshold",
	"routing.solo_ceiling",
	"routing.max_consensus_agents",
	"routing.max_parallel_agents",
	"calibration.enabled",
	"calibration.window",
	"calibration.min_samples",
	"calibration.interval",
	"consensus.quorum_timeout",
	"workflow.agent_timeout",
	"workflow.poll_interval",
	"workflow.dispatch_interval",
	"workflow.max_concurrent",
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_bedrock",
	"openai.api_key",
	"openai.model",
	"agents_file",
	"protected_areas_file",
	"debug",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
	for taskType, names := range cfg.Consensus.Strategies {
		fmt.Printf("consensus.strategies.%s: %s\n", taskType, strings.Join(names, ","))
	}
	fmt.Printf("agents: %d configured\n", len(cfg.Agents))
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	return config.MaskAPIKey(key)
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "store.driver":
		return cfg.Store.Driver, nil
	case "store.path":
		return orNone(cfg.Store.Path), nil
	case "routing.consensus_threshold":
		return strconv.Itoa(cfg.Routing.ConsensusThreshold), nil
	case "routing.solo_ceiling":
		return strconv.Itoa(cfg.Routing.SoloCeiling), nil
	case "routing.max_consensus_agents":
		return strconv.Itoa(cfg.Routing.MaxConsensusAgents), nil
	case "routing.max_parallel_agents":
		return strconv.Itoa(cfg.Routing.MaxParallelAgents), nil
	case "calibration.enabled":
		return strconv.FormatBool(cfg.Calibration.Enabled), nil
	case "calibration.window":
		return strconv.Itoa(cfg.Calibration.Window), nil
	case "calibration.min_samples":
		return strconv.Itoa(cfg.Calibration.MinSamples), nil
	case "calibration.interval":
		return cfg.Calibration.Interval.String(), nil
	case "consensus.quorum_timeout":
		return cfg.Consensus.QuorumTimeout.String(), nil
	case "workflow.agent_timeout":
		return cfg.Workflow.AgentTimeout.String(), nil
	case "workflow.poll_interval":
		return cfg.Workflow.PollInterval.String(), nil
	case "workflow.dispatch_interval":
		return cfg.Workflow.DispatchInterval.String(), nil
	case "workflow.max_concurrent":
		return strconv.Itoa(cfg.Workflow.MaxConcurrent), nil
	case "anthropic.api_key":
		return maskKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "openai.api_key":
		return maskKey(cfg.OpenAI.APIKey), nil
	case "openai.model":
		return cfg.OpenAI.Model, nil
	case "agents_file":
		return orNone(cfg.AgentsFile), nil
	case "protected_areas_file":
		return orNone(cfg.ProtectedAreasFile), nil
	case "debug":
		return strconv.FormatBool(cfg.Debug), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "store.driver":
		cfg.Store.Driver = value
	case "store.path":
		cfg.Store.Path = value
	case "routing.consensus_threshold":
		cfg.Routing.ConsensusThreshold, err = parseInt(key, value)
	case "routing.solo_ceiling":
		cfg.Routing.SoloCeiling, err = parseInt(key, value)
	case "routing.max_consensus_agents":
		cfg.Routing.MaxConsensusAgents, err = parseInt(key, value)
	case "routing.max_parallel_agents":
		cfg.Routing.MaxParallelAgents, err = parseInt(key, value)
	case "calibration.enabled":
		cfg.Calibration.Enabled, err = parseBool(key, value)
	case "calibration.window":
		cfg.Calibration.Window, err = parseInt(key, value)
	case "calibration.min_samples":
		cfg.Calibration.MinSamples, err = parseInt(key, value)
	case "calibration.interval":
		cfg.Calibration.Interval, err = parseDuration(key, value)
	case "consensus.quorum_timeout":
		cfg.Consensus.QuorumTimeout, err = parseDuration(key, value)
	case "workflow.agent_timeout":
		cfg.Workflow.AgentTimeout, err = parseDuration(key, value)
	case "workflow.poll_interval":
		cfg.Workflow.PollInterval, err = parseDuration(key, value)
	case "workflow.dispatch_interval":
		cfg.Workflow.DispatchInterval, err = parseDuration(key, value)
	case "workflow.max_concurrent":
		cfg.Workflow.MaxConcurrent, err = parseInt(key, value)
	case "anthropic.api_key":
		if err = config.ValidateAPIKey(config.ProviderAnthropic, value); err == nil {
			cfg.Anthropic.APIKey = value
		}
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		cfg.Anthropic.UseBedrock, err = parseBool(key, value)
	case "openai.api_key":
		if err = config.ValidateAPIKey(config.ProviderOpenAI, value); err == nil {
			cfg.OpenAI.APIKey = value
		}
	case "openai.model":
		cfg.OpenAI.Model = value
	case "agents_file":
		cfg.AgentsFile = value
	case "protected_areas_file":
		cfg.ProtectedAreasFile = value
	case "debug":
		cfg.Debug, err = parseBool(key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
