package main

import (
	"os"

	"github.com/spf13/cobra"
)

// outputJSON switches every command to machine-readable output.
var outputJSON bool

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Routing and consensus engine for AI coding agents",
	Long: `Agora routes incoming tasks to one or more AI coding agents and
drives them to a result.

Each task is classified for complexity and risk and given a strategy:
  - solo:        one agent does the work
  - parallel:    several agents work independently, results are combined
  - sequential:  the task is split into phases handed from agent to agent
  - consensus:   several agents propose and a vote picks the decision

Commands that create or change tasks only write to the state database.
Run 'agora serve' to drive workflows, or let agents submit proposals
with 'agora propose'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(failCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
