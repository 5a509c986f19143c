package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agora/pkg/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	Long: `List the agents tasks can be routed to, with their availability,
backend and per-task-type capability scores.

Agents come from the agents_file when configured, otherwise from the
agents section of the config.`,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	agents := a.registry.List()
	if outputJSON {
		return printJSON(agents)
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered. Add them to the agents section of .agora.yaml or set agents_file.")
		return nil
	}

	for _, ag := range agents {
		fmt.Printf("%s %s", ag.ID, colorAgentStatus(ag.Status))
		if len(ag.Aliases) > 0 {
			fmt.Printf(" (aka %s)", strings.Join(ag.Aliases, ", "))
		}
		fmt.Println()
		backend := ag.Backend
		if backend == "" {
			backend = "external"
		} else if ag.Model != "" {
			backend += "/" + ag.Model
		}
		fmt.Printf("  Backend: %s\n", backend)
		if caps := formatCapabilities(ag.Capabilities); caps != "" {
			fmt.Printf("  Capabilities: %s\n", caps)
		}
	}
	return nil
}

func formatCapabilities(caps map[models.TaskType]float64) string {
	types := make([]string, 0, len(caps))
	for t := range caps {
		types = append(types, string(t))
	}
	sort.Strings(types)
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s=%.2f", t, caps[models.TaskType(t)])
	}
	return strings.Join(parts, " ")
}

func colorAgentStatus(s models.AgentStatus) string {
	switch s {
	case models.AgentStatusOnline:
		return color.GreenString(string(s))
	case models.AgentStatusBusy:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}
