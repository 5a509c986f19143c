package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agora/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's state and progress",
	Long: `Display the current state of a task.

Shows:
  - Strategy, participants and status
  - Proposals submitted so far
  - The consensus decision, once reached
  - Phases of sequential work`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.orch.GetStatus(context.Background(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(snap)
	}

	displayTask(snap.Task)
	if snap.Task.Strategy.MultiAgent() {
		fmt.Printf("  Proposals: %d / %d\n", snap.Submitted, snap.Expected)
	}
	if d := snap.Decision; d != nil {
		kind := "winner " + d.WinningProposalID
		if d.Merged() {
			kind = fmt.Sprintf("merged from %d proposals", len(d.MergedFrom))
		}
		fmt.Printf("  Decision: %s (agreement %.2f", kind, d.AgreementScore)
		if d.Degraded {
			fmt.Printf(", %s", color.YellowString("degraded"))
		}
		fmt.Println(")")
	}
	if len(snap.Phases) > 0 {
		fmt.Println()
		fmt.Println("Phases:")
		for _, p := range snap.Phases {
			fmt.Printf("  %d. %s [%s] %s\n", p.Phase+1, p.Title, strings.Join(p.Participants, ", "), colorStatus(p.Status))
		}
	}
	if reason := snap.Task.Meta("failure.reason"); reason != "" {
		fmt.Printf("  Failure: %s\n", color.RedString(reason))
	}
	if snap.Task.Result != "" {
		fmt.Println()
		fmt.Println("Result:")
		fmt.Println(snap.Task.Result)
	}
	return nil
}

var (
	pendingAgent    string
	pendingStatuses []string
	pendingLimit    int
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List unfinished tasks",
	Long: `List tasks that are pending, in progress or waiting for input.

Examples:
  agora pending                       # all unfinished tasks
  agora pending --agent claude        # tasks claude participates in
  agora pending --status completed    # recently completed tasks`,
	RunE: runPending,
}

func init() {
	pendingCmd.Flags().StringVar(&pendingAgent, "agent", "", "Only tasks this agent participates in (id or alias)")
	pendingCmd.Flags().StringSliceVar(&pendingStatuses, "status", nil, "Statuses to list (default: pending, in_progress, waiting_input)")
	pendingCmd.Flags().IntVar(&pendingLimit, "limit", 0, "Maximum number of tasks (0 = no limit)")
}

func runPending(cmd *cobra.Command, args []string) error {
	statuses := make([]models.TaskStatus, 0, len(pendingStatuses))
	for _, s := range pendingStatuses {
		st, err := models.ParseTaskStatus(s)
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	tasks, err := a.orch.ListPending(context.Background(), pendingAgent, statuses, pendingLimit)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(tasks)
	}

	if len(tasks) == 0 {
		fmt.Println("No matching tasks.")
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("%s  %-13s %-10s %s (%s ago)\n",
			t.ID, colorStatus(t.Status), t.Strategy, t.Title, formatDuration(time.Since(t.CreatedAt)))
	}
	return nil
}

var continueAgent string

var continueCmd = &cobra.Command{
	Use:   "continue <task-id>",
	Short: "Show everything an agent needs to pick up a task",
	Long: `Print a task with its proposals, transition history, decision, and
the parent and phases of sequential work.`,
	Args: cobra.ExactArgs(1),
	RunE: runContinue,
}

func init() {
	continueCmd.Flags().StringVar(&continueAgent, "agent", "", "Agent picking up the task (id or alias)")
}

func runContinue(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	tc, err := a.orch.Continue(context.Background(), args[0], continueAgent)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(tc)
	}

	displayTask(tc.Task)
	if tc.Task.Description != "" {
		fmt.Println()
		fmt.Println(tc.Task.Description)
	}
	if tc.Parent != nil {
		fmt.Printf("\nPart of %s: %s\n", tc.Parent.ID, tc.Parent.Title)
	}
	if len(tc.Phases) > 0 {
		fmt.Println("\nPhases:")
		for _, p := range tc.Phases {
			fmt.Printf("  %d. %s %s\n", p.Phase+1, p.Title, colorStatus(p.Status))
		}
	}
	if len(tc.Proposals) > 0 {
		fmt.Println("\nProposals:")
		for _, p := range tc.Proposals {
			fmt.Printf("  - %s (%s, confidence %.2f):\n", p.AgentID, p.InputType, p.Confidence)
			for _, line := range strings.Split(strings.TrimSpace(p.Content), "\n") {
				fmt.Printf("      %s\n", line)
			}
		}
	}
	if len(tc.History) > 0 {
		fmt.Println("\nHistory:")
		for _, tr := range tc.History {
			fmt.Printf("  %s  %s -> %s by %s\n", tr.At.Local().Format("15:04:05"), tr.From, tr.To, tr.Actor)
		}
	}
	if tc.Decision != nil {
		fmt.Println("\nDecision:")
		fmt.Println(tc.Decision.Content)
	}
	return nil
}

func displayTask(t *models.Task) {
	fmt.Printf("Task %s: %s\n", t.ID, t.Title)
	fmt.Printf("  Status: %s\n", colorStatus(t.Status))
	fmt.Printf("  Type: %s  Complexity/Risk: %d/%d\n", t.Type, t.Complexity, t.Risk)
	fmt.Printf("  Strategy: %s\n", t.Strategy)
	fmt.Printf("  Participants: %s\n", strings.Join(t.Participants, ", "))
	fmt.Printf("  Created: %s ago by %s\n", formatDuration(time.Since(t.CreatedAt)), t.CreatedBy)
	if t.DueAt != nil {
		fmt.Printf("  Due: %s\n", t.DueAt.Local().Format(time.RFC1123))
	}
}

// colorStatus renders a task status in its display color.
func colorStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	case models.TaskStatusWaitingInput:
		return color.MagentaString(string(s))
	case models.TaskStatusInProgress:
		return color.CyanString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

// defaultCaller names the local user for audit fields.
func defaultCaller() string {
	if c := os.Getenv("AGORA_CALLER"); c != "" {
		return c
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func taskTypeNames() string {
	names := make([]string, len(models.AllTaskTypes))
	for i, t := range models.AllTaskTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
