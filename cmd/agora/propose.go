package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agora/internal/orchestrator"
)

var (
	proposeFile       string
	proposeInputType  string
	proposeConfidence float64
)

var proposeCmd = &cobra.Command{
	Use:   "propose <task-id> <agent> [content]",
	Short: "Submit an agent's proposal for a task",
	Long: `Record a proposal from a participating agent.

Content is taken from the argument, from --file, or from stdin when
neither is given. Consensus tasks wait in waiting_input until every
participant has proposed.

Examples:
  agora propose 7f3c claude "Use an outbox table for payment events"
  agora propose 7f3c gpt --file plan.md --confidence 0.8 --input-type implementation_plan`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runPropose,
}

func init() {
	proposeCmd.Flags().StringVarP(&proposeFile, "file", "f", "", "Read content from this file")
	proposeCmd.Flags().StringVar(&proposeInputType, "input-type", "", "Kind of contribution, e.g. architectural_plan or code_review (default: other)")
	proposeCmd.Flags().Float64Var(&proposeConfidence, "confidence", 0.7, "Agent confidence in the proposal (0-1)")
}

func runPropose(cmd *cobra.Command, args []string) error {
	content, err := readContent(args[2:], proposeFile)
	if err != nil {
		return err
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.SubmitProposal(context.Background(), orchestrator.ProposalRequest{
		TaskID:     args[0],
		AgentID:    args[1],
		Content:    content,
		InputType:  proposeInputType,
		Confidence: proposeConfidence,
	})
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(res)
	}

	fmt.Printf("%s Proposal %s recorded (%d/%d)\n", color.GreenString("✓"), res.Proposal.ID, res.Submitted, res.Expected)
	if res.StatusChanged {
		fmt.Printf("  Task is now %s\n", colorStatus(res.Status))
	}
	return nil
}

var completeCmd = &cobra.Command{
	Use:   "complete <task-id> <agent-or-creator> [result]",
	Short: "Mark a task completed",
	Long: `Complete a task on behalf of its creator or its primary agent.

The result is taken from the argument, from --file, or left unchanged.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runComplete,
}

var completeFile string

func init() {
	completeCmd.Flags().StringVarP(&completeFile, "file", "f", "", "Read the result from this file")
}

func runComplete(cmd *cobra.Command, args []string) error {
	var result string
	if len(args) > 2 || completeFile != "" {
		var err error
		if result, err = readContent(args[2:], completeFile); err != nil {
			return err
		}
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.orch.Complete(context.Background(), args[0], args[1], result)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(task)
	}
	fmt.Printf("%s Task %s %s\n", color.GreenString("✓"), task.ID, colorStatus(task.Status))
	return nil
}

var failActor string

var failCmd = &cobra.Command{
	Use:   "fail <task-id> <reason>",
	Short: "Force a task to failed",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runFail,
}

func init() {
	failCmd.Flags().StringVar(&failActor, "actor", defaultCaller(), "Who is failing the task")
}

func runFail(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.orch.Fail(context.Background(), args[0], failActor, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(task)
	}
	fmt.Printf("%s Task %s %s: %s\n", color.RedString("✗"), task.ID, colorStatus(task.Status), task.Meta("failure.reason"))
	return nil
}

// readContent returns the inline argument, the named file, or stdin.
func readContent(inline []string, path string) (string, error) {
	switch {
	case len(inline) > 0 && path != "":
		return "", fmt.Errorf("give content either inline or with --file, not both")
	case len(inline) > 0:
		return inline[0], nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
