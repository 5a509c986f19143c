package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/internal/workflow"
)

var serveQuiet bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Drive task workflows until interrupted",
	Long: `Run the dispatch loop.

serve adopts every unfinished task that no other process is driving,
emergency tasks first, and runs its workflow: it calls agent backends,
waits for proposals, resolves consensus and completes or fails the task.
Tasks interrupted by a restart are resumed where they left off.

When agents_file is configured it is watched and agents are reloaded on
change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "Do not print workflow events")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{serving: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nReceived interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.cfg.AgentsFile != "" {
		w, err := agent.WatchFile(a.registry, a.cfg.AgentsFile, func(err error) {
			if err != nil {
				log.Printf("[agora] reload %s: %v", a.cfg.AgentsFile, err)
				return
			}
			log.Printf("[agora] reloaded %d agent(s) from %s", a.registry.Count(), a.cfg.AgentsFile)
		})
		if err != nil {
			return fmt.Errorf("watch agents file: %w", err)
		}
		defer w.Close()
	}

	events := a.orch.Events()
	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		for ev := range events.Events() {
			if !serveQuiet {
				printEvent(ev)
			}
		}
	}()

	fmt.Printf("agora serving %s with %d agent(s) (backends: %v)\n", a.cfg.DBPath(a.root), a.registry.Count(), a.backends.Names())

	err = a.orch.Run(ctx)
	events.Close()
	printer.Wait()

	if dropped := events.DroppedCount(); dropped > 0 {
		fmt.Printf("%s %d event(s) dropped\n", color.YellowString("⚠"), dropped)
	}
	tracker := a.backends.Tracker()
	in, out := tracker.Total()
	fmt.Printf("Backend calls: %d, tokens in/out: %d/%d\n", tracker.Calls(), in, out)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printEvent(ev workflow.Event) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	task := ev.TaskID
	if len(task) > 8 {
		task = task[:8]
	}

	var label string
	switch ev.Type {
	case workflow.EventTaskCompleted, workflow.EventDecisionReached:
		label = color.GreenString(string(ev.Type))
	case workflow.EventTaskFailed:
		label = color.RedString(string(ev.Type))
	case workflow.EventTaskStarted, workflow.EventPhaseStarted:
		label = color.CyanString(string(ev.Type))
	default:
		label = string(ev.Type)
	}

	line := fmt.Sprintf("%s %s %s", ts, task, label)
	if ev.AgentID != "" {
		line += " " + ev.AgentID
	}
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	if ev.Error != nil {
		line += " " + color.RedString(ev.Error.Error())
	}
	fmt.Println(line)
}
