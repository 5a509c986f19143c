package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old completed and failed tasks",
	Long: `Delete completed and failed tasks, with their proposals, decisions and
transition history, that have not changed for the given age.

Routing outcomes are kept so calibration still sees them.

Examples:
  agora cleanup                    # tasks older than 30 days
  agora cleanup --older-than 72h`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 30*24*time.Hour, "Minimum age of tasks to delete")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.db.PurgeTerminalTasks(cleanupOlderThan)
	if err != nil {
		return err
	}
	fmt.Printf("%s Purged %d task(s) older than %s\n", color.GreenString("✓"), n, cleanupOlderThan)
	return nil
}
