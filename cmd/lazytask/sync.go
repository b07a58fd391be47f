package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the Taskwarrior sync server",
		Long: `Run 'task sync' and reload the task list.

Background syncing is configured with sync.enabled and sync.interval and runs
inside 'lazytask tui' and 'lazytask watch'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp("sync", runSync)
		},
	}
}

func runSync(ctx context.Context, a *app) error {
	before := a.engine.CurrentGeneration()
	started := time.Now()

	fmt.Println("Syncing...")
	if err := a.engine.SyncNow(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	st := a.engine.Status()
	fmt.Printf("\033[32m✓\033[0m Synced in %s (%d tasks", time.Since(started).Round(time.Millisecond), st.Tasks)
	if st.Generation != before {
		fmt.Printf(", changes received")
	}
	fmt.Println(")")
	return nil
}
