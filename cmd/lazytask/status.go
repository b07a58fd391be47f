package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/config"
	"github.com/Jayphen/lazytask/internal/redis"
	"github.com/Jayphen/lazytask/internal/tui"
	"github.com/Jayphen/lazytask/internal/types"
)

func newStatusCmd() *cobra.Command {
	var (
		asJSON bool
		events int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show running lazytask instances",
		Long: `Show the status records that running 'lazytask tui' and 'lazytask watch'
processes publish to Redis (redis.enabled), along with recent sync events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(asJSON, events)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().IntVar(&events, "events", 5, "Number of recent sync events to show")

	return cmd
}

type statusOutput struct {
	Generation uint64                `json:"generation"`
	Instances  []*types.StatusRecord `json:"instances"`
	Events     []*types.SyncEvent    `json:"events"`
}

func runStatus(asJSON bool, events int) error {
	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := collectStatus(ctx, client, events)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(os.Stdout, out)
	}
	printStatus(os.Stdout, out, cfg.Sync.FailureNotifyThreshold, time.Now())
	return nil
}

func collectStatus(ctx context.Context, client *redis.Client, events int) (*statusOutput, error) {
	statuses, err := client.GetStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	gen, err := client.GetGeneration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation: %w", err)
	}

	out := &statusOutput{Generation: gen, Instances: make([]*types.StatusRecord, 0, len(statuses))}
	for _, rec := range statuses {
		out.Instances = append(out.Instances, rec)
	}
	sort.Slice(out.Instances, func(i, j int) bool {
		return out.Instances[i].Instance < out.Instances[j].Instance
	})

	if events > 0 {
		if out.Events, err = client.GetEvents(ctx, events); err != nil {
			return nil, fmt.Errorf("failed to read sync events: %w", err)
		}
	}
	return out, nil
}

func printStatus(w io.Writer, out *statusOutput, failureThreshold int, now time.Time) {
	fmt.Fprintf(w, "Generation: %d\n\n", out.Generation)

	if len(out.Instances) == 0 {
		fmt.Fprintln(w, "No running lazytask instances")
	} else {
		header := fmt.Sprintf("%-28s %-7s %-8s %6s %-8s %-10s %s", "INSTANCE", "COMMAND", "STATUS", "TASKS", "SOURCE", "SYNC", "GEN")
		fmt.Fprintln(w, lipgloss.NewStyle().Bold(true).Foreground(tui.ColorGray).Render(header))
		fmt.Fprintln(w, strings.Repeat("-", 80))

		for _, rec := range out.Instances {
			source := rec.Source
			if rec.Stale {
				source += "*"
			}
			fmt.Fprintf(w, "%-28s %-7s %s %6d %-8s %s %d\n",
				padTo(rec.Instance, 28),
				rec.Command,
				instanceStyle(types.DetermineInstanceStatus(rec, now)),
				rec.Tasks,
				source,
				syncStyle(types.DetermineSyncHealth(rec, failureThreshold)),
				rec.Generation,
			)
			if rec.Warning != "" {
				fmt.Fprintf(w, "  %s\n", tui.WarningStyle.Render(rec.Warning))
			}
			if rec.LastSyncErr != "" {
				fmt.Fprintf(w, "  %s\n", tui.ErrorStyle.Render("sync: "+rec.LastSyncErr))
			}
		}
	}

	if len(out.Events) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Recent syncs:")
	for _, ev := range out.Events {
		at := time.UnixMilli(ev.Timestamp)
		result := tui.StatusActive.Render("ok")
		if !ev.OK {
			result = tui.ErrorStyle.Render("failed: " + ev.Error)
		}
		fmt.Fprintf(w, "  %-8s %-28s %s\n", formatAgo(now.Sub(at)), padTo(ev.Instance, 28), result)
	}
}

func instanceStyle(s types.InstanceStatus) string {
	switch s {
	case types.InstanceLive:
		return tui.StatusActive.Render("● live  ")
	case types.InstanceStale:
		return tui.WarningStyle.Render("◐ stale ")
	default:
		return tui.StatusCompleted.Render("○ gone  ")
	}
}

func syncStyle(h types.SyncHealth) string {
	label := fmt.Sprintf("%-10s", h)
	switch h {
	case types.SyncHealthy:
		return tui.StatusActive.Render(label)
	case types.SyncDegraded:
		return tui.WarningStyle.Render(label)
	case types.SyncFailing:
		return tui.ErrorStyle.Render(label)
	default:
		return tui.DimStyle.Render(label)
	}
}
