package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Jayphen/lazytask/internal/config"
	"github.com/Jayphen/lazytask/internal/notify"
	"github.com/Jayphen/lazytask/internal/redis"
	"github.com/Jayphen/lazytask/internal/taskchampion"
	"github.com/Jayphen/lazytask/internal/taskwarrior"
	"github.com/Jayphen/lazytask/internal/tui"
)

// CheckStatus is the outcome of one doctor check.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
	CheckSkip CheckStatus = "skip"
)

// CheckResult is one line of the doctor report.
type CheckResult struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

type check struct {
	name string
	run  func(ctx context.Context) (CheckStatus, string)
}

func newDoctorCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the lazytask setup",
		Long: `Check that lazytask can reach everything it depends on:

- the task binary and its version
- the Taskwarrior data directory and TaskChampion replica (direct reads)
- a full export through the task command
- the Redis status mirror, when enabled
- desktop notifications`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}

func runDoctor(asJSON bool) error {
	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := runChecks(ctx, doctorChecks(cfg))

	if asJSON {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		printChecks(os.Stdout, results)
	}

	for _, r := range results {
		if r.Status == CheckFail {
			return errors.New("some checks failed")
		}
	}
	return nil
}

func doctorChecks(cfg *config.Config) []check {
	tw := cfg.Taskwarrior
	client := taskwarrior.New(taskwarrior.Options{
		Binary:       tw.Binary,
		TaskRC:       tw.TaskRC,
		DataLocation: tw.DataLocation,
		Timeout:      tw.CommandTimeout,
	})

	return []check{
		{"task binary", func(ctx context.Context) (CheckStatus, string) {
			path, err := client.LookPath()
			if err != nil {
				return CheckFail, err.Error()
			}
			v, err := client.Version(ctx)
			if err != nil {
				return CheckFail, err.Error()
			}
			return CheckOK, fmt.Sprintf("%s (%s)", path, v)
		}},
		{"export", func(ctx context.Context) (CheckStatus, string) {
			start := time.Now()
			tasks, skipped, err := client.Export(ctx)
			if err != nil {
				return CheckFail, err.Error()
			}
			msg := fmt.Sprintf("%d tasks in %s", len(tasks), time.Since(start).Round(time.Millisecond))
			if skipped > 0 {
				return CheckWarn, fmt.Sprintf("%s, %d malformed records skipped", msg, skipped)
			}
			return CheckOK, msg
		}},
		{"direct read", func(ctx context.Context) (CheckStatus, string) {
			if !tw.DirectRead {
				return CheckSkip, "taskwarrior.direct_read is off"
			}
			dir := tw.DataLocation
			if dir == "" {
				var err error
				if dir, err = client.DataLocation(ctx); err != nil {
					return CheckWarn, err.Error()
				}
			}
			r, err := taskchampion.Open(config.ExpandHome(dir), 0)
			if err != nil {
				return CheckWarn, fmt.Sprintf("falling back to the task command: %v", err)
			}
			defer r.Close()
			tasks, skipped, err := r.FetchAll(ctx)
			if err != nil {
				return CheckWarn, err.Error()
			}
			msg := fmt.Sprintf("%s (%d tasks)", r.Path(), len(tasks))
			if skipped > 0 {
				return CheckWarn, fmt.Sprintf("%s, %d malformed rows skipped", msg, skipped)
			}
			return CheckOK, msg
		}},
		{"redis", func(ctx context.Context) (CheckStatus, string) {
			if !cfg.Redis.Enabled {
				return CheckSkip, "redis.enabled is off"
			}
			c, err := redis.NewClient(cfg.Redis.URL)
			if err != nil {
				return CheckFail, err.Error()
			}
			defer c.Close()
			gen, err := c.GetGeneration(ctx)
			if err != nil {
				return CheckFail, err.Error()
			}
			return CheckOK, fmt.Sprintf("%s (generation %d)", maskURL(cfg.Redis.URL), gen)
		}},
		{"notifications", func(ctx context.Context) (CheckStatus, string) {
			if cfg.Sync.FailureNotifyThreshold <= 0 {
				return CheckSkip, "sync.failure_notify_threshold is 0"
			}
			if !notify.NewDesktop().Supported() {
				return CheckWarn, "not supported on this platform"
			}
			return CheckOK, fmt.Sprintf("after %d failed syncs", cfg.Sync.FailureNotifyThreshold)
		}},
	}
}

// runChecks runs every check concurrently and returns results in order.
func runChecks(ctx context.Context, checks []check) []CheckResult {
	results := make([]CheckResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			status, msg := c.run(gctx)
			results[i] = CheckResult{Name: c.name, Status: status, Message: msg}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printChecks(w io.Writer, results []CheckResult) {
	header := fmt.Sprintf("%-16s %-8s %s", "CHECK", "STATUS", "DETAILS")
	fmt.Fprintln(w, lipgloss.NewStyle().Bold(true).Foreground(tui.ColorGray).Render(header))
	fmt.Fprintln(w, strings.Repeat("-", 70))

	counts := map[CheckStatus]int{}
	for _, r := range results {
		counts[r.Status]++
		fmt.Fprintf(w, "%-16s %s %s\n", r.Name, checkStyle(r.Status), r.Message)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d ok, %d warnings, %d failed, %d skipped\n",
		counts[CheckOK], counts[CheckWarn], counts[CheckFail], counts[CheckSkip])
}

func checkStyle(s CheckStatus) string {
	switch s {
	case CheckOK:
		return tui.StatusActive.Render("● ok    ")
	case CheckWarn:
		return tui.WarningStyle.Render("◐ warn  ")
	case CheckFail:
		return tui.ErrorStyle.Render("✗ fail  ")
	default:
		return tui.DimStyle.Render("○ skip  ")
	}
}
