package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/task"
	"github.com/Jayphen/lazytask/internal/tui"
)

func newListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [filter...]",
		Short: "List tasks",
		Long: `List tasks matching a filter, most urgent first.

The filter uses Taskwarrior syntax, for example:

  lazytask list project:home +errand due.before:tomorrow
  lazytask list status:completed

Without a filter, ui.default_filter is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp("list", func(ctx context.Context, a *app) error {
				return runList(ctx, a, strings.Join(args, " "), asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}

func runList(ctx context.Context, a *app, expr string, asJSON bool) error {
	if expr == "" {
		expr = a.cfg.UI.DefaultFilter
	}
	now := time.Now()
	f, err := filter.Parse(expr, now)
	if err != nil {
		return err
	}

	res, err := a.engine.Report(ctx, f, report.KindList)
	if err != nil {
		return err
	}
	tasks := res.Report.Tasks

	if asJSON {
		return writeJSON(os.Stdout, tasks)
	}

	if len(tasks) == 0 {
		fmt.Println("No matching tasks")
		return nil
	}

	printTaskTable(os.Stdout, tasks, now)
	return nil
}

func printTaskTable(w io.Writer, tasks []task.Task, now time.Time) {
	header := fmt.Sprintf("%-9s %-3s %-40s %-16s %-10s %s", "ID", "PRI", "DESCRIPTION", "PROJECT", "DUE", "URG")
	fmt.Fprintln(w, lipgloss.NewStyle().Bold(true).Foreground(tui.ColorGray).Render(header))
	fmt.Fprintln(w, strings.Repeat("-", 90))

	var active, overdue int
	for _, t := range tasks {
		desc := t.Description
		if len(t.Annotations) > 0 {
			desc = fmt.Sprintf("%s [%d]", desc, len(t.Annotations))
		}
		descStyle := lipgloss.NewStyle()
		switch {
		case t.IsOverdue(now):
			overdue++
			descStyle = tui.StatusOverdue
		case t.IsActive():
			descStyle = tui.StatusActive
		case t.Status.IsClosed():
			descStyle = tui.StatusCompleted
		}
		if t.IsActive() {
			active++
		}

		due := "-"
		if t.Due != nil {
			due = t.Due.Local().Format("2006-01-02")
		}

		fmt.Fprintf(w, "%-9s %s %s %-16s %-10s %5.1f\n",
			t.DisplayID(),
			tui.GetPriorityStyle(t.Priority).Render(fmt.Sprintf("%-3s", t.Priority.Code())),
			descStyle.Render(padTo(desc, 40)),
			ansi.Truncate(t.Project, 16, "…"),
			due,
			t.Urgency,
		)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %d tasks, %d active, %d overdue\n", len(tasks), active, overdue)
}

// padTo truncates or pads s to exactly n cells.
func padTo(s string, n int) string {
	s = ansi.Truncate(s, n, "…")
	if w := ansi.StringWidth(s); w < n {
		s += strings.Repeat(" ", n-w)
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
