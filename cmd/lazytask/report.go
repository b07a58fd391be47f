package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/task"
	"github.com/Jayphen/lazytask/internal/tui"
)

func newReportCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report <summary|burndown|projects|activity> [filter...]",
		Short: "Print an aggregate report",
		Long: `Compute a report over the tasks matching a filter.

Reports cover every status unless the filter names one:

  lazytask report summary
  lazytask report projects +work
  lazytask report burndown project:home`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := report.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withApp("report", func(ctx context.Context, a *app) error {
				return runReport(ctx, a, kind, strings.Join(args[1:], " "), asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}

func runReport(ctx context.Context, a *app, kind report.Kind, expr string, asJSON bool) error {
	now := time.Now()
	f, err := filter.Parse(expr, now)
	if err != nil {
		return err
	}

	res, err := a.engine.Report(ctx, f, kind)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(os.Stdout, res.Report)
	}
	printReport(os.Stdout, res.Report, now)
	return nil
}

var reportTitle = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorCyan)

func printReport(w io.Writer, r *report.Report, now time.Time) {
	switch r.Kind {
	case report.KindSummary:
		printSummary(w, r.Summary)
	case report.KindBurndown:
		printBurndown(w, r.Burndown)
	case report.KindProjects:
		printProjects(w, r.Projects, now)
	case report.KindActivity:
		printActivity(w, r.Activity, now)
	case report.KindList:
		printTaskTable(w, r.Tasks, now)
	}
}

func printSummary(w io.Writer, s *report.Summary) {
	fmt.Fprintln(w, reportTitle.Render("Summary"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Total:      %d\n", s.Total)
	for _, st := range task.Statuses {
		fmt.Fprintf(w, "  %-11s %d\n", strings.ToUpper(string(st[:1]))+string(st[1:])+":", s.Count(st))
	}
	fmt.Fprintf(w, "  Active:     %d\n", s.Active)
	fmt.Fprintf(w, "  Overdue:    %d\n", s.Overdue)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Completion: %s %.0f%%\n", tui.RenderProgressBar(s.CompletionRate*100, 20), s.CompletionRate*100)
	fmt.Fprintf(w, "  Urgency:    %.2f average over open tasks\n", s.AverageUrgency)
	fmt.Fprintf(w, "  Last 7 days: %d added, %d completed\n", s.RecentlyAdded, s.CompletedLast7Days)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  By priority:")
	for _, p := range task.Priorities {
		fmt.Fprintf(w, "    %-7s %d\n", p.String(), s.ByPriority[p])
	}
}

func printBurndown(w io.Writer, b *report.Burndown) {
	fmt.Fprintln(w, reportTitle.Render(fmt.Sprintf("Burndown (%d days)", len(b.Points))))
	fmt.Fprintln(w)

	peak := b.Initial
	for _, p := range b.Points {
		peak = max(peak, p.Remaining)
	}

	fmt.Fprintf(w, "  %-10s %5s %5s %5s\n", "DAY", "ADDED", "DONE", "OPEN")
	for _, p := range b.Points {
		bar := ""
		if peak > 0 {
			bar = strings.Repeat("█", p.Remaining*30/peak)
		}
		fmt.Fprintf(w, "  %-10s %5d %5d %5d %s\n",
			p.Start.Format("2006-01-02"), p.Added, p.Completed, p.Remaining,
			lipgloss.NewStyle().Foreground(tui.ColorBlue).Render(bar))
	}
}

func printProjects(w io.Writer, projects []report.ProjectStats, now time.Time) {
	fmt.Fprintln(w, reportTitle.Render("Projects"))
	fmt.Fprintln(w)
	if len(projects) == 0 {
		fmt.Fprintln(w, "  No projects")
		return
	}

	fmt.Fprintf(w, "  %-24s %5s %5s %5s %6s %7s %s\n", "PROJECT", "OPEN", "DONE", "WAIT", "RATE", "URGENCY", "NEXT DUE")
	for _, p := range projects {
		next := "-"
		if p.NextDue != nil {
			next = p.NextDue.Local().Format("2006-01-02")
			if p.NextDue.Before(now) {
				next = tui.StatusOverdue.Render(next)
			}
		}
		fmt.Fprintf(w, "  %-24s %5d %5d %5d %5.0f%% %7.2f %s\n",
			padTo(p.Name, 24), p.Pending, p.Completed, p.Waiting, p.CompletionRate*100, p.Urgency, next)
	}
}

func printActivity(w io.Writer, act *report.Activity, now time.Time) {
	fmt.Fprintln(w, reportTitle.Render("Recent activity"))
	fmt.Fprintln(w)
	if len(act.Events) == 0 {
		fmt.Fprintf(w, "  Nothing since %s\n", act.Since.Local().Format("2006-01-02"))
		return
	}

	for _, ev := range act.Events {
		fmt.Fprintf(w, "  %-8s %-10s %s\n",
			formatAgo(now.Sub(ev.At)),
			eventStyle(ev.Kind).Render(string(ev.Kind)),
			padTo(ev.Description, 60))
	}
	if act.Truncated {
		fmt.Fprintln(w, tui.DimStyle.Render("  (older events omitted)"))
	}
}

func eventStyle(k report.EventKind) lipgloss.Style {
	switch k {
	case report.EventCompleted:
		return tui.StatusActive
	case report.EventDeleted:
		return tui.StatusCompleted
	case report.EventCreated:
		return lipgloss.NewStyle().Foreground(tui.ColorCyan)
	default:
		return lipgloss.NewStyle().Foreground(tui.ColorYellow)
	}
}

func formatAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
