package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/tui"
)

func newTUICmd() *cobra.Command {
	var (
		filterExpr string
		reportKind string
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal user interface",
		Long: `Launch the interactive TUI.

The task list opens with ui.default_filter unless --filter is given. Key
bindings are listed in the status bar.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(filterExpr, reportKind)
		},
	}

	cmd.Flags().StringVar(&filterExpr, "filter", "", "Initial filter expression")
	cmd.Flags().StringVar(&reportKind, "report", "", "Report shown in the side panel")

	return cmd
}

func runTUI(filterExpr, reportKind string) error {
	a, err := newApp("tui", appOptions{background: true})
	if err != nil {
		return err
	}
	defer a.close()

	if filterExpr == "" {
		filterExpr = a.cfg.UI.DefaultFilter
	}
	if reportKind == "" {
		reportKind = a.cfg.UI.DefaultReport
	}
	kind, err := report.ParseKind(reportKind)
	if err != nil {
		return err
	}
	if kind == report.KindList {
		return fmt.Errorf("--report must be one of summary, burndown, projects, activity")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.start(ctx)

	model := tui.NewModel(a.engine, tui.Options{
		Version: Version,
		Filter:  filterExpr,
		Report:  kind,
		Command: a.client.Interactive,
	})
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
