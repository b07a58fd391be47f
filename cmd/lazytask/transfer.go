package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/task"
)

func newExportCmd() *cobra.Command {
	var output, format string

	cmd := &cobra.Command{
		Use:   "export [filter...]",
		Short: "Export tasks as Taskwarrior JSON or CSV",
		Long: `Write the tasks matching a filter as a JSON array that 'task import' and
'lazytask import' accept, or as CSV for spreadsheets. CSV cannot be imported
back. Every status is exported unless the filter names one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("unknown format %q (want json or csv)", format)
			}
			return withApp("export", func(ctx context.Context, a *app) error {
				return runExport(a, strings.Join(args, " "), format, output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "File to write (- for stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or csv")

	return cmd
}

func runExport(a *app, expr, format, output string) error {
	f, err := filter.Parse(expr, time.Now())
	if err != nil {
		return err
	}
	tasks := a.engine.Tasks(f)

	var buf bytes.Buffer
	if err := encodeTasks(&buf, tasks, format); err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	if output == "-" {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "Exported %d tasks to %s\n", len(tasks), output)
	return nil
}

func encodeTasks(w io.Writer, tasks []task.Task, format string) error {
	if format == "csv" {
		return task.WriteCSV(w, tasks)
	}
	data, err := task.EncodeImport(tasks)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import tasks from Taskwarrior JSON",
		Long: `Import tasks from a JSON array or newline-delimited JSON file (- for stdin).

Records that fail validation are skipped and reported. Existing tasks with the
same uuid are updated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp("import", func(ctx context.Context, a *app) error {
				return runImport(ctx, a, args[0])
			})
		},
	}
}

func runImport(ctx context.Context, a *app, path string) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}

	tasks, skipped, err := task.DecodeExport(data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no valid tasks in %s (%d skipped)", path, skipped)
	}

	if err := a.engine.Import(ctx, tasks); err != nil {
		return err
	}

	fmt.Printf("\033[32m✓\033[0m Imported %d tasks", len(tasks))
	if skipped > 0 {
		fmt.Printf(" (%d malformed records skipped)", skipped)
	}
	fmt.Println()
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
