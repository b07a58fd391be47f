// Package main is the entry point for the lazytask CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/config"
	"github.com/Jayphen/lazytask/internal/logging"
)

// Version is set at build time.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lazytask",
		Short: "Browse and manage Taskwarrior tasks",
		Long: `lazytask is a terminal front-end for Taskwarrior.

It keeps an in-memory snapshot of the task store, serves cached reports
(summary, burndown, projects, activity) over it, and applies changes
through the task command.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// The TUI owns the terminal; log only to file there.
			initLogging(cmd.Name() == "tui")
		},
	}

	rootCmd.AddCommand(
		newTUICmd(),
		newListCmd(),
		newReportCmd(),
		newAddCmd(),
		newModifyCmd(),
		newDoneCmd(),
		newDeleteCmd(),
		newDuplicateCmd(),
		newAnnotateCmd(),
		newStartCmd(),
		newStopCmd(),
		newSyncCmd(),
		newExportCmd(),
		newImportCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newDoctorCmd(),
		newVersionCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging initializes the logger from config.
func initLogging(quiet bool) {
	cfg, err := config.Get()
	if err != nil {
		_ = logging.Init(&logging.Config{Level: logging.WarnLevel, Quiet: quiet})
		return
	}

	lc := logging.LoggingConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.File,
		JSON:       cfg.Logging.JSON,
		Console:    cfg.Logging.Console && !quiet,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Quiet:      quiet,
	}

	if err := logging.InitFromLogConfig(lc); err != nil {
		_ = logging.Init(&logging.Config{Level: logging.WarnLevel, Quiet: quiet})
	}
}
