package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/config"
	"github.com/Jayphen/lazytask/internal/taskwarrior"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lazytask %s\n", Version)
			fmt.Printf("  go: %s\n", runtime.Version())
			fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("  taskwarrior: %s\n", taskwarriorVersion())
		},
	}
}

func taskwarriorVersion() string {
	cfg, err := config.Get()
	if err != nil {
		return "(unknown)"
	}
	client := taskwarrior.New(taskwarrior.Options{
		Binary: cfg.Taskwarrior.Binary,
		TaskRC: cfg.Taskwarrior.TaskRC,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := client.Version(ctx)
	if err != nil {
		return "(not found)"
	}
	return v
}
