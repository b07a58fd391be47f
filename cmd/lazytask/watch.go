package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jayphen/lazytask/internal/engine"
	"github.com/Jayphen/lazytask/internal/logging"
)

// watchHeartbeat is how often watch republishes its status record so readers
// see it as live.
const watchHeartbeat = 30 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the sync loop in the foreground",
		Long: `Run lazytask headless: keep the task snapshot fresh, sync on sync.interval,
send a desktop notification after repeated sync failures and, when
redis.enabled is set, publish status for 'lazytask status'.

Stop with Ctrl-C.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp("watch", appOptions{background: true})
	if err != nil {
		return err
	}
	defer a.close()

	log := a.log.WithField("instance", a.instance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.start(ctx)

	log.WithField("interval", a.cfg.Sync.Interval.String()).Info("watch started")
	fmt.Printf("[Watch] Started as %s\n", a.instance)
	if a.cfg.Sync.Enabled {
		fmt.Printf("[Watch] Syncing every %v\n", a.cfg.Sync.Interval)
	} else {
		fmt.Println("[Watch] Scheduled sync disabled (sync.enabled=false)")
	}
	if a.mirror == nil {
		fmt.Println("[Watch] Status mirror disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	ticker := time.NewTicker(watchHeartbeat)
	defer ticker.Stop()

	select {
	case <-a.engine.Loaded():
		reportWatch(log, a.engine.Status())
	case sig := <-sigChan:
		fmt.Printf("\n[Watch] Received %v, shutting down...\n", sig)
		return nil
	}

	for {
		select {
		case <-ticker.C:
			st := a.engine.Status()
			if a.mirror != nil {
				a.mirror.Offer(statusRecord(a.instance, a.command, st, time.Now()))
			}
			reportWatch(log, st)
		case <-hup:
			// SIGHUP forces a sync, like pressing S in the TUI.
			log.Info("sync requested by SIGHUP")
			a.engine.RequestSync()
		case sig := <-sigChan:
			log.WithField("signal", sig.String()).Info("received shutdown signal")
			fmt.Printf("\n[Watch] Received %v, shutting down...\n", sig)
			return nil
		}
	}
}

func reportWatch(log *logging.Logger, st engine.Status) {
	line := fmt.Sprintf("[Watch] %s gen %d, %d tasks via %s", time.Now().Format("15:04:05"), st.Generation, st.Tasks, st.Source)
	if st.Sync.ConsecutiveFailures > 0 {
		line += fmt.Sprintf(", %d failed syncs", st.Sync.ConsecutiveFailures)
	}
	if st.Warning != "" {
		line += ", " + st.Warning
	}
	fmt.Println(line)
	log.WithGeneration(st.Generation).Debug("watch status")
}
