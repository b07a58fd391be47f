package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Jayphen/lazytask/internal/access"
	"github.com/Jayphen/lazytask/internal/config"
	"github.com/Jayphen/lazytask/internal/engine"
	"github.com/Jayphen/lazytask/internal/logging"
	"github.com/Jayphen/lazytask/internal/notify"
	"github.com/Jayphen/lazytask/internal/redis"
	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/syncer"
	"github.com/Jayphen/lazytask/internal/taskchampion"
	"github.com/Jayphen/lazytask/internal/taskwarrior"
	"github.com/Jayphen/lazytask/internal/types"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	client   *taskwarrior.Client
	reader   *taskchampion.Reader
	coord    *access.Coordinator
	syncer   *syncer.Syncer
	engine   *engine.Engine
	redis    *redis.Client
	mirror   *redis.Mirror
	instance string
	command  string
	log      *logging.Logger
}

type appOptions struct {
	// background enables the sync loop, periodic refresh and status mirror.
	background bool
}

func newApp(command string, opts appOptions) (*app, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{
		cfg:      cfg,
		instance: instanceID(),
		command:  command,
		log:      logging.WithCommand(command),
	}

	tw := cfg.Taskwarrior
	a.client = taskwarrior.New(taskwarrior.Options{
		Binary:       tw.Binary,
		TaskRC:       tw.TaskRC,
		DataLocation: tw.DataLocation,
		Timeout:      tw.CommandTimeout,
		SyncTimeout:  cfg.Sync.Timeout,
	})

	coordOpts := []access.Option{
		access.WithBulk(a.client.Bulk()),
		access.WithSyncTrigger(a.client),
		access.WithOptions(access.Options{
			StalenessThreshold: tw.StalenessThreshold,
			Retries:            tw.Retries,
			RetryBackoff:       tw.RetryBackoff,
			MutationTimeout:    tw.MutationTimeout,
		}),
	}
	if tw.DirectRead {
		if r := a.openReader(); r != nil {
			a.reader = r
			coordOpts = append(coordOpts, access.WithDirect(r))
		}
	}
	a.coord = access.New(a.client, coordOpts...)

	engineOpts := []engine.Option{
		engine.WithCacheTTL(cfg.Cache.TTL, cfg.Cache.ActivityTTL),
		engine.WithReportOptions(report.Options{
			BurndownDays:   cfg.Reports.BurndownDays,
			ActivityWindow: cfg.Reports.ActivityWindow,
			ActivityLimit:  cfg.Reports.ActivityLimit,
		}),
	}

	if opts.background {
		var interval time.Duration
		if cfg.Sync.Enabled {
			interval = cfg.Sync.Interval
		}
		a.syncer = syncer.New(a.coord, syncer.Options{
			Interval:         interval,
			Timeout:          cfg.Sync.Timeout,
			FailureThreshold: cfg.Sync.FailureNotifyThreshold,
			Notifier:         notify.NewDesktop(),
		})
		engineOpts = append(engineOpts,
			engine.WithSyncer(a.syncer),
			engine.WithRefreshInterval(cfg.UI.RefreshInterval),
		)

		if cfg.Redis.Enabled {
			if err := a.connectMirror(); err != nil {
				a.log.WithError(err).Warn("Status mirror disabled")
			} else {
				engineOpts = append(engineOpts, engine.WithStatusPublisher(func(st engine.Status) {
					a.mirror.Offer(statusRecord(a.instance, a.command, st, time.Now()))
				}))
				a.syncer.OnStatus(syncEvents(a.instance, a.mirror.Event))
			}
		}
	}

	a.engine = engine.New(a.coord, engineOpts...)
	return a, nil
}

// openReader returns nil when the replica cannot be opened; reads then go
// through the task command.
func (a *app) openReader() *taskchampion.Reader {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Taskwarrior.CommandTimeout)
	defer cancel()

	dir := a.cfg.Taskwarrior.DataLocation
	if dir == "" {
		var err error
		if dir, err = a.client.DataLocation(ctx); err != nil {
			a.log.WithError(err).Debug("Data location unknown, direct reads disabled")
			return nil
		}
	}
	r, err := taskchampion.Open(config.ExpandHome(dir), 0)
	if err != nil {
		a.log.WithError(err).Debug("Direct reads disabled")
		return nil
	}
	return r
}

func (a *app) connectMirror() error {
	c, err := redis.NewClient(a.cfg.Redis.URL)
	if err != nil {
		return err
	}
	a.redis = c
	a.mirror = redis.NewMirror(c)
	return nil
}

// start launches the background loops until ctx is cancelled.
func (a *app) start(ctx context.Context) {
	if a.mirror != nil {
		go a.mirror.Run(ctx, a.instance)
	}
	a.engine.Start(ctx)
}

// load blocks until the first record set is published.
func (a *app) load(ctx context.Context) error {
	_, err := a.coord.Refresh(ctx)
	return err
}

func (a *app) close() {
	if a.reader != nil {
		a.reader.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// withApp builds an app for a one-shot command, loads the record set and
// runs fn.
func withApp(command string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(command, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if err := a.load(ctx); err != nil {
		if storeUnavailable(err) {
			return fmt.Errorf("failed to read tasks (run 'lazytask doctor'): %w", err)
		}
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	return fn(ctx, a)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func statusRecord(instance, command string, st engine.Status, now time.Time) *types.StatusRecord {
	rec := &types.StatusRecord{
		Instance:     instance,
		PID:          os.Getpid(),
		Command:      command,
		Timestamp:    now.UnixMilli(),
		Generation:   st.Generation,
		Tasks:        st.Tasks,
		Skipped:      st.Skipped,
		Source:       st.Source,
		Stale:        st.Stale,
		Warning:      st.Warning,
		SyncEnabled:  st.Sync.Enabled,
		LastSyncErr:  st.Sync.LastError,
		SyncFailures: st.Sync.ConsecutiveFailures,
		CacheHits:    st.Cache.Hits,
		CacheMisses:  st.Cache.Misses,
		CacheEntries: st.Cache.Entries,
	}
	if !st.Sync.LastSuccess.IsZero() {
		rec.LastSync = st.Sync.LastSuccess.UnixMilli()
	}
	return rec
}

// syncEvents turns syncer status changes into one event per finished
// attempt.
func syncEvents(instance string, emit func(*types.SyncEvent)) func(syncer.Status) {
	var (
		mu          sync.Mutex
		lastSuccess time.Time
		failures    int
	)
	return func(st syncer.Status) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case st.LastSuccess.After(lastSuccess):
			emit(&types.SyncEvent{
				Instance:   instance,
				Timestamp:  st.LastSuccess.UnixMilli(),
				OK:         true,
				Generation: st.Generation,
			})
		case st.ConsecutiveFailures > failures:
			emit(&types.SyncEvent{
				Instance:   instance,
				Timestamp:  st.LastAttempt.UnixMilli(),
				Error:      st.LastError,
				Generation: st.Generation,
			})
		}
		lastSuccess = st.LastSuccess
		failures = st.ConsecutiveFailures
	}
}

// storeUnavailable reports whether err means the task store could not be reached.
func storeUnavailable(err error) bool {
	return errors.Is(err, access.ErrUnavailable) || errors.Is(err, taskwarrior.ErrNotInstalled)
}
