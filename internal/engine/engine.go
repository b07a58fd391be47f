// Package engine is the facade the UI and CLI talk to. It joins the data
// access coordinator, the report cache and the sync loop.
//
// Query never blocks: a miss starts the computation in the background and
// returns a pending result whose Done channel closes when it resolves. The
// cache table follows the coordinator's generation, so a query issued after
// a mutation returns can never see a report derived from older records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Jayphen/lazytask/internal/access"
	"github.com/Jayphen/lazytask/internal/cache"
	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/logging"
	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/syncer"
	"github.com/Jayphen/lazytask/internal/task"
)

// DefaultClockTTL bounds how long reports that depend on the current time
// (overdue filters, activity windows) are reused.
const DefaultClockTTL = time.Minute

// clockSuffix marks cache kinds whose value depends on the clock.
const clockSuffix = "@clock"

// State is the lifecycle of a query result.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Result is the answer to a query.
type Result struct {
	State      State
	Generation uint64
	Report     *report.Report
	ComputedAt time.Time
	Err        error
	// Done is closed when a pending computation resolves. Nil otherwise.
	Done <-chan struct{}
}

// Status summarises the engine for status bars and the status mirror.
type Status struct {
	Generation uint64        `json:"generation"`
	Loaded     bool          `json:"loaded"`
	Stale      bool          `json:"stale"`
	Source     string        `json:"source"`
	Tasks      int           `json:"tasks"`
	Skipped    int           `json:"skipped"`
	FetchedAt  time.Time     `json:"fetchedAt,omitzero"`
	Warning    string        `json:"warning,omitempty"`
	Sync       syncer.Status `json:"sync"`
	Cache      cache.Stats   `json:"cache"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithSyncer attaches the background sync loop.
func WithSyncer(s *syncer.Syncer) Option {
	return func(e *Engine) { e.syncer = s }
}

// WithReportOptions sets report parameters. Now is ignored; the engine's
// clock is used.
func WithReportOptions(o report.Options) Option {
	return func(e *Engine) { e.reportOpts = o }
}

// WithCacheTTL sets the general cache TTL and the TTL for clock-dependent
// reports.
func WithCacheTTL(ttl, clockTTL time.Duration) Option {
	return func(e *Engine) {
		e.ttl = ttl
		if clockTTL > 0 {
			e.clockTTL = clockTTL
		}
	}
}

// WithRefreshInterval re-reads the store periodically so changes made by
// other processes show up. Zero disables polling.
func WithRefreshInterval(d time.Duration) Option {
	return func(e *Engine) { e.refreshInterval = d }
}

// WithStatusPublisher registers fn to receive status updates after every
// publish and sync attempt. fn must not block.
func WithStatusPublisher(fn func(Status)) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, fn) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine serves cached reports over the coordinator's record set.
type Engine struct {
	coord  *access.Coordinator
	syncer *syncer.Syncer
	cache  *cache.Cache[*report.Report]

	reportOpts      report.Options
	ttl             time.Duration
	clockTTL        time.Duration
	refreshInterval time.Duration
	publishers      []func(Status)
	now             func() time.Time

	loadedOnce sync.Once
	loaded     chan struct{}

	log *logging.Logger
}

// New creates an Engine over coord.
func New(coord *access.Coordinator, opts ...Option) *Engine {
	e := &Engine{
		coord:    coord,
		clockTTL: DefaultClockTTL,
		now:      time.Now,
		loaded:   make(chan struct{}),
		log:      logging.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	copts := []cache.Option{cache.WithTTL(e.ttl), cache.WithClock(e.now)}
	for _, k := range append([]report.Kind{report.KindList}, report.Kinds...) {
		copts = append(copts, cache.WithKindTTL(string(k)+clockSuffix, e.clockTTL))
	}
	e.cache = cache.New[*report.Report](copts...)

	if snap := coord.Snapshot(); snap.Loaded {
		e.onPublish(snap)
	}
	coord.OnPublish(e.onPublish)
	if e.syncer != nil {
		e.syncer.OnStatus(func(syncer.Status) { e.publishStatus() })
	}
	return e
}

// Start loads the record set in the background and runs the sync and
// refresh loops until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		if _, err := e.coord.Refresh(ctx); err != nil {
			e.log.WithError(err).Warn("Initial load failed")
			e.publishStatus()
		}
	}()
	if e.syncer != nil {
		go e.syncer.Run(ctx)
	}
	if e.refreshInterval > 0 {
		go e.refreshLoop(ctx)
	}
}

// Loaded is closed once the first record set has been published.
func (e *Engine) Loaded() <-chan struct{} {
	return e.loaded
}

// Query returns the report for (f, kind) without blocking.
func (e *Engine) Query(f filter.Spec, kind report.Kind) Result {
	if _, err := report.ParseKind(string(kind)); err != nil {
		return Result{State: StateFailed, Err: err}
	}
	snap := e.coord.Snapshot()
	if !snap.Loaded {
		return Result{State: StatePending, Done: e.loaded}
	}

	key, fn := e.job(snap, f, kind)
	l := e.cache.Fetch(key, fn, func(err error) {
		e.log.WithError(err).WithFields(map[string]interface{}{
			"kind":   string(kind),
			"filter": fmt.Sprintf("%016x", f.Fingerprint()),
		}).Error("Report computation failed")
	})
	if !l.Ready {
		return Result{State: StatePending, Generation: snap.Generation, Done: l.Done}
	}
	return readyResult(l.Entry)
}

// Report returns the report for (f, kind), computing it if necessary. It
// loads the record set first if nothing has been published yet.
func (e *Engine) Report(ctx context.Context, f filter.Spec, kind report.Kind) (Result, error) {
	if _, err := report.ParseKind(string(kind)); err != nil {
		return Result{State: StateFailed, Err: err}, err
	}
	snap := e.coord.Snapshot()
	if !snap.Loaded {
		var err error
		if snap, err = e.coord.Refresh(ctx); err != nil {
			return Result{State: StateFailed, Err: err}, err
		}
	}

	key, fn := e.job(snap, f, kind)
	entry, err := e.cache.GetOrCompute(ctx, key, fn)
	if err != nil {
		return Result{State: StateFailed, Generation: snap.Generation, Err: err}, err
	}
	return readyResult(entry), nil
}

// Tasks returns the tasks in the current snapshot matching f, most urgent
// first.
func (e *Engine) Tasks(f filter.Spec) []task.Task {
	snap := e.coord.Snapshot()
	return report.SortByUrgency(f.Apply(snap.Tasks, e.now()))
}

// Mutate applies m. When it returns without error the generation has
// already advanced.
func (e *Engine) Mutate(ctx context.Context, m task.Mutation) (task.Outcome, error) {
	out, err := e.coord.Apply(ctx, m)
	if err != nil {
		e.log.WithError(err).WithField("kind", string(m.Kind)).Warn("Mutation failed")
	}
	return out, err
}

// Refresh re-reads the record set.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err := e.coord.Refresh(ctx)
	return err
}

// Reconcile forces a full re-export of the store.
func (e *Engine) Reconcile(ctx context.Context) error {
	_, err := e.coord.Reconcile(ctx)
	return err
}

// Import writes tasks to the store in bulk.
func (e *Engine) Import(ctx context.Context, tasks []task.Task) error {
	_, err := e.coord.Import(ctx, tasks)
	return err
}

// CurrentGeneration returns the generation of the published record set.
func (e *Engine) CurrentGeneration() uint64 {
	return e.coord.Generation()
}

// RequestSync asks for a sync and returns immediately.
func (e *Engine) RequestSync() {
	if e.syncer == nil {
		e.log.Debug("Sync requested but no sync loop configured")
		return
	}
	e.syncer.Request()
}

// SyncNow runs a sync on the calling goroutine.
func (e *Engine) SyncNow(ctx context.Context) error {
	if e.syncer != nil {
		return e.syncer.SyncNow(ctx)
	}
	_, err := e.coord.Sync(ctx)
	return err
}

// Status returns the engine's current status.
func (e *Engine) Status() Status {
	snap := e.coord.Snapshot()
	st := Status{
		Generation: snap.Generation,
		Loaded:     snap.Loaded,
		Stale:      snap.Stale,
		Source:     snap.Source.String(),
		Tasks:      len(snap.Tasks),
		Skipped:    snap.Skipped,
		FetchedAt:  snap.FetchedAt,
		Cache:      e.cache.Stats(),
	}
	if w := e.coord.LastWarning(); w != nil {
		st.Warning = w.Error()
	}
	if e.syncer != nil {
		st.Sync = e.syncer.Status()
	}
	return st
}

// CacheStats returns the report cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

func (e *Engine) job(snap *access.Snapshot, f filter.Spec, kind report.Kind) (cache.Key, func() (*report.Report, error)) {
	at := e.now()
	ck := string(kind)
	if f.UsesClock() || kind == report.KindActivity || kind == report.KindSummary {
		ck += clockSuffix
	}
	// Burndown buckets end today, so each local day gets its own entry.
	if kind == report.KindBurndown {
		loc := e.reportOpts.Location
		if loc == nil {
			loc = at.Location()
		}
		ck += "@" + at.In(loc).Format(time.DateOnly)
	}
	key := cache.Key{Generation: snap.Generation, Filter: f.Canonical(), Kind: ck}

	tasks := snap.Tasks
	fn := func() (*report.Report, error) {
		opts := e.reportOpts
		opts.Now = at
		return report.Compute(kind, f.Apply(tasks, opts.Now), opts)
	}
	return key, fn
}

func (e *Engine) onPublish(snap *access.Snapshot) {
	if e.cache.Advance(snap.Generation) {
		e.log.WithGeneration(snap.Generation).Debug("Report cache advanced")
	}
	if snap.Loaded {
		e.loadedOnce.Do(func() { close(e.loaded) })
	}
	e.publishStatus()
}

func (e *Engine) publishStatus() {
	if len(e.publishers) == 0 {
		return
	}
	st := e.Status()
	for _, fn := range e.publishers {
		fn(st)
	}
}

func (e *Engine) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.coord.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.log.WithError(err).Debug("Periodic refresh failed")
			}
		}
	}
}

func readyResult(entry cache.Entry[*report.Report]) Result {
	return Result{
		State:      StateReady,
		Generation: entry.Generation,
		Report:     entry.Value,
		ComputedAt: entry.ComputedAt,
	}
}
