// Package access coordinates every read and write against the external task
// store. It owns the published record-set snapshot and its generation id.
//
// Reads try the direct backend first, fall back to the command backend (with
// retry and backoff) and finally to the bulk channel. Mutations always go
// through the command backend and are serialised; readers keep using the
// last published snapshot while a mutation is in flight.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Jayphen/lazytask/internal/logging"
	"github.com/Jayphen/lazytask/internal/task"
)

// Defaults for Options.
const (
	DefaultStalenessThreshold = 2 * time.Second
	DefaultRetries            = 2
	DefaultRetryBackoff       = 250 * time.Millisecond
	DefaultMutationTimeout    = 30 * time.Second
)

// Snapshot is an immutable published record set. Tasks is shared between
// readers and must not be modified.
type Snapshot struct {
	Generation uint64
	Tasks      []task.Task
	FetchedAt  time.Time
	Source     Backend
	// Skipped counts malformed records left out of Tasks.
	Skipped int
	// Stale is set when a mutation succeeded but the record set could not
	// be re-read afterwards.
	Stale bool
	// Loaded is false until the first successful read.
	Loaded bool

	digest uint64
}

// Options tunes the Coordinator.
type Options struct {
	// StalenessThreshold is how far the direct backend's data may lag behind
	// the last mutation before reads fall back to the command backend.
	StalenessThreshold time.Duration
	// Retries is the number of extra attempts for failing command reads.
	Retries      int
	RetryBackoff time.Duration
	// MutationTimeout bounds a mutation once started. Mutations are detached
	// from the caller's context so they complete or fail definitively.
	MutationTimeout time.Duration
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StalenessThreshold <= 0 {
		o.StalenessThreshold = DefaultStalenessThreshold
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.MutationTimeout <= 0 {
		o.MutationTimeout = DefaultMutationTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDirect enables the direct read backend.
func WithDirect(r ReadStore) Option {
	return func(c *Coordinator) { c.direct = r }
}

// WithBulk enables the bulk export/import channel.
func WithBulk(b BulkChannel) Option {
	return func(c *Coordinator) { c.bulk = b }
}

// WithSyncTrigger enables Sync.
func WithSyncTrigger(s SyncTrigger) Option {
	return func(c *Coordinator) { c.trigger = s }
}

// WithOptions sets tuning options.
func WithOptions(o Options) Option {
	return func(c *Coordinator) { c.opts = o }
}

// Coordinator is the single writer of the record-set snapshot.
type Coordinator struct {
	direct  ReadStore
	command CommandRunner
	bulk    BulkChannel
	trigger SyncTrigger
	opts    Options

	snap atomic.Pointer[Snapshot]

	// mu serialises refreshes, mutations and reconciliation.
	mu           sync.Mutex
	lastMutation time.Time

	warning atomic.Pointer[Error]

	listenersMu sync.RWMutex
	listeners   []func(*Snapshot)

	log *logging.Logger
}

// New creates a Coordinator. The command runner is required; the other
// backends are optional.
func New(command CommandRunner, opts ...Option) *Coordinator {
	c := &Coordinator{
		command: command,
		opts:    Options{Retries: DefaultRetries},
		log:     logging.WithComponent("access"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.opts = c.opts.withDefaults()
	c.snap.Store(&Snapshot{})
	return c
}

// Snapshot returns the last published snapshot. It never blocks and never
// returns nil.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Generation returns the current generation id.
func (c *Coordinator) Generation() uint64 {
	return c.snap.Load().Generation
}

// LastWarning returns the most recent inconsistency detected after a
// mutation, or nil.
func (c *Coordinator) LastWarning() *Error {
	return c.warning.Load()
}

// OnPublish registers fn to be called with every newly published snapshot.
// fn runs on the publishing goroutine and must not block.
func (c *Coordinator) OnPublish(fn func(*Snapshot)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

// FetchAll re-reads the record set and returns it.
func (c *Coordinator) FetchAll(ctx context.Context) ([]task.Task, error) {
	snap, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tasks, nil
}

// Refresh re-reads the record set through the fallback chain. The
// generation is bumped only when the content changed (or on first load).
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.readLocked(ctx)
	if err != nil {
		return c.snap.Load(), err
	}
	return c.publishLocked(b, false), nil
}

// Reconcile forces a full bulk export and always publishes a new generation.
func (c *Coordinator) Reconcile(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconcileLocked(ctx)
}

// Import writes tasks through the bulk channel and reconciles.
func (c *Coordinator) Import(ctx context.Context, tasks []task.Task) (*Snapshot, error) {
	if c.bulk == nil {
		return nil, &Error{Kind: ErrMutationFailed, Op: "import", Err: errors.New("no bulk channel configured")}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.MutationTimeout)
	defer cancel()
	if err := c.bulk.Import(ictx, tasks); err != nil {
		return c.snap.Load(), &Error{Kind: ErrMutationFailed, Op: "import", Backend: BackendBulk, Err: err}
	}
	c.lastMutation = c.opts.Now()
	return c.reconcileLocked(ictx)
}

// Sync runs the external sync and refreshes the record set on success.
func (c *Coordinator) Sync(ctx context.Context) (*Snapshot, error) {
	if c.trigger == nil {
		return c.snap.Load(), &Error{Kind: ErrSyncFailed, Op: "sync", Err: errors.New("no sync trigger configured")}
	}
	if err := c.trigger.Sync(ctx); err != nil {
		return c.snap.Load(), &Error{Kind: ErrSyncFailed, Op: "sync", Backend: BackendCommand, Err: err}
	}
	snap, err := c.Refresh(ctx)
	if err != nil {
		return snap, &Error{Kind: ErrSyncFailed, Op: "sync", Err: err}
	}
	return snap, nil
}

// Apply executes a mutation. On success the record set is re-read and a new
// generation is published before Apply returns, so no caller can observe the
// pre-mutation generation afterwards. A mutation the store rejects leaves the
// generation untouched.
func (c *Coordinator) Apply(ctx context.Context, m task.Mutation) (task.Outcome, error) {
	op := "apply " + string(m.Kind)
	if err := m.Validate(); err != nil {
		return task.Outcome{}, &Error{Kind: ErrMutationFailed, Op: op, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.MutationTimeout)
	defer cancel()

	log := c.log.WithFields(map[string]interface{}{"kind": string(m.Kind), "uuid": m.UUID})

	outcome, err := c.command.Execute(mctx, m)
	needReconcile := false
	if err != nil {
		if !outcomeUnknown(err) {
			log.WithError(err).Warn("Mutation rejected")
			return task.Outcome{}, &Error{Kind: ErrMutationFailed, Op: op, Backend: BackendCommand, Err: err}
		}
		if !appliedUnreadable(err) {
			// The store may or may not have applied the change.
			log.WithError(err).Warn("Mutation outcome unknown, reconciling")
			c.lastMutation = c.opts.Now()
			if _, rerr := c.reconcileLocked(mctx); rerr != nil {
				log.WithError(rerr).Error("Reconcile after unknown mutation outcome failed")
				c.publishStaleLocked()
			}
			return task.Outcome{}, &Error{
				Kind:    ErrMutationFailed,
				Op:      op,
				Backend: BackendCommand,
				Err:     fmt.Errorf("outcome unknown, record set reconciled: %w", err),
			}
		}
		// The command succeeded but its output could not be read.
		log.WithError(err).Warn("Mutation applied but output unreadable")
		needReconcile = true
		outcome = task.Outcome{}
		if !m.Kind.Creates() {
			outcome.UUID = m.UUID
		}
	}

	c.lastMutation = c.opts.Now()

	b, rerr := c.readLocked(mctx)
	if rerr != nil {
		log.WithError(rerr).Warn("Mutation applied but record set could not be re-read")
		c.publishStaleLocked()
		return outcome, nil
	}

	if verr := verify(m, outcome, b.tasks); verr != nil || needReconcile {
		if verr != nil {
			w := &Error{Kind: ErrInconsistent, Op: op, Backend: b.source, Err: verr}
			c.warning.Store(w)
			log.WithError(w).Warn("Store inconsistent after mutation, reconciling")
		}
		if rb, err := c.bulkRead(mctx); err == nil {
			b = rb
		} else {
			log.WithError(err).Warn("Bulk reconcile failed, publishing last read")
		}
	}
	if outcome.UUID == "" && outcome.ID > 0 {
		outcome.UUID = lookupUUID(b.tasks, outcome.ID)
	}

	snap := c.publishLocked(b, true)
	log.WithGeneration(snap.Generation).Info("Mutation applied")
	return outcome, nil
}

type batch struct {
	tasks   []task.Task
	skipped int
	source  Backend
}

// readLocked walks the fallback chain. c.mu must be held.
func (c *Coordinator) readLocked(ctx context.Context) (batch, error) {
	var errs []error

	if c.direct != nil {
		b, err := c.directRead(ctx)
		if err == nil {
			return b, nil
		}
		c.log.WithError(err).Debug("Direct read unusable, falling back to command")
		errs = append(errs, err)
	}

	b, err := c.commandRead(ctx)
	if err == nil {
		return b, nil
	}
	c.log.WithError(err).Warn("Command read failed, falling back to bulk export")
	errs = append(errs, err)

	if c.bulk != nil {
		b, err := c.bulkRead(ctx)
		if err == nil {
			return b, nil
		}
		errs = append(errs, err)
	}

	return batch{}, &Error{Kind: ErrUnavailable, Op: "fetch", Err: errors.Join(errs...)}
}

func (c *Coordinator) directRead(ctx context.Context) (batch, error) {
	if fr, ok := c.direct.(FreshnessReporter); ok && !c.lastMutation.IsZero() {
		lm, err := fr.LastModified()
		if err != nil {
			return batch{}, &Error{Kind: ErrUnavailable, Op: "fetch", Backend: BackendDirect, Err: err}
		}
		if lm.Add(c.opts.StalenessThreshold).Before(c.lastMutation) {
			return batch{}, &Error{
				Kind:    ErrUnavailable,
				Op:      "fetch",
				Backend: BackendDirect,
				Err:     fmt.Errorf("data last modified %s, before last mutation %s", lm.Format(time.RFC3339), c.lastMutation.Format(time.RFC3339)),
			}
		}
	}

	tasks, skipped, err := c.direct.FetchAll(ctx)
	if err != nil {
		return batch{}, &Error{Kind: readKind(err), Op: "fetch", Backend: BackendDirect, Err: err}
	}
	if skipped > 0 {
		return batch{}, &Error{Kind: ErrMalformed, Op: "fetch", Backend: BackendDirect, Err: fmt.Errorf("%d records skipped", skipped)}
	}
	return batch{tasks: tasks, source: BackendDirect}, nil
}

func (c *Coordinator) commandRead(ctx context.Context) (batch, error) {
	backoff := c.opts.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return batch{}, &Error{Kind: ErrUnavailable, Op: "fetch", Backend: BackendCommand, Err: ctx.Err()}
			case <-timer.C:
			}
			backoff *= 2
		}

		tasks, skipped, err := c.command.Export(ctx)
		if err == nil {
			return batch{tasks: tasks, skipped: skipped, source: BackendCommand}, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		c.log.WithError(err).WithField("attempt", attempt+1).Debug("Command read failed")
	}
	return batch{}, &Error{Kind: readKind(lastErr), Op: "fetch", Backend: BackendCommand, Err: lastErr}
}

func (c *Coordinator) bulkRead(ctx context.Context) (batch, error) {
	if c.bulk == nil {
		b, err := c.commandRead(ctx)
		return b, err
	}
	tasks, skipped, err := c.bulk.Export(ctx)
	if err != nil {
		return batch{}, &Error{Kind: readKind(err), Op: "fetch", Backend: BackendBulk, Err: err}
	}
	return batch{tasks: tasks, skipped: skipped, source: BackendBulk}, nil
}

func (c *Coordinator) reconcileLocked(ctx context.Context) (*Snapshot, error) {
	b, err := c.bulkRead(ctx)
	if err != nil {
		return c.snap.Load(), &Error{Kind: ErrUnavailable, Op: "reconcile", Backend: BackendBulk, Err: err}
	}
	return c.publishLocked(b, true), nil
}

// publishLocked stores a new snapshot built from b. Without force the
// generation only advances when the content digest differs.
func (c *Coordinator) publishLocked(b batch, force bool) *Snapshot {
	cur := c.snap.Load()
	tasks := b.tasks
	slices.SortFunc(tasks, func(x, y task.Task) int { return strings.Compare(x.UUID, y.UUID) })
	d := digest(tasks)

	if !force && cur.Loaded && !cur.Stale && cur.digest == d {
		return cur
	}

	next := &Snapshot{
		Generation: cur.Generation + 1,
		Tasks:      tasks,
		FetchedAt:  c.opts.Now(),
		Source:     b.source,
		Skipped:    b.skipped,
		Loaded:     true,
		digest:     d,
	}
	c.store(next)
	c.log.WithGeneration(next.Generation).WithFields(map[string]interface{}{
		"source":  next.Source.String(),
		"tasks":   len(next.Tasks),
		"skipped": next.Skipped,
	}).Debug("Published record set")
	return next
}

// publishStaleLocked bumps the generation on the previous record set,
// flagging it stale.
func (c *Coordinator) publishStaleLocked() {
	cur := c.snap.Load()
	next := *cur
	next.Generation = cur.Generation + 1
	next.Stale = true
	c.store(&next)
}

func (c *Coordinator) store(s *Snapshot) {
	c.snap.Store(s)
	c.listenersMu.RLock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// digest hashes every stored field of every record, so content changes show
// even when a backend leaves modified untouched. tasks must be sorted by
// uuid. Urgency is left out: backends that compute it locally would
// otherwise change the digest on every read.
func digest(tasks []task.Task) uint64 {
	h := xxhash.New()
	field := func(s string) {
		h.WriteString(s)
		h.WriteString("\x1f")
	}
	instant := func(t time.Time) { field(strconv.FormatInt(t.UnixNano(), 10)) }
	optional := func(t *time.Time) {
		if t == nil {
			field("")
			return
		}
		instant(*t)
	}
	list := func(items []string) {
		field(strconv.Itoa(len(items)))
		for _, it := range items {
			field(it)
		}
	}

	for _, t := range tasks {
		field(t.UUID)
		field(strconv.Itoa(t.ID))
		field(string(t.Status))
		field(t.Description)
		field(t.Project)
		field(strconv.Itoa(int(t.Priority)))
		list(t.Tags)
		list(t.Depends)
		field(strconv.Itoa(len(t.Annotations)))
		for _, a := range t.Annotations {
			instant(a.Entry)
			field(a.Description)
		}
		instant(t.Entry)
		instant(t.Modified)
		for _, ts := range []*time.Time{t.Due, t.Wait, t.Scheduled, t.Start, t.End, t.Until} {
			optional(ts)
		}
		h.WriteString("\n")
	}
	return h.Sum64()
}
