// Package syncer runs the external store's sync in the background.
//
// A single loop owns execution, so at most one sync is ever in flight. Wake
// requests land in a one-slot channel: any number of requests made while a
// sync runs collapse into one follow-up run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jayphen/lazytask/internal/access"
	"github.com/Jayphen/lazytask/internal/logging"
)

// Defaults for Options.
const (
	DefaultInterval         = 5 * time.Minute
	DefaultTimeout          = 2 * time.Minute
	DefaultFailureThreshold = 3
)

// ErrInFlight is returned by SyncNow when a sync is already running.
var ErrInFlight = errors.New("sync already in progress")

// Runner performs one sync and refreshes the record set.
type Runner interface {
	Sync(ctx context.Context) (*access.Snapshot, error)
}

// Notifier delivers a user-visible alert.
type Notifier interface {
	Send(title, message string)
}

// Status is a point-in-time view of the sync loop.
type Status struct {
	Enabled             bool      `json:"enabled"`
	InFlight            bool      `json:"inFlight"`
	LastAttempt         time.Time `json:"lastAttempt,omitzero"`
	LastSuccess         time.Time `json:"lastSuccess,omitzero"`
	LastError           string    `json:"lastError,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Generation          uint64    `json:"generation"`
}

// Options configures a Syncer.
type Options struct {
	// Interval between scheduled syncs. Zero disables the schedule; syncs
	// then only run on request.
	Interval time.Duration
	// Timeout bounds a single sync.
	Timeout time.Duration
	// FailureThreshold is the streak length that triggers one notification.
	FailureThreshold int
	Notifier         Notifier
	Now              func() time.Time
}

// Syncer is the background sync coordinator.
type Syncer struct {
	runner Runner
	opts   Options

	wake    chan struct{}
	running atomic.Bool

	mu        sync.RWMutex
	status    Status
	notified  bool
	listeners []func(Status)

	log *logging.Logger
}

// New creates a Syncer. Call Run to start the loop.
func New(r Runner, opts Options) *Syncer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{
		runner: r,
		opts:   opts,
		wake:   make(chan struct{}, 1),
		status: Status{Enabled: true},
		log:    logging.WithComponent("syncer"),
	}
}

// OnStatus registers fn to receive every status change. fn must not block.
func (s *Syncer) OnStatus(fn func(Status)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Status returns the current status.
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.InFlight = s.running.Load()
	return st
}

// Request asks the loop for a sync and returns immediately. Requests made
// while one is pending or running are coalesced.
func (s *Syncer) Request() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives scheduled and requested syncs until ctx is cancelled. A sync
// running at shutdown is abandoned.
func (s *Syncer) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.log.WithField("interval", s.opts.Interval.String()).Info("Sync loop started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Sync loop stopped")
			return
		case <-tick:
		case <-s.wake:
		}
		if err := s.SyncNow(ctx); err != nil && !errors.Is(err, ErrInFlight) {
			s.log.WithError(err).Debug("Sync attempt failed")
		}
	}
}

// SyncNow runs a sync on the calling goroutine. It returns ErrInFlight
// without waiting if another sync is running.
func (s *Syncer) SyncNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer s.running.Store(false)

	started := s.opts.Now()
	s.update(func(st *Status) { st.LastAttempt = started })

	sctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	snap, err := s.runner.Sync(sctx)

	if err != nil {
		var alert bool
		var failures int
		s.update(func(st *Status) {
			st.LastError = err.Error()
			st.ConsecutiveFailures++
			failures = st.ConsecutiveFailures
			if failures >= s.opts.FailureThreshold && !s.notified {
				s.notified = true
				alert = true
			}
		})
		s.log.WithError(err).WithField("failures", failures).Warn("Sync failed")
		if alert && s.opts.Notifier != nil {
			s.opts.Notifier.Send("lazytask", fmt.Sprintf("Sync has failed %d times in a row: %v", failures, err))
		}
		return err
	}

	s.update(func(st *Status) {
		st.LastSuccess = s.opts.Now()
		st.LastError = ""
		st.ConsecutiveFailures = 0
		if snap != nil {
			st.Generation = snap.Generation
		}
		s.notified = false
	})
	s.log.WithField("duration", s.opts.Now().Sub(started).String()).Info("Sync completed")
	return nil
}

func (s *Syncer) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	listeners := s.listeners
	s.mu.Unlock()

	st.InFlight = s.running.Load()
	for _, l := range listeners {
		l(st)
	}
}
