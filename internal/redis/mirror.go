package redis

import (
	"context"
	"time"

	"github.com/Jayphen/lazytask/internal/logging"
	"github.com/Jayphen/lazytask/internal/types"
)

// Mirror publishes status records in the background. Offer never blocks:
// records offered while a write is pending replace it, so only the newest
// state is written.
type Mirror struct {
	client  *Client
	pending chan *types.StatusRecord
	events  chan *types.SyncEvent
	log     *logging.Logger
}

// NewMirror creates a Mirror writing through c.
func NewMirror(c *Client) *Mirror {
	return &Mirror{
		client:  c,
		pending: make(chan *types.StatusRecord, 1),
		events:  make(chan *types.SyncEvent, 16),
		log:     logging.WithComponent("redis"),
	}
}

// Offer queues rec for publishing, replacing any record not yet written.
func (m *Mirror) Offer(rec *types.StatusRecord) {
	for {
		select {
		case m.pending <- rec:
			return
		default:
		}
		select {
		case <-m.pending:
		default:
		}
	}
}

// Event queues a sync event. Events are dropped when the queue is full.
func (m *Mirror) Event(ev *types.SyncEvent) {
	select {
	case m.events <- ev:
	default:
		m.log.Debug("Sync event dropped")
	}
}

// Run writes queued records until ctx is cancelled, then removes the
// instance's status.
func (m *Mirror) Run(ctx context.Context, instance string) {
	for {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := m.client.DeleteStatus(cctx, instance); err != nil {
				m.log.WithError(err).Debug("Failed to remove status")
			}
			cancel()
			return
		case rec := <-m.pending:
			m.write(ctx, func(ctx context.Context) error { return m.client.SetStatus(ctx, rec) })
		case ev := <-m.events:
			m.write(ctx, func(ctx context.Context) error { return m.client.PushEvent(ctx, ev) })
		}
	}
}

func (m *Mirror) write(ctx context.Context, fn func(context.Context) error) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := fn(wctx); err != nil {
		m.log.WithError(err).Warn("Failed to publish status")
	}
}
