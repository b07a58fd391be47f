package access

import (
	"context"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// Backend identifies which channel produced a record set.
type Backend int

const (
	BackendNone Backend = iota
	// BackendDirect reads the store's database without going through task.
	BackendDirect
	// BackendCommand executes the task binary. All mutations use it.
	BackendCommand
	// BackendBulk is the full JSON export/import used for reconciliation.
	BackendBulk
)

func (b Backend) String() string {
	switch b {
	case BackendDirect:
		return "direct"
	case BackendCommand:
		return "command"
	case BackendBulk:
		return "bulk"
	default:
		return "none"
	}
}

// ReadStore reads the complete record set. The int result counts records
// that were skipped as malformed.
type ReadStore interface {
	FetchAll(ctx context.Context) ([]task.Task, int, error)
}

// FreshnessReporter is implemented by read stores that can tell when their
// data last changed.
type FreshnessReporter interface {
	LastModified() (time.Time, error)
}

// CommandRunner applies mutations and serves fallback reads.
type CommandRunner interface {
	Execute(ctx context.Context, m task.Mutation) (task.Outcome, error)
	Export(ctx context.Context) ([]task.Task, int, error)
}

// BulkChannel moves the whole record set in and out of the store.
type BulkChannel interface {
	Export(ctx context.Context) ([]task.Task, int, error)
	Import(ctx context.Context, tasks []task.Task) error
}

// SyncTrigger runs the store's external synchronisation.
type SyncTrigger interface {
	Sync(ctx context.Context) error
}
