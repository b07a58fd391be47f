package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Jayphen/lazytask/internal/task"
	"github.com/Jayphen/lazytask/internal/taskchampion"
	"github.com/Jayphen/lazytask/internal/taskwarrior"
)

var (
	// ErrUnavailable is returned when no backend could produce the record set.
	ErrUnavailable = errors.New("task store unavailable")

	// ErrMalformed marks a read that returned undecodable records.
	ErrMalformed = errors.New("malformed task records")

	// ErrMutationFailed is returned when the store rejected or could not
	// confirm a mutation. The generation is not bumped for rejected mutations.
	ErrMutationFailed = errors.New("mutation failed")

	// ErrSyncFailed is returned when an external sync did not complete.
	ErrSyncFailed = errors.New("sync failed")

	// ErrInconsistent marks a store state that contradicts a mutation the
	// store reported as successful.
	ErrInconsistent = errors.New("store inconsistent after mutation")
)

// Error is the error type returned by the Coordinator. Kind is one of the
// sentinels above and Err is the backend's cause; errors.Is matches both.
type Error struct {
	Kind    error
	Op      string
	Backend Backend
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Backend != BackendNone {
		fmt.Fprintf(&b, " via %s", e.Backend)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the taxonomy sentinel carried by err, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrMutationFailed, ErrSyncFailed, ErrInconsistent, ErrMalformed, ErrUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// retryable reports whether a read failure from the command backend is
// worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, taskwarrior.ErrNonZeroExit) || errors.Is(err, taskwarrior.ErrTimeout)
}

// outcomeUnknown reports whether a failed mutation may nevertheless have
// been applied by the store.
func outcomeUnknown(err error) bool {
	if errors.Is(err, taskwarrior.ErrNonZeroExit) || errors.Is(err, taskwarrior.ErrNotInstalled) ||
		errors.Is(err, task.ErrInvalidMutation) {
		return false
	}
	return true
}

// appliedUnreadable reports whether a mutation ran successfully but its
// output could not be interpreted.
func appliedUnreadable(err error) bool {
	return errors.Is(err, taskwarrior.ErrParseFailure)
}

// readKind maps a backend read failure onto the taxonomy.
func readKind(err error) error {
	switch {
	case errors.Is(err, task.ErrMalformed), errors.Is(err, taskchampion.ErrMalformed),
		errors.Is(err, taskwarrior.ErrParseFailure):
		return ErrMalformed
	default:
		return ErrUnavailable
	}
}
