package taskwarrior

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInstalled is returned when the task binary cannot be found.
	ErrNotInstalled = errors.New("taskwarrior binary not found")

	// ErrNonZeroExit is returned when task exits with a failure status.
	ErrNonZeroExit = errors.New("task exited with non-zero status")

	// ErrTimeout is returned when task does not finish within the timeout.
	ErrTimeout = errors.New("task command timed out")

	// ErrParseFailure is returned when task output cannot be interpreted.
	ErrParseFailure = errors.New("failed to parse task output")

	// ErrNetworkFailure is returned when `task sync` cannot reach the server.
	ErrNetworkFailure = errors.New("sync server unreachable")

	// ErrAuthFailure is returned when the sync server rejects the credentials.
	ErrAuthFailure = errors.New("sync authentication failed")
)

// CommandError describes a failed invocation of the task binary.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	// Err is one of the sentinel errors above.
	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("task %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

var (
	authMarkers = []string{
		"credentials",
		"unauthorized",
		"authentication",
		"access denied",
		"certificate",
		"handshake",
	}
	networkMarkers = []string{
		"could not connect",
		"connection refused",
		"connection reset",
		"could not resolve",
		"no route to host",
		"network is unreachable",
		"timed out",
		"dns error",
		"error trying to connect",
	}
)

// classifySync maps the stderr of a failed `task sync` onto the sync
// failure sentinels. Unrecognised output keeps the original cause.
func classifySync(err *CommandError) error {
	if errors.Is(err.Err, ErrTimeout) {
		return err
	}
	stderr := strings.ToLower(err.Stderr)
	for _, m := range authMarkers {
		if strings.Contains(stderr, m) {
			err.Err = ErrAuthFailure
			return err
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(stderr, m) {
			err.Err = ErrNetworkFailure
			return err
		}
	}
	return err
}
