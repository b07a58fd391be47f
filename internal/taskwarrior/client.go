// Package taskwarrior drives the `task` command-line program. It provides
// mutation execution, JSON export/import for bulk reconciliation and the
// `task sync` trigger.
package taskwarrior

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Jayphen/lazytask/internal/logging"
	"github.com/Jayphen/lazytask/internal/task"
)

// Default timeouts.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultSyncTimeout = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	// Binary is the task executable. Defaults to "task" on PATH.
	Binary string
	// TaskRC and DataLocation are exported as TASKRC and TASKDATA when set.
	TaskRC       string
	DataLocation string
	// Timeout bounds every command except sync.
	Timeout     time.Duration
	SyncTimeout time.Duration
}

// Client runs task commands.
type Client struct {
	opts Options
	log  *logging.Logger
	now  func() time.Time
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Binary == "" {
		opts.Binary = "task"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	return &Client{
		opts: opts,
		log:  logging.WithComponent("taskwarrior"),
		now:  time.Now,
	}
}

// LookPath verifies the task binary is available.
func (c *Client) LookPath() (string, error) {
	path, err := exec.LookPath(c.opts.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotInstalled, c.opts.Binary, err)
	}
	return path, nil
}

// Version returns the output of `task --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.opts.Timeout, nil, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// DataLocation asks task where its data directory is.
func (c *Client) DataLocation(ctx context.Context) (string, error) {
	if c.opts.DataLocation != "" {
		return expandHome(c.opts.DataLocation), nil
	}
	out, err := c.run(ctx, c.opts.Timeout, nil, "_get", "rc.data.location")
	if err != nil {
		return "", err
	}
	loc := strings.TrimSpace(string(out))
	if loc == "" {
		return "", &CommandError{Args: []string{"_get", "rc.data.location"}, Err: ErrParseFailure}
	}
	return expandHome(loc), nil
}

// Export returns every task the store knows about, skipping malformed
// records. The second result is the number of records skipped.
func (c *Client) Export(ctx context.Context) ([]task.Task, int, error) {
	return c.export(ctx, c.opts.Timeout, "rc.json.array=on", "rc.hooks=0", "export")
}

func (c *Client) export(ctx context.Context, timeout time.Duration, args ...string) ([]task.Task, int, error) {
	out, err := c.run(ctx, timeout, nil, args...)
	if err != nil {
		return nil, 0, err
	}
	tasks, skipped, err := task.DecodeExport(out, c.now())
	if err != nil {
		return nil, 0, &CommandError{Args: args, Err: fmt.Errorf("%w: %v", ErrParseFailure, err)}
	}
	if skipped > 0 {
		c.log.WithField("skipped", skipped).Warn("Skipped malformed records in task export")
	}
	return tasks, skipped, nil
}

// run executes the task binary with args. stdin may be nil.
func (c *Client) run(ctx context.Context, timeout time.Duration, stdin []byte, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.opts.Binary, args...)
	cmd.Env = c.env()
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	c.log.WithFields(map[string]interface{}{
		"args":     args,
		"duration": time.Since(start).String(),
	}).Debug("Ran task command")

	if err == nil {
		return stdout.Bytes(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &CommandError{Args: args, Stderr: stderr.String(), Err: ErrTimeout}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &CommandError{
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
			Err:      ErrNonZeroExit,
		}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil, &CommandError{Args: args, Err: fmt.Errorf("%w: %v", ErrNotInstalled, err)}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("failed to run task %s: %w", strings.Join(args, " "), err)
}

// Interactive returns an unstarted command for programs the user drives
// directly, such as `task <uuid> edit`. The caller attaches the terminal.
func (c *Client) Interactive(args ...string) *exec.Cmd {
	cmd := exec.Command(c.opts.Binary, args...)
	cmd.Env = c.env()
	return cmd
}

func (c *Client) env() []string {
	env := os.Environ()
	if c.opts.TaskRC != "" {
		env = append(env, "TASKRC="+expandHome(c.opts.TaskRC))
	}
	if c.opts.DataLocation != "" {
		env = append(env, "TASKDATA="+expandHome(c.opts.DataLocation))
	}
	return env
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
