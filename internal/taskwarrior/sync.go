package taskwarrior

import (
	"context"
	"errors"
)

// Sync runs `task sync` against the configured server. Failures are
// classified as ErrNetworkFailure, ErrAuthFailure or ErrTimeout where the
// output allows it.
func (c *Client) Sync(ctx context.Context) error {
	_, err := c.run(ctx, c.opts.SyncTimeout, nil, "sync")
	if err == nil {
		c.log.Debug("task sync completed")
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return classifySync(cmdErr)
	}
	return err
}
