package taskwarrior

import (
	"context"
	"fmt"

	"github.com/Jayphen/lazytask/internal/task"
)

// Bulk is the JSON export/import channel used for reconciliation. Its export
// runs with garbage collection disabled so working-set ids stay put while the
// full record set is read, and with the sync timeout since it covers the
// whole store.
type Bulk struct {
	c *Client
}

// Bulk returns the bulk channel backed by c.
func (c *Client) Bulk() *Bulk {
	return &Bulk{c: c}
}

// Export reads the complete record set.
func (b *Bulk) Export(ctx context.Context) ([]task.Task, int, error) {
	return b.c.export(ctx, b.c.opts.SyncTimeout, "rc.json.array=on", "rc.hooks=0", "rc.gc=off", "export")
}

// Import writes tasks back with `task import`. Records are matched by uuid,
// so importing an unchanged record is a no-op.
func (b *Bulk) Import(ctx context.Context, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	data, err := task.EncodeImport(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks for import: %w", err)
	}
	if _, err := b.c.run(ctx, b.c.opts.SyncTimeout, data, "rc.hooks=0", "import", "-"); err != nil {
		return err
	}
	b.c.log.WithField("count", len(tasks)).Info("Imported tasks")
	return nil
}
