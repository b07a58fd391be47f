package report

import (
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// BurndownPoint is one daily bucket. Buckets are half-open: [Start, next Start).
type BurndownPoint struct {
	Start     time.Time `json:"start"`
	Added     int       `json:"added"`
	Completed int       `json:"completed"`
	Remaining int       `json:"remaining"`
}

// Burndown is a trailing series of daily buckets ending today.
//
// Remaining is the number of open tasks at the end of each bucket, and the
// series satisfies Remaining[i] = Remaining[i-1] - Completed[i] + Added[i],
// with Initial standing in for Remaining[-1].
type Burndown struct {
	Initial int             `json:"initial"`
	Points  []BurndownPoint `json:"points"`
}

// ComputeBurndown buckets task creation and closure into opts.BurndownDays
// local days. Deleted tasks never count as open. A completed task closes at
// its end time (falling back to modified), never earlier than its entry.
// Tasks created after the last bucket are ignored.
func ComputeBurndown(tasks []task.Task, opts Options) Burndown {
	opts = opts.withDefaults()
	days := opts.BurndownDays

	local := opts.Now.In(opts.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, opts.Location)
	starts := make([]time.Time, days+1)
	for i := 0; i <= days; i++ {
		starts[i] = today.AddDate(0, 0, i-days+1)
	}
	windowStart, windowEnd := starts[0], starts[days]

	bucket := func(t time.Time) int {
		if t.Before(windowStart) || !t.Before(windowEnd) {
			return -1
		}
		lo, hi := 0, days-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if t.Before(starts[mid]) {
				hi = mid - 1
			} else {
				lo = mid
			}
		}
		return lo
	}

	b := Burndown{Points: make([]BurndownPoint, days)}
	for i := range b.Points {
		b.Points[i].Start = starts[i]
	}

	for _, t := range tasks {
		if t.Status == task.StatusDeleted {
			continue
		}
		entry := t.Entry
		if !entry.Before(windowEnd) {
			continue
		}

		var closedAt *time.Time
		if t.Status == task.StatusCompleted {
			c := t.Modified
			if t.End != nil {
				c = *t.End
			}
			if c.Before(entry) {
				c = entry
			}
			closedAt = &c
		}

		openAtStart := entry.Before(windowStart) && (closedAt == nil || !closedAt.Before(windowStart))
		if openAtStart {
			b.Initial++
		} else if i := bucket(entry); i >= 0 {
			b.Points[i].Added++
		}

		if closedAt != nil {
			if i := bucket(*closedAt); i >= 0 {
				b.Points[i].Completed++
			}
		}
	}

	remaining := b.Initial
	for i := range b.Points {
		remaining = remaining - b.Points[i].Completed + b.Points[i].Added
		b.Points[i].Remaining = remaining
	}
	return b
}
