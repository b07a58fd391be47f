package report

import (
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// EventKind classifies an activity event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventCompleted EventKind = "completed"
	EventDeleted   EventKind = "deleted"
	EventModified  EventKind = "modified"
)

// rank orders events that share a timestamp and a task.
func (k EventKind) rank() int {
	switch k {
	case EventCompleted, EventDeleted:
		return 0
	case EventModified:
		return 1
	default:
		return 2
	}
}

// Event is one entry of the activity timeline.
type Event struct {
	Kind        EventKind `json:"kind"`
	At          time.Time `json:"at"`
	UUID        string    `json:"uuid"`
	ID          int       `json:"id"`
	Description string    `json:"description"`
	Project     string    `json:"project,omitempty"`
}

// Activity is a materialised, bounded timeline.
type Activity struct {
	Since  time.Time `json:"since"`
	Events []Event   `json:"events"`
	// Truncated is set when more events fell inside the window than the limit.
	Truncated bool `json:"truncated"`
}

// Timeline yields activity events in (since, now], newest first. Ties on
// timestamp are broken by task uuid ascending. Nothing is computed until the
// sequence is ranged over; it is finite and every pass yields the same events.
func Timeline(tasks []task.Task, since, now time.Time) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, ev := range collectEvents(tasks, since, now) {
			if !yield(ev) {
				return
			}
		}
	}
}

func collectEvents(tasks []task.Task, since, now time.Time) []Event {
	var events []Event
	add := func(kind EventKind, at time.Time, t task.Task) {
		if !inWindow(at, since, now) {
			return
		}
		events = append(events, Event{
			Kind:        kind,
			At:          at,
			UUID:        t.UUID,
			ID:          t.ID,
			Description: t.Description,
			Project:     t.Project,
		})
	}

	for _, t := range tasks {
		add(EventCreated, t.Entry, t)

		var end time.Time
		if t.End != nil {
			end = *t.End
			switch t.Status {
			case task.StatusCompleted:
				add(EventCompleted, end, t)
			case task.StatusDeleted:
				add(EventDeleted, end, t)
			}
		}

		if !t.Modified.IsZero() && !t.Modified.Equal(t.Entry) && !t.Modified.Equal(end) {
			add(EventModified, t.Modified, t)
		}
	}

	slices.SortFunc(events, func(a, b Event) int {
		if c := b.At.Compare(a.At); c != 0 {
			return c
		}
		if c := strings.Compare(a.UUID, b.UUID); c != 0 {
			return c
		}
		return a.Kind.rank() - b.Kind.rank()
	})

	return events
}

// ComputeActivity materialises the timeline over opts.ActivityWindow,
// keeping at most opts.ActivityLimit events.
func ComputeActivity(tasks []task.Task, opts Options) Activity {
	opts = opts.withDefaults()
	a := Activity{Since: opts.Now.Add(-opts.ActivityWindow), Events: []Event{}}
	for ev := range Timeline(tasks, a.Since, opts.Now) {
		if len(a.Events) == opts.ActivityLimit {
			a.Truncated = true
			break
		}
		a.Events = append(a.Events, ev)
	}
	return a
}
