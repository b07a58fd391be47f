package report

import (
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// Summary holds record counts and rates.
type Summary struct {
	Total      int                   `json:"total"`
	ByStatus   map[task.Status]int   `json:"by_status"`
	ByPriority map[task.Priority]int `json:"by_priority"`
	Active     int                   `json:"active"`
	Overdue    int                   `json:"overdue"`
	// CompletionRate is completed / (completed + pending), 0 when both are 0.
	CompletionRate float64 `json:"completion_rate"`
	// AverageUrgency is taken over open (not completed or deleted) tasks.
	AverageUrgency float64 `json:"average_urgency"`
	// RecentlyAdded and CompletedLast7Days count a trailing seven-day
	// window ending now, not the calendar week.
	RecentlyAdded      int `json:"recently_added"`
	CompletedLast7Days int `json:"completed_last_7_days"`
}

// Count returns the number of tasks with status s.
func (s Summary) Count(st task.Status) int {
	return s.ByStatus[st]
}

// ComputeSummary counts tasks by status and priority and derives rates.
func ComputeSummary(tasks []task.Task, opts Options) Summary {
	opts = opts.withDefaults()
	now := opts.Now
	since := now.Add(-recentWindow)

	s := Summary{
		Total:      len(tasks),
		ByStatus:   make(map[task.Status]int, len(task.Statuses)),
		ByPriority: make(map[task.Priority]int, len(task.Priorities)),
	}
	for _, st := range task.Statuses {
		s.ByStatus[st] = 0
	}
	for _, p := range task.Priorities {
		s.ByPriority[p] = 0
	}

	var urgencySum float64
	open := 0
	for _, t := range tasks {
		s.ByStatus[t.Status]++
		s.ByPriority[t.Priority]++
		if t.IsActive() {
			s.Active++
		}
		if t.IsOverdue(now) {
			s.Overdue++
		}
		if !t.Status.IsClosed() {
			open++
			urgencySum += t.Urgency
		}
		if inWindow(t.Entry, since, now) {
			s.RecentlyAdded++
		}
		if t.Status == task.StatusCompleted && t.End != nil && inWindow(*t.End, since, now) {
			s.CompletedLast7Days++
		}
	}

	completed, pending := s.ByStatus[task.StatusCompleted], s.ByStatus[task.StatusPending]
	if completed+pending > 0 {
		s.CompletionRate = float64(completed) / float64(completed+pending)
	}
	if open > 0 {
		s.AverageUrgency = urgencySum / float64(open)
	}
	return s
}

// inWindow reports whether t lies in (from, to].
func inWindow(t, from, to time.Time) bool {
	return !t.IsZero() && t.After(from) && !t.After(to)
}
