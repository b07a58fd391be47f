package report

import (
	"slices"
	"strings"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// NoProject is the bucket name for tasks without a project. A project that
// is literally named "none" shares the bucket.
const NoProject = "none"

// ProjectStats aggregates one project.
type ProjectStats struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
	Deleted   int    `json:"deleted"`
	Waiting   int    `json:"waiting"`
	// CompletionRate is completed / (completed + pending), 0 when both are 0.
	CompletionRate float64 `json:"completion_rate"`
	// NextDue is the earliest due date among tasks that are neither
	// completed nor deleted.
	NextDue *time.Time `json:"next_due,omitempty"`
	// Urgency is the mean urgency of the project's open tasks, 0 if none.
	Urgency float64 `json:"urgency"`

	open       int
	urgencySum float64
}

// ComputeProjects groups tasks by project. Groups are ordered by
// pending+completed descending, then name ascending.
func ComputeProjects(tasks []task.Task) []ProjectStats {
	groups := make(map[string]*ProjectStats)
	for _, t := range tasks {
		name := t.Project
		if name == "" {
			name = NoProject
		}
		g, ok := groups[name]
		if !ok {
			g = &ProjectStats{Name: name}
			groups[name] = g
		}

		g.Total++
		switch t.Status {
		case task.StatusPending:
			g.Pending++
		case task.StatusCompleted:
			g.Completed++
		case task.StatusDeleted:
			g.Deleted++
		case task.StatusWaiting:
			g.Waiting++
		}

		if t.Status.IsClosed() {
			continue
		}
		g.open++
		g.urgencySum += t.Urgency
		if t.Due != nil && (g.NextDue == nil || t.Due.Before(*g.NextDue)) {
			due := *t.Due
			g.NextDue = &due
		}
	}

	out := make([]ProjectStats, 0, len(groups))
	for _, g := range groups {
		if g.Completed+g.Pending > 0 {
			g.CompletionRate = float64(g.Completed) / float64(g.Completed+g.Pending)
		}
		if g.open > 0 {
			g.Urgency = g.urgencySum / float64(g.open)
		}
		g.open, g.urgencySum = 0, 0
		out = append(out, *g)
	}

	slices.SortFunc(out, func(a, b ProjectStats) int {
		if d := (b.Pending + b.Completed) - (a.Pending + a.Completed); d != 0 {
			return d
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
