// Package filter evaluates multi-criterion task filters.
//
// A Spec is a plain value: every criterion is optional and all present
// criteria are ANDed. Evaluation is pure and safe for concurrent use; computed
// predicates (active, overdue, blocked) are evaluated against the caller's
// clock and never cached on the record.
package filter

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Jayphen/lazytask/internal/task"
)

// Spec is a filter specification. The zero value matches every task,
// including deleted ones.
type Spec struct {
	// Status restricts to one status. Empty means any status.
	Status task.Status `json:"status,omitempty"`
	// Project matches as a substring unless ProjectExact is set.
	Project      string         `json:"project,omitempty"`
	ProjectExact bool           `json:"project_exact,omitempty"`
	Priority     *task.Priority `json:"priority,omitempty"`
	// Tags must all be present; ExcludeTags must all be absent.
	Tags        []string `json:"tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`
	// Text is a case-insensitive substring of the description.
	Text string `json:"text,omitempty"`
	// DueBefore and DueAfter are exclusive bounds; tasks without a due date
	// never satisfy either.
	DueBefore *time.Time `json:"due_before,omitempty"`
	DueAfter  *time.Time `json:"due_after,omitempty"`

	Active  *bool `json:"active,omitempty"`
	Overdue *bool `json:"overdue,omitempty"`
	Blocked *bool `json:"blocked,omitempty"`
}

// Pending is the filter the UI starts with.
func Pending() Spec {
	return Spec{Status: task.StatusPending}
}

// Matches reports whether t satisfies every criterion of s at now.
func (s Spec) Matches(t task.Task, now time.Time) bool {
	if s.Status != "" && t.Status != s.Status {
		return false
	}

	if s.Project != "" {
		if t.Project == "" {
			return false
		}
		if s.ProjectExact {
			if t.Project != s.Project {
				return false
			}
		} else if !strings.Contains(t.Project, s.Project) {
			return false
		}
	}

	if s.Priority != nil && t.Priority != *s.Priority {
		return false
	}

	for _, tag := range s.Tags {
		if !t.HasTag(tag) {
			return false
		}
	}
	for _, tag := range s.ExcludeTags {
		if t.HasTag(tag) {
			return false
		}
	}

	if s.Text != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(s.Text)) {
		return false
	}

	if s.DueBefore != nil && (t.Due == nil || !t.Due.Before(*s.DueBefore)) {
		return false
	}
	if s.DueAfter != nil && (t.Due == nil || !t.Due.After(*s.DueAfter)) {
		return false
	}

	if s.Active != nil && t.IsActive() != *s.Active {
		return false
	}
	if s.Overdue != nil && t.IsOverdue(now) != *s.Overdue {
		return false
	}
	if s.Blocked != nil && t.IsBlocked() != *s.Blocked {
		return false
	}

	return true
}

// Apply returns the tasks matching s, preserving input order. The input slice
// is not modified.
func (s Spec) Apply(tasks []task.Task, now time.Time) []task.Task {
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if s.Matches(t, now) {
			out = append(out, t)
		}
	}
	return out
}

// IsZero reports whether s has no criteria.
func (s Spec) IsZero() bool {
	return s.Canonical() == ""
}

// UsesClock reports whether the result of evaluating s can change as time
// passes without the record set changing.
func (s Spec) UsesClock() bool {
	return s.Overdue != nil
}

// Canonical returns a stable encoding of s. Two specs that select the same
// tasks by construction (tag order, duplicate tags, text case) encode
// identically, so the encoding is usable as a cache key.
func (s Spec) Canonical() string {
	var parts []string
	add := func(k, v string) { parts = append(parts, k+"="+strconv.Quote(v)) }

	if s.Status != "" {
		add("status", string(s.Status))
	}
	if s.Project != "" {
		if s.ProjectExact {
			add("project.is", s.Project)
		} else {
			add("project", s.Project)
		}
	}
	if s.Priority != nil {
		add("priority", s.Priority.String())
	}
	if tags := normalizeTags(s.Tags); len(tags) > 0 {
		add("tags", strings.Join(tags, ","))
	}
	if tags := normalizeTags(s.ExcludeTags); len(tags) > 0 {
		add("exclude", strings.Join(tags, ","))
	}
	if s.Text != "" {
		add("text", strings.ToLower(s.Text))
	}
	if s.DueBefore != nil {
		add("due.before", s.DueBefore.UTC().Format(time.RFC3339Nano))
	}
	if s.DueAfter != nil {
		add("due.after", s.DueAfter.UTC().Format(time.RFC3339Nano))
	}
	if s.Active != nil {
		add("active", strconv.FormatBool(*s.Active))
	}
	if s.Overdue != nil {
		add("overdue", strconv.FormatBool(*s.Overdue))
	}
	if s.Blocked != nil {
		add("blocked", strconv.FormatBool(*s.Blocked))
	}
	return strings.Join(parts, ";")
}

// Fingerprint is a 64-bit digest of Canonical, used for logging and for the
// status mirror. Cache keys use Canonical itself.
func (s Spec) Fingerprint() uint64 {
	return xxhash.Sum64String(s.Canonical())
}

// Equal reports whether a and b are equivalent for caching purposes.
func Equal(a, b Spec) bool {
	return a.Canonical() == b.Canonical()
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}
