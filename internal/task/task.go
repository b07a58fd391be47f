// Package task defines the task record model shared by every layer of lazytask.
//
// Records are snapshots of what the external Taskwarrior store reported. The
// derived states "active" and "overdue" are not fields: they are
// recomputed from stored timestamps (and, for overdue, the caller's clock) on
// every call.
package task

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Status represents the lifecycle state reported by the store.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
	StatusWaiting   Status = "waiting"
	StatusRecurring Status = "recurring"
)

// Statuses lists every known status in display order.
var Statuses = []Status{StatusPending, StatusWaiting, StatusRecurring, StatusCompleted, StatusDeleted}

// ParseStatus converts a store status string. Unknown values map to pending,
// which is what Taskwarrior itself assumes for records without a status.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed":
		return StatusCompleted
	case "deleted":
		return StatusDeleted
	case "waiting":
		return StatusWaiting
	case "recurring":
		return StatusRecurring
	default:
		return StatusPending
	}
}

// IsClosed reports whether the status is terminal (completed or deleted).
func (s Status) IsClosed() bool {
	return s == StatusCompleted || s == StatusDeleted
}

// Priority is an ordered priority level. The zero value means "no priority".
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// Priorities lists every level from highest to lowest.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow, PriorityNone}

// ParsePriority accepts Taskwarrior's H/M/L codes as well as full names.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H", "HIGH":
		return PriorityHigh
	case "M", "MEDIUM":
		return PriorityMedium
	case "L", "LOW":
		return PriorityLow
	default:
		return PriorityNone
	}
}

// Code returns the Taskwarrior code (H, M, L) or "" for no priority.
func (p Priority) Code() string {
	switch p {
	case PriorityHigh:
		return "H"
	case PriorityMedium:
		return "M"
	case PriorityLow:
		return "L"
	default:
		return ""
	}
}

// String returns a human readable name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler so priorities render by name
// in JSON output and as map keys.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	*p = ParsePriority(string(b))
	return nil
}

// Annotation is a timestamped note attached to a task.
type Annotation struct {
	Entry       time.Time `json:"entry"`
	Description string    `json:"description"`
}

// Task is a single record from the external store.
type Task struct {
	// ID is Taskwarrior's short working-set id. Zero for closed tasks.
	ID          int          `json:"id"`
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Project     string       `json:"project,omitempty"`
	Priority    Priority     `json:"priority"`
	Status      Status       `json:"status"`
	Tags        []string     `json:"tags,omitempty"`
	Depends     []string     `json:"depends,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`

	Entry     time.Time  `json:"entry"`
	Modified  time.Time  `json:"modified"`
	Due       *time.Time `json:"due,omitempty"`
	Wait      *time.Time `json:"wait,omitempty"`
	Scheduled *time.Time `json:"scheduled,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Until     *time.Time `json:"until,omitempty"`

	Urgency float64 `json:"urgency"`
}

// IsActive reports whether work has started and not ended. The stored status
// is ignored.
func (t Task) IsActive() bool {
	return t.Start != nil && t.End == nil
}

// IsOverdue reports whether the task is past due at now and still open.
func (t Task) IsOverdue(now time.Time) bool {
	if t.Due == nil || t.Status.IsClosed() {
		return false
	}
	return t.Due.Before(now)
}

// IsBlocked reports whether the task depends on other tasks.
func (t Task) IsBlocked() bool {
	return len(t.Depends) > 0
}

// HasTag reports whether tag is in the task's tag set.
func (t Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// DisplayID returns the short id when there is one and the uuid prefix otherwise.
func (t Task) DisplayID() string {
	if t.ID > 0 {
		return strconv.Itoa(t.ID)
	}
	if len(t.UUID) >= 8 {
		return t.UUID[:8]
	}
	return t.UUID
}

// Ref returns the identifier to hand to the store when addressing this task.
// The uuid is preferred because working-set ids shift after every report.
func (t Task) Ref() string {
	if t.UUID != "" {
		return t.UUID
	}
	return strconv.Itoa(t.ID)
}
