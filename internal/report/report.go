// Package report derives aggregate views from a task record set.
//
// Every function here is pure: the same records and options always produce
// the same report. Callers pass the clock in through Options.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

// Kind identifies a report.
type Kind string

const (
	KindSummary  Kind = "summary"
	KindBurndown Kind = "burndown"
	KindProjects Kind = "projects"
	KindActivity Kind = "activity"
	// KindList is the filtered, urgency-sorted task list backing the main view.
	KindList Kind = "list"
)

// Kinds lists the aggregate report kinds in display order.
var Kinds = []Kind{KindSummary, KindBurndown, KindProjects, KindActivity}

// ParseKind converts a user-supplied kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSummary, KindBurndown, KindProjects, KindActivity, KindList:
		return k, nil
	case "project":
		return KindProjects, nil
	}
	return "", fmt.Errorf("unknown report kind %q (summary, burndown, projects, activity, list)", s)
}

// Defaults applied by Options.withDefaults.
const (
	DefaultBurndownDays   = 30
	DefaultActivityWindow = 7 * 24 * time.Hour
	DefaultActivityLimit  = 50
	recentWindow          = 7 * 24 * time.Hour
)

// Options parameterises report computation.
type Options struct {
	Now            time.Time
	BurndownDays   int
	ActivityWindow time.Duration
	ActivityLimit  int
	// Location defines day boundaries for burndown buckets. Defaults to Now's.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.BurndownDays <= 0 {
		o.BurndownDays = DefaultBurndownDays
	}
	if o.ActivityWindow <= 0 {
		o.ActivityWindow = DefaultActivityWindow
	}
	if o.ActivityLimit <= 0 {
		o.ActivityLimit = DefaultActivityLimit
	}
	if o.Location == nil {
		o.Location = o.Now.Location()
	}
	return o
}

// Report is the result of Compute. Exactly one payload field is set,
// matching Kind.
type Report struct {
	Kind     Kind           `json:"kind"`
	Summary  *Summary       `json:"summary,omitempty"`
	Burndown *Burndown      `json:"burndown,omitempty"`
	Projects []ProjectStats `json:"projects,omitempty"`
	Activity *Activity      `json:"activity,omitempty"`
	Tasks    []task.Task    `json:"tasks,omitempty"`
}

// Compute derives the report of the given kind from tasks.
func Compute(kind Kind, tasks []task.Task, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	r := &Report{Kind: kind}
	switch kind {
	case KindSummary:
		s := ComputeSummary(tasks, opts)
		r.Summary = &s
	case KindBurndown:
		b := ComputeBurndown(tasks, opts)
		r.Burndown = &b
	case KindProjects:
		r.Projects = ComputeProjects(tasks)
	case KindActivity:
		a := ComputeActivity(tasks, opts)
		r.Activity = &a
	case KindList:
		r.Tasks = SortByUrgency(tasks)
	default:
		return nil, fmt.Errorf("unknown report kind %q", kind)
	}
	return r, nil
}

// SortByUrgency returns a copy of tasks ordered by urgency descending, then
// display id ascending.
func SortByUrgency(tasks []task.Task) []task.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b task.Task) int {
		switch {
		case a.Urgency > b.Urgency:
			return -1
		case a.Urgency < b.Urgency:
			return 1
		}
		if c := compareID(a.ID, b.ID); c != 0 {
			return c
		}
		return strings.Compare(a.UUID, b.UUID)
	})
	return out
}

// compareID orders short ids ascending with closed tasks (id 0) last.
func compareID(a, b int) int {
	switch {
	case a == b:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}
