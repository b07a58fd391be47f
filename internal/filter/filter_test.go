package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrBool(b bool) *bool           { return &b }
func ptrPriority(p task.Priority) *task.Priority {
	return &p
}

func sampleTasks() []task.Task {
	past := now.Add(-72 * time.Hour)
	future := now.Add(72 * time.Hour)
	start := now.Add(-time.Hour)
	return []task.Task{
		{ID: 1, UUID: "u1", Description: "Buy groceries", Project: "home.shopping", Priority: task.PriorityLow, Status: task.StatusPending, Tags: []string{"errand"}},
		{ID: 2, UUID: "u2", Description: "Write quarterly REPORT", Project: "work", Priority: task.PriorityHigh, Status: task.StatusPending, Tags: []string{"next", "office"}, Due: &past},
		{ID: 3, UUID: "u3", Description: "Fix the fence", Project: "home", Status: task.StatusCompleted, Due: &past},
		{ID: 4, UUID: "u4", Description: "Old idea", Status: task.StatusDeleted},
		{ID: 5, UUID: "u5", Description: "Review PR", Project: "work", Priority: task.PriorityMedium, Status: task.StatusPending, Start: &start, Due: &future, Depends: []string{"u2"}},
		{ID: 6, UUID: "u6", Description: "Plan vacation", Status: task.StatusWaiting, Tags: []string{"later"}},
	}
}

func ids(tasks []task.Task) []int {
	out := make([]int, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []int
	}{
		{"zero spec matches everything including deleted", Spec{}, []int{1, 2, 3, 4, 5, 6}},
		{"status pending", Spec{Status: task.StatusPending}, []int{1, 2, 5}},
		{"status deleted is selectable", Spec{Status: task.StatusDeleted}, []int{4}},
		{"project substring", Spec{Project: "home"}, []int{1, 3}},
		{"project exact", Spec{Project: "home", ProjectExact: true}, []int{3}},
		{"priority high", Spec{Priority: ptrPriority(task.PriorityHigh)}, []int{2}},
		{"priority none", Spec{Priority: ptrPriority(task.PriorityNone)}, []int{3, 4, 6}},
		{"all tags required", Spec{Tags: []string{"next", "office"}}, []int{2}},
		{"exclude tag", Spec{Status: task.StatusPending, ExcludeTags: []string{"next"}}, []int{1, 5}},
		{"text case insensitive", Spec{Text: "report"}, []int{2}},
		{"due before now", Spec{DueBefore: ptrTime(now)}, []int{2, 3}},
		{"due after now", Spec{DueAfter: ptrTime(now)}, []int{5}},
		{"active", Spec{Active: ptrBool(true)}, []int{5}},
		{"overdue excludes completed", Spec{Overdue: ptrBool(true)}, []int{2}},
		{"blocked", Spec{Blocked: ptrBool(true)}, []int{5}},
		{"not blocked pending", Spec{Status: task.StatusPending, Blocked: ptrBool(false)}, []int{1, 2}},
		{"conjunction", Spec{Project: "work", Status: task.StatusPending, Text: "review"}, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.spec.Apply(sampleTasks(), now))
			if !equalInts(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	specs := []Spec{
		Pending(),
		{Project: "home"},
		{Overdue: ptrBool(true)},
		{Text: "e", Tags: []string{"errand"}},
	}
	for _, s := range specs {
		once := s.Apply(sampleTasks(), now)
		twice := s.Apply(once, now)
		if !equalInts(ids(once), ids(twice)) {
			t.Errorf("filter %q not idempotent: %v then %v", s, ids(once), ids(twice))
		}
	}
}

func TestActiveIgnoresStatus(t *testing.T) {
	start := now.Add(-time.Minute)
	tk := task.Task{Status: task.StatusPending, Start: &start}
	if !(Spec{Active: ptrBool(true)}).Matches(tk, now) {
		t.Error("pending task with start and no end should be active")
	}
}

func TestCanonicalEquivalence(t *testing.T) {
	a := Spec{Tags: []string{"b", "a", "a"}, Text: "Milk", Status: task.StatusPending}
	b := Spec{Status: task.StatusPending, Text: "milk", Tags: []string{"a", "b"}}
	if !Equal(a, b) {
		t.Errorf("specs should be equivalent:\n%s\n%s", a.Canonical(), b.Canonical())
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equivalent specs should share a fingerprint")
	}

	c := Spec{Status: task.StatusPending, Text: "milk", Tags: []string{"a"}}
	if Equal(a, c) {
		t.Error("different tag sets must not be equivalent")
	}
	d := Spec{Project: "home", ProjectExact: true}
	e := Spec{Project: "home"}
	if Equal(d, e) {
		t.Error("exact and substring project must not be equivalent")
	}
	if !(Spec{}).IsZero() || Pending().IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("status:pending project:home +errand -later pri:L due.before:2026-04-01 buy milk", now)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if s.Status != task.StatusPending || s.Project != "home" || s.ProjectExact {
		t.Errorf("unexpected status/project: %+v", s)
	}
	if s.Priority == nil || *s.Priority != task.PriorityLow {
		t.Errorf("priority = %v", s.Priority)
	}
	if len(s.Tags) != 1 || s.Tags[0] != "errand" || len(s.ExcludeTags) != 1 || s.ExcludeTags[0] != "later" {
		t.Errorf("tags = %v / %v", s.Tags, s.ExcludeTags)
	}
	if s.DueBefore == nil || !s.DueBefore.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due.before = %v", s.DueBefore)
	}
	if s.Text != "buy milk" {
		t.Errorf("text = %q", s.Text)
	}
}

func TestParseVirtualTagsAndRelativeDates(t *testing.T) {
	s, err := Parse("+OVERDUE -BLOCKED +ACTIVE due.after:yesterday status:all", now)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if s.Overdue == nil || !*s.Overdue || s.Blocked == nil || *s.Blocked || s.Active == nil || !*s.Active {
		t.Errorf("virtual tags not applied: %+v", s)
	}
	if s.Status != "" {
		t.Errorf("status:all should clear status, got %q", s.Status)
	}
	if want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC); !s.DueAfter.Equal(want) {
		t.Errorf("due.after = %v, want %v", s.DueAfter, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{"status:bogus", "priority:urgent", "due.before:someday"} {
		if _, err := Parse(expr, now); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidExpression", expr, err)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	exprs := []string{
		"status:waiting project.is:work priority:H +a +b -c +OVERDUE fix bug",
		"due.before:2026-04-01T00:00:00Z -ACTIVE",
		"",
	}
	for _, expr := range exprs {
		s, err := Parse(expr, now)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", expr, err)
		}
		again, err := Parse(s.String(), now)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s.String(), err)
		}
		if !Equal(s, again) {
			t.Errorf("round trip changed spec: %q -> %q", expr, again.String())
		}
	}
}
