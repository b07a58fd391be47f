package report

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/Jayphen/lazytask/internal/task"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func at(daysAgo int, hour int) time.Time {
	d := now.AddDate(0, 0, -daysAgo)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func uuidN(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

func fixture() []task.Task {
	return []task.Task{
		{ID: 1, UUID: uuidN(1), Description: "a", Project: "work", Priority: task.PriorityHigh, Status: task.StatusPending, Entry: at(40, 9), Modified: at(40, 9), Due: ptr(at(2, 0)), Urgency: 10},
		{ID: 2, UUID: uuidN(2), Description: "b", Project: "work", Priority: task.PriorityLow, Status: task.StatusPending, Entry: at(5, 9), Modified: at(1, 9), Start: ptr(at(1, 9)), Due: ptr(at(-3, 0)), Urgency: 6},
		{UUID: uuidN(3), Description: "c", Project: "work", Status: task.StatusCompleted, Entry: at(20, 9), Modified: at(3, 10), End: ptr(at(3, 10)), Due: ptr(at(10, 0)), Urgency: 0},
		{UUID: uuidN(4), Description: "d", Status: task.StatusCompleted, Entry: at(50, 9), Modified: at(45, 9), End: ptr(at(45, 9))},
		{UUID: uuidN(5), Description: "e", Project: "none", Status: task.StatusDeleted, Entry: at(10, 9), Modified: at(2, 9), End: ptr(at(2, 9))},
		{ID: 3, UUID: uuidN(6), Description: "f", Status: task.StatusWaiting, Entry: at(0, 8), Modified: at(0, 8), Urgency: 2},
		{ID: 4, UUID: uuidN(7), Description: "g", Project: "home", Priority: task.PriorityMedium, Status: task.StatusPending, Entry: at(0, 10), Modified: at(0, 10), Urgency: 4},
	}
}

func TestSummary(t *testing.T) {
	s := ComputeSummary(fixture(), Options{Now: now})

	if s.Total != 7 {
		t.Errorf("Total = %d, want 7", s.Total)
	}
	want := map[task.Status]int{
		task.StatusPending:   3,
		task.StatusCompleted: 2,
		task.StatusDeleted:   1,
		task.StatusWaiting:   1,
		task.StatusRecurring: 0,
	}
	for st, n := range want {
		if s.Count(st) != n {
			t.Errorf("Count(%s) = %d, want %d", st, s.Count(st), n)
		}
	}
	if s.ByPriority[task.PriorityNone] != 4 || s.ByPriority[task.PriorityHigh] != 1 {
		t.Errorf("ByPriority = %v", s.ByPriority)
	}
	if s.Active != 1 {
		t.Errorf("Active = %d, want 1", s.Active)
	}
	if s.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", s.Overdue)
	}
	if math.Abs(s.CompletionRate-0.4) > 1e-9 {
		t.Errorf("CompletionRate = %v, want 0.4", s.CompletionRate)
	}
	// open tasks: 1, 2, 6, 7 -> (10+6+2+4)/4
	if math.Abs(s.AverageUrgency-5.5) > 1e-9 {
		t.Errorf("AverageUrgency = %v, want 5.5", s.AverageUrgency)
	}
	if s.RecentlyAdded != 3 {
		t.Errorf("RecentlyAdded = %d, want 3", s.RecentlyAdded)
	}
	if s.CompletedLast7Days != 1 {
		t.Errorf("CompletedLast7Days = %d, want 1", s.CompletedLast7Days)
	}
}

func TestSummaryTrailingSevenDays(t *testing.T) {
	// now is a Tuesday; the window reaches back past the start of the calendar week.
	done := func(n int, end time.Time) task.Task {
		return task.Task{UUID: uuidN(n), Status: task.StatusCompleted, Entry: end.Add(-time.Hour), Modified: end, End: &end}
	}
	tasks := []task.Task{
		done(1, now.Add(-6*24*time.Hour-23*time.Hour)),
		done(2, now.Add(-7*24*time.Hour-time.Hour)),
		done(3, now.Add(-time.Minute)),
	}

	s := ComputeSummary(tasks, Options{Now: now})
	if s.CompletedLast7Days != 2 {
		t.Errorf("CompletedLast7Days = %d, want 2", s.CompletedLast7Days)
	}
}

func TestSummaryEmptyCompletionRate(t *testing.T) {
	s := ComputeSummary([]task.Task{{Status: task.StatusWaiting}}, Options{Now: now})
	if s.CompletionRate != 0 {
		t.Errorf("CompletionRate = %v, want 0", s.CompletionRate)
	}
	if s := ComputeSummary(nil, Options{Now: now}); s.Total != 0 || s.CompletionRate != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestBurndownRecurrence(t *testing.T) {
	b := ComputeBurndown(fixture(), Options{Now: now})
	if len(b.Points) != DefaultBurndownDays {
		t.Fatalf("len(Points) = %d, want %d", len(b.Points), DefaultBurndownDays)
	}

	prev := b.Initial
	for i, p := range b.Points {
		if want := prev - p.Completed + p.Added; p.Remaining != want {
			t.Errorf("point %d: Remaining = %d, want %d", i, p.Remaining, want)
		}
		if p.Remaining < 0 {
			t.Errorf("point %d: negative remaining", i)
		}
		prev = p.Remaining
	}

	last := b.Points[len(b.Points)-1]
	if !last.Start.Equal(at(0, 0)) {
		t.Errorf("last bucket starts %v, want today", last.Start)
	}
	// Open at the end of today: tasks 1, 2, 6 and 7.
	if last.Remaining != 4 {
		t.Errorf("final Remaining = %d, want 4", last.Remaining)
	}
	// Task 1 predates the window and is still open; task 4 closed before it.
	if b.Initial != 1 {
		t.Errorf("Initial = %d, want 1", b.Initial)
	}
	if last.Added != 2 {
		t.Errorf("today Added = %d, want 2", last.Added)
	}
	if b.Points[len(b.Points)-4].Completed != 1 {
		t.Errorf("completion three days ago not bucketed: %+v", b.Points[len(b.Points)-4])
	}
}

func TestBurndownMatchesOpenCount(t *testing.T) {
	// Ten tasks created five days ago; one finished on each of the next four days.
	var tasks []task.Task
	for i := 0; i < 10; i++ {
		tk := task.Task{UUID: uuidN(i + 1), Description: "t", Status: task.StatusPending, Entry: at(5, 9), Modified: at(5, 9)}
		if i < 4 {
			done := at(4-i, 12)
			tk.Status, tk.End, tk.Modified = task.StatusCompleted, &done, done
		}
		tasks = append(tasks, tk)
	}

	b := ComputeBurndown(tasks, Options{Now: now, BurndownDays: 6})
	if b.Initial != 0 {
		t.Errorf("Initial = %d, want 0", b.Initial)
	}

	openAt := func(boundary time.Time) int {
		n := 0
		for _, tk := range tasks {
			if !tk.Entry.Before(boundary) {
				continue
			}
			if tk.End != nil && tk.End.Before(boundary) {
				continue
			}
			n++
		}
		return n
	}

	want := []int{10, 9, 8, 7, 6, 6}
	for i, p := range b.Points {
		end := p.Start.AddDate(0, 0, 1)
		if got := openAt(end); p.Remaining != got {
			t.Errorf("day %s: Remaining = %d, open tasks = %d", p.Start.Format(time.DateOnly), p.Remaining, got)
		}
		if p.Remaining != want[i] {
			t.Errorf("day %d: Remaining = %d, want %d", i, p.Remaining, want[i])
		}
	}
}

func TestBurndownClampsEndBeforeEntry(t *testing.T) {
	tasks := []task.Task{{
		UUID:   uuidN(1),
		Status: task.StatusCompleted,
		Entry:  at(2, 12),
		End:    ptr(at(4, 12)),
	}}
	b := ComputeBurndown(tasks, Options{Now: now, BurndownDays: 7})
	for i, p := range b.Points {
		if p.Remaining != 0 {
			t.Errorf("point %d: Remaining = %d, want 0", i, p.Remaining)
		}
	}
	if got := b.Points[4]; got.Added != 1 || got.Completed != 1 {
		t.Errorf("bucket = %+v, want one added and completed", got)
	}
}

func TestProjects(t *testing.T) {
	stats := ComputeProjects(fixture())

	names := make([]string, len(stats))
	for i, s := range stats {
		names[i] = s.Name
	}
	want := []string{"work", "home", "none"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", names, want)
	}

	work := stats[0]
	if work.Total != 3 || work.Pending != 2 || work.Completed != 1 {
		t.Errorf("work counts = %+v", work)
	}
	if math.Abs(work.CompletionRate-1.0/3.0) > 1e-9 {
		t.Errorf("work CompletionRate = %v", work.CompletionRate)
	}
	// Task 3's earlier due date is ignored because it is completed.
	if work.NextDue == nil || !work.NextDue.Equal(at(2, 0)) {
		t.Errorf("work NextDue = %v, want %v", work.NextDue, at(2, 0))
	}
	if math.Abs(work.Urgency-8) > 1e-9 {
		t.Errorf("work Urgency = %v, want mean of open tasks 8", work.Urgency)
	}

	none := stats[2]
	if none.Total != 3 || none.Deleted != 1 || none.Waiting != 1 || none.Completed != 1 {
		t.Errorf("none bucket = %+v", none)
	}
	if none.NextDue != nil {
		t.Errorf("none NextDue = %v, want nil", none.NextDue)
	}
}

func TestProjectsUrgencyZeroWithoutOpenTasks(t *testing.T) {
	stats := ComputeProjects([]task.Task{{UUID: uuidN(1), Project: "done", Status: task.StatusCompleted, Urgency: 9}})
	if len(stats) != 1 || stats[0].Urgency != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestActivityOrdering(t *testing.T) {
	a := ComputeActivity(fixture(), Options{Now: now})

	for i := 1; i < len(a.Events); i++ {
		prev, cur := a.Events[i-1], a.Events[i]
		if cur.At.After(prev.At) {
			t.Fatalf("events out of order at %d: %v after %v", i, cur.At, prev.At)
		}
		if cur.At.Equal(prev.At) && cur.UUID < prev.UUID {
			t.Fatalf("tie not broken by uuid at %d", i)
		}
	}

	kinds := map[EventKind]int{}
	for _, ev := range a.Events {
		kinds[ev.Kind]++
		if !ev.At.After(a.Since) || ev.At.After(now) {
			t.Errorf("event outside window: %+v", ev)
		}
	}
	// created: 2, 6, 7; completed: 3; deleted: 5; modified-only: 2
	if kinds[EventCreated] != 3 || kinds[EventCompleted] != 1 || kinds[EventDeleted] != 1 || kinds[EventModified] != 1 {
		t.Errorf("kinds = %v", kinds)
	}
	if a.Events[0].UUID != uuidN(7) {
		t.Errorf("newest event = %+v", a.Events[0])
	}
}

func TestActivityLimitAndStableIteration(t *testing.T) {
	var tasks []task.Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, task.Task{UUID: uuidN(i), Entry: now.Add(-time.Hour), Modified: now.Add(-time.Hour)})
	}

	a := ComputeActivity(tasks, Options{Now: now, ActivityLimit: 5})
	if len(a.Events) != 5 || !a.Truncated {
		t.Fatalf("got %d events, truncated=%v", len(a.Events), a.Truncated)
	}
	for i, ev := range a.Events {
		if ev.UUID != uuidN(i) {
			t.Errorf("event %d uuid = %s, want %s", i, ev.UUID, uuidN(i))
		}
	}

	seq := Timeline(tasks, now.Add(-time.Hour*24), now)
	var first, second []string
	for ev := range seq {
		first = append(first, ev.UUID)
	}
	for ev := range seq {
		second = append(second, ev.UUID)
	}
	if fmt.Sprint(first) != fmt.Sprint(second) || len(first) != 20 {
		t.Errorf("iteration not stable: %d vs %d events", len(first), len(second))
	}
}

func TestComputeListSortsByUrgency(t *testing.T) {
	r, err := Compute(KindList, fixture(), Options{Now: now})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if r.Tasks[0].UUID != uuidN(1) || r.Tasks[1].UUID != uuidN(2) {
		t.Errorf("unexpected order: %s, %s", r.Tasks[0].UUID, r.Tasks[1].UUID)
	}

	if _, err := Compute("bogus", nil, Options{}); err == nil {
		t.Error("Compute should reject unknown kinds")
	}
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"summary", "Burndown", "projects", "project", "activity", "list"} {
		if _, err := ParseKind(in); err != nil {
			t.Errorf("ParseKind(%q) failed: %v", in, err)
		}
	}
	if _, err := ParseKind("calendar"); err == nil {
		t.Error("ParseKind should reject unknown kinds")
	}
}
