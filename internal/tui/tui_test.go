package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Jayphen/lazytask/internal/engine"
	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/task"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

const (
	uuidGroceries = "1f0e8d58-6c1a-4e56-9a43-0a6f2a4b7c01"
	uuidReport    = "2a7b9c4e-3d21-4f0a-8b6c-5e4d3c2b1a02"
	uuidFence     = "3c8d0e6f-4b32-4a1b-9c7d-6f5e4d3c2b03"
)

// fakeEngine serves queries from an in-memory task list.
type fakeEngine struct {
	mu        sync.Mutex
	gen       uint64
	tasks     []task.Task
	pending   map[report.Kind]chan struct{}
	mutations []task.Mutation
	mutateErr error
	onMutate  func(*fakeEngine)
	syncs     int
	refreshes int
}

func newFakeEngine() *fakeEngine {
	started := testNow.Add(-time.Hour)
	due := testNow.Add(-24 * time.Hour)
	return &fakeEngine{
		gen: 1,
		tasks: []task.Task{
			{ID: 1, UUID: uuidGroceries, Description: "Buy groceries", Project: "home", Status: task.StatusPending, Urgency: 2.5, Entry: testNow.Add(-48 * time.Hour)},
			{ID: 2, UUID: uuidReport, Description: "Write report", Project: "work", Priority: task.PriorityHigh, Status: task.StatusPending, Urgency: 9.1, Start: &started, Due: &due, Entry: testNow.Add(-72 * time.Hour)},
			{UUID: uuidFence, Description: "Fix the fence", Project: "home", Status: task.StatusCompleted, Entry: testNow.Add(-96 * time.Hour), End: &started},
		},
		pending: make(map[report.Kind]chan struct{}),
	}
}

func (f *fakeEngine) Query(spec filter.Spec, kind report.Kind) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch := f.pending[kind]; ch != nil {
		select {
		case <-ch:
		default:
			return engine.Result{State: engine.StatePending, Generation: f.gen, Done: ch}
		}
	}
	rep, err := report.Compute(kind, spec.Apply(f.tasks, testNow), report.Options{Now: testNow})
	if err != nil {
		return engine.Result{State: engine.StateFailed, Err: err}
	}
	return engine.Result{State: engine.StateReady, Generation: f.gen, Report: rep, ComputedAt: testNow}
}

func (f *fakeEngine) Mutate(_ context.Context, m task.Mutation) (task.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, m)
	if f.mutateErr != nil {
		return task.Outcome{}, f.mutateErr
	}
	f.gen++
	if f.onMutate != nil {
		f.onMutate(f)
	}
	return task.Outcome{}, nil
}

func (f *fakeEngine) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeEngine) CurrentGeneration() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *fakeEngine) RequestSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
}

func (f *fakeEngine) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Status{Generation: f.gen, Loaded: true, Source: "direct", Tasks: len(f.tasks)}
}

func (f *fakeEngine) lastMutation() task.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.mutations) == 0 {
		return task.Mutation{}
	}
	return f.mutations[len(f.mutations)-1]
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// loadedModel returns a model that has processed its start message.
func loadedModel(t *testing.T, eng *fakeEngine) Model {
	t.Helper()
	m := NewModel(eng, Options{Version: "test", Now: func() time.Time { return testNow }, RefreshInterval: time.Hour})
	updated, _ := m.Update(startMsg{})
	m = updated.(Model)
	if m.loading {
		t.Fatal("model still loading after start")
	}
	return m
}

func press(m Model, keys ...string) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var updated tea.Model
		updated, cmd = m.Update(key(k))
		m = updated.(Model)
	}
	return m, cmd
}

func TestNewModel(t *testing.T) {
	m := NewModel(newFakeEngine(), Options{Version: "1.0.0"})

	if m.opts.Version != "1.0.0" {
		t.Errorf("version = %q, want %q", m.opts.Version, "1.0.0")
	}
	if !m.loading {
		t.Error("expected loading to be true on new model")
	}
	if !filter.Equal(m.filter, filter.Pending()) {
		t.Errorf("filter = %q, want pending", m.filter.String())
	}
	if m.reportKind != report.KindSummary {
		t.Errorf("reportKind = %q, want summary", m.reportKind)
	}
	if m.mode != modeNormal {
		t.Error("expected normal mode on new model")
	}
}

func TestNewModelInitialFilter(t *testing.T) {
	m := NewModel(newFakeEngine(), Options{Filter: "project:work +next"})
	if m.filter.Project != "work" || len(m.filter.Tags) != 1 {
		t.Errorf("filter = %+v", m.filter)
	}

	m = NewModel(newFakeEngine(), Options{Filter: "status:bogus"})
	if !filter.Equal(m.filter, filter.Pending()) {
		t.Error("invalid initial filter should fall back to pending")
	}
	if m.statusMessage == "" {
		t.Error("invalid initial filter should be reported")
	}
}

func TestStartLoadsListAndReport(t *testing.T) {
	m := loadedModel(t, newFakeEngine())

	if len(m.tasks) != 2 {
		t.Fatalf("got %d tasks, want 2 pending", len(m.tasks))
	}
	if m.tasks[0].UUID != uuidReport {
		t.Errorf("first task = %q, want most urgent", m.tasks[0].Description)
	}
	if m.listGen != 1 {
		t.Errorf("listGen = %d, want 1", m.listGen)
	}
	if m.report == nil || m.report.Summary == nil {
		t.Fatal("summary report not loaded")
	}
	// The side panel widens the filter to every status.
	if got := m.report.Summary.Count(task.StatusCompleted); got != 1 {
		t.Errorf("summary completed = %d, want 1", got)
	}
}

func TestPendingQueryResolves(t *testing.T) {
	eng := newFakeEngine()
	done := make(chan struct{})
	eng.pending[report.KindList] = done

	m := NewModel(eng, Options{Now: func() time.Time { return testNow }})
	cmd := m.query(report.KindList)
	if cmd == nil {
		t.Fatal("pending query should return a wait command")
	}
	if !m.loading || len(m.tasks) != 0 {
		t.Fatal("pending query must not populate the list")
	}

	close(done)
	msg := cmd()
	resolved, ok := msg.(resolvedMsg)
	if !ok {
		t.Fatalf("expected resolvedMsg, got %T", msg)
	}

	updated, _ := m.Update(resolved)
	m = updated.(Model)
	if m.loading || len(m.tasks) != 2 {
		t.Errorf("loading = %v, tasks = %d after resolve", m.loading, len(m.tasks))
	}
}

func TestResultForOldFilterIgnored(t *testing.T) {
	eng := newFakeEngine()
	m := loadedModel(t, eng)

	old := m.filter.Canonical()
	m, _ = press(m, "/")
	m.input.SetValue("status:pending project:home")
	m, _ = press(m, "enter")
	if len(m.tasks) != 1 {
		t.Fatalf("got %d tasks for project:home", len(m.tasks))
	}

	stale := resultMsg{kind: report.KindList, canon: old, res: eng.Query(filter.Pending(), report.KindList)}
	updated, _ := m.Update(stale)
	m = updated.(Model)
	if len(m.tasks) != 1 {
		t.Errorf("result for replaced filter was applied: %d tasks", len(m.tasks))
	}
}

func TestKeyboardNavigation(t *testing.T) {
	tests := []struct {
		name          string
		initialIndex  int
		key           string
		expectedIndex int
	}{
		{"down arrow moves selection down", 0, "down", 1},
		{"up arrow moves selection up", 1, "up", 0},
		{"j key moves selection down", 0, "j", 1},
		{"k key moves selection up", 1, "k", 0},
		{"down arrow at bottom stays at bottom", 1, "down", 1},
		{"up arrow at top stays at top", 0, "up", 0},
		{"G jumps to bottom", 0, "G", 1},
		{"g jumps to top", 1, "g", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadedModel(t, newFakeEngine())
			m.selectedIndex = tt.initialIndex

			m, _ = press(m, tt.key)

			if m.selectedIndex != tt.expectedIndex {
				t.Errorf("selectedIndex = %d, want %d", m.selectedIndex, tt.expectedIndex)
			}
		})
	}
}

func TestMutationKeys(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		key      string
		wantKind task.MutationKind
		wantUUID string
	}{
		{"done", 1, "d", task.MutationDone, uuidGroceries},
		{"start inactive task", 1, "s", task.MutationStart, uuidGroceries},
		{"stop active task", 0, "s", task.MutationStop, uuidReport},
		{"duplicate", 0, "y", task.MutationDuplicate, uuidReport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			m := loadedModel(t, eng)
			m.selectedIndex = tt.index

			m, cmd := press(m, tt.key)
			if cmd == nil {
				t.Fatal("expected a mutation command")
			}
			if !m.mutating {
				t.Error("expected mutating to be set while the command runs")
			}
			msg, ok := cmd().(mutationDoneMsg)
			if !ok {
				t.Fatal("expected mutationDoneMsg")
			}
			if msg.err != nil {
				t.Fatalf("mutation failed: %v", msg.err)
			}

			got := eng.lastMutation()
			if got.Kind != tt.wantKind || got.UUID != tt.wantUUID {
				t.Errorf("mutation = %s %s, want %s %s", got.Kind, got.UUID, tt.wantKind, tt.wantUUID)
			}
		})
	}
}

func TestMutationWhileMutating(t *testing.T) {
	m := loadedModel(t, newFakeEngine())
	m, _ = press(m, "d")
	m, cmd := press(m, "d")
	if cmd != nil {
		t.Error("second mutation should be refused while one is in flight")
	}
	if !strings.Contains(m.statusMessage, "still being applied") {
		t.Errorf("statusMessage = %q", m.statusMessage)
	}
}

func TestMutationSuccessShowsNewGeneration(t *testing.T) {
	eng := newFakeEngine()
	eng.onMutate = func(f *fakeEngine) {
		f.tasks[0].Status = task.StatusCompleted
	}
	m := loadedModel(t, eng)
	m.selectedIndex = 1

	m, cmd := press(m, "d")
	updated, _ := m.Update(cmd())
	m = updated.(Model)

	if m.mutating {
		t.Error("mutating still set after completion")
	}
	if m.listGen != 2 {
		t.Errorf("listGen = %d, want 2 after mutation", m.listGen)
	}
	if len(m.tasks) != 1 {
		t.Errorf("got %d pending tasks after completing one, want 1", len(m.tasks))
	}
	if m.statusMessage != "Completed" {
		t.Errorf("statusMessage = %q", m.statusMessage)
	}
}

func TestMutationFailureKeepsList(t *testing.T) {
	eng := newFakeEngine()
	eng.mutateErr = errors.New("task exited with status 1")
	m := loadedModel(t, eng)

	m, cmd := press(m, "d")
	updated, _ := m.Update(cmd())
	m = updated.(Model)

	if !strings.Contains(m.statusMessage, "Completed failed") {
		t.Errorf("statusMessage = %q", m.statusMessage)
	}
	if m.listGen != 1 || len(m.tasks) != 2 {
		t.Errorf("list changed after failed mutation: gen %d, %d tasks", m.listGen, len(m.tasks))
	}
}

func TestDeleteConfirmation(t *testing.T) {
	eng := newFakeEngine()
	m := loadedModel(t, eng)

	m, _ = press(m, "D")
	if m.mode != modeConfirmDelete {
		t.Fatal("D should ask for confirmation")
	}
	if !strings.Contains(m.View(), "Delete") {
		t.Error("confirmation dialog not rendered")
	}

	m, cmd := press(m, "n")
	if cmd != nil || m.mode != modeNormal {
		t.Error("n should cancel the delete")
	}
	if len(eng.mutations) != 0 {
		t.Error("cancelled delete reached the engine")
	}

	m, _ = press(m, "D")
	_, cmd = press(m, "y")
	if cmd == nil {
		t.Fatal("y should delete")
	}
	cmd()
	if got := eng.lastMutation(); got.Kind != task.MutationDelete || got.UUID != uuidReport {
		t.Errorf("mutation = %+v", got)
	}
}

func TestInputModes(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, m task.Mutation)
	}{
		{
			name:  "add",
			key:   "a",
			value: "project:home +errand Buy milk",
			check: func(t *testing.T, m task.Mutation) {
				if m.Kind != task.MutationAdd || m.Description != "Buy milk" || m.UUID != "" {
					t.Errorf("mutation = %+v", m)
				}
				if m.Project == nil || *m.Project != "home" {
					t.Errorf("project = %v", m.Project)
				}
			},
		},
		{
			name:  "modify",
			key:   "m",
			value: "priority:L -next",
			check: func(t *testing.T, m task.Mutation) {
				if m.Kind != task.MutationModify || m.UUID != uuidReport {
					t.Errorf("mutation = %+v", m)
				}
				if m.Priority == nil || *m.Priority != task.PriorityLow {
					t.Errorf("priority = %v", m.Priority)
				}
			},
		},
		{
			name:  "annotate",
			key:   "A",
			value: "waiting on numbers from finance",
			check: func(t *testing.T, m task.Mutation) {
				if m.Kind != task.MutationAnnotate || m.Annotation != "waiting on numbers from finance" {
					t.Errorf("mutation = %+v", m)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			m := loadedModel(t, eng)

			m, _ = press(m, tt.key)
			if m.mode == modeNormal {
				t.Fatal("expected input mode")
			}
			m.input.SetValue(tt.value)
			m, cmd := press(m, "enter")
			if m.mode != modeNormal {
				t.Error("enter should close the input")
			}
			if cmd == nil {
				t.Fatal("expected a mutation command")
			}
			cmd()
			tt.check(t, eng.lastMutation())
		})
	}
}

func TestInputEscapeCancels(t *testing.T) {
	eng := newFakeEngine()
	m := loadedModel(t, eng)

	m, _ = press(m, "a")
	m.input.SetValue("Something")
	m, cmd := press(m, "esc")
	if m.mode != modeNormal || cmd != nil {
		t.Error("esc should close the input without a command")
	}
	if m.statusMessage != "Cancelled" {
		t.Errorf("statusMessage = %q", m.statusMessage)
	}
	if len(eng.mutations) != 0 {
		t.Error("cancelled add reached the engine")
	}
}

func TestFilterInput(t *testing.T) {
	m := loadedModel(t, newFakeEngine())

	m, _ = press(m, "/")
	if m.input.Value() != m.filter.String() {
		t.Errorf("filter input prefilled with %q, want %q", m.input.Value(), m.filter.String())
	}
	m.input.SetValue("status:all project:home")
	m, _ = press(m, "enter")

	if len(m.tasks) != 2 {
		t.Errorf("got %d tasks for status:all project:home, want 2", len(m.tasks))
	}

	m, _ = press(m, "/")
	m.input.SetValue("priority:urgent")
	m, _ = press(m, "enter")
	if !strings.Contains(m.statusMessage, "priority") {
		t.Errorf("invalid filter not reported: %q", m.statusMessage)
	}
	if m.filter.Project != "home" {
		t.Error("invalid filter replaced the current one")
	}

	m, _ = press(m, "c")
	if !filter.Equal(m.filter, filter.Pending()) || len(m.tasks) != 2 {
		t.Errorf("c should reset to pending, got %q with %d tasks", m.filter.String(), len(m.tasks))
	}
}

func TestTickRequeriesOnGenerationChange(t *testing.T) {
	eng := newFakeEngine()
	m := loadedModel(t, eng)

	eng.mu.Lock()
	eng.gen = 5
	eng.tasks = eng.tasks[:1]
	eng.mu.Unlock()

	updated, _ := m.Update(tickMsg(testNow))
	m = updated.(Model)
	if m.listGen != 5 || len(m.tasks) != 1 {
		t.Errorf("listGen = %d, tasks = %d after tick", m.listGen, len(m.tasks))
	}
	if m.status.Generation != 5 {
		t.Errorf("status generation = %d", m.status.Generation)
	}
}

func TestTabCyclesReport(t *testing.T) {
	m := loadedModel(t, newFakeEngine())

	want := []report.Kind{report.KindBurndown, report.KindProjects, report.KindActivity, report.KindSummary}
	for _, kind := range want {
		m, _ = press(m, "tab")
		if m.reportKind != kind {
			t.Fatalf("reportKind = %q, want %q", m.reportKind, kind)
		}
		if m.report == nil || m.report.Kind != kind {
			t.Errorf("report for %q not loaded", kind)
		}
	}
}

func TestSyncKey(t *testing.T) {
	eng := newFakeEngine()
	m := loadedModel(t, eng)

	m, _ = press(m, "S")
	if eng.syncs != 1 {
		t.Errorf("sync requests = %d, want 1", eng.syncs)
	}
	if m.statusMessage != "Sync requested" {
		t.Errorf("statusMessage = %q", m.statusMessage)
	}
}

func TestView(t *testing.T) {
	m := loadedModel(t, newFakeEngine())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"lazytask", "Write report", "Buy groceries", "Summary", "status:pending"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestEmbeddedTerminal(t *testing.T) {
	eng := newFakeEngine()
	m := loadedModel(t, eng)
	pty := newMockPTY()

	updated, _ := m.Update(termStartedMsg{term: NewTermView(uuidReport, "task 2 info", pty)})
	m = updated.(Model)
	if m.term == nil {
		t.Fatal("terminal not opened")
	}

	// Keys go to the terminal, not the task list.
	m, _ = press(m, "d")
	if len(eng.mutations) != 0 {
		t.Error("key leaked to the task list while the terminal was open")
	}

	m, _ = press(m, "i")
	if !m.term.IsFocused() {
		t.Fatal("i should focus the terminal")
	}
	m, _ = press(m, "x")
	if pty.String() != "x" {
		t.Errorf("pty received %q, want %q", pty.String(), "x")
	}

	m.term.SetFocused(false)
	m, cmd := press(m, "esc")
	if m.term != nil {
		t.Error("esc should close the terminal")
	}
	if cmd == nil {
		t.Fatal("closing the terminal should refresh")
	}
	cmd()
	if eng.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", eng.refreshes)
	}
}

func TestFormatDue(t *testing.T) {
	tests := []struct {
		due  time.Time
		want string
	}{
		{testNow.Add(3 * 24 * time.Hour), "3d"},
		{testNow.Add(-2 * time.Hour), "-2h"},
		{testNow.Add(30 * time.Minute), "30m"},
		{testNow.Add(21 * 24 * time.Hour), "3w"},
	}
	for _, tt := range tests {
		if got := formatDue(tt.due, testNow); got != tt.want {
			t.Errorf("formatDue(%v) = %q, want %q", tt.due, got, tt.want)
		}
	}
}

func TestRenderProgressBar(t *testing.T) {
	if got := RenderProgressBar(50, 10); got != strings.Repeat(ProgressFilled, 5)+strings.Repeat(ProgressEmpty, 5) {
		t.Errorf("RenderProgressBar(50, 10) = %q", got)
	}
	if got := RenderProgressBar(150, 4); got != strings.Repeat(ProgressFilled, 4) {
		t.Errorf("RenderProgressBar(150, 4) = %q", got)
	}
}
