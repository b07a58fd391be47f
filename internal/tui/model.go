package tui

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Jayphen/lazytask/internal/engine"
	"github.com/Jayphen/lazytask/internal/filter"
	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/task"
)

// Engine is the part of *engine.Engine the UI uses.
type Engine interface {
	Query(f filter.Spec, kind report.Kind) engine.Result
	Mutate(ctx context.Context, m task.Mutation) (task.Outcome, error)
	Refresh(ctx context.Context) error
	CurrentGeneration() uint64
	RequestSync()
	Status() engine.Status
}

// Options configures the model.
type Options struct {
	Version string
	// Filter is the initial filter expression.
	Filter string
	// Report is the kind shown in the side panel.
	Report report.Kind
	// RefreshInterval is how often the generation is checked for changes.
	RefreshInterval time.Duration
	// Command builds task invocations for `edit` and `info`. Nil disables both.
	Command func(args ...string) *exec.Cmd
	Now     func() time.Time
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeFilter
	modeAdd
	modeModify
	modeAnnotate
	modeConfirmDelete
)

// Model is the Bubbletea model for the TUI.
type Model struct {
	eng  Engine
	opts Options

	// Data
	tasks         []task.Task
	listGen       uint64
	selectedIndex int
	filter        filter.Spec
	report        *report.Report
	reportKind    report.Kind
	reportGen     uint64
	status        engine.Status

	// UI state
	loading       bool
	err           error
	statusMessage string
	statusExpiry  time.Time
	mode          inputMode
	input         textinput.Model
	mutating      bool
	width, height int

	// Components
	spinner spinner.Model
	term    *TermView
}

// Messages
type (
	// resultMsg carries a query answer for the filter with canonical form canon.
	resultMsg struct {
		kind  report.Kind
		canon string
		res   engine.Result
	}
	// resolvedMsg means a pending query's computation finished.
	resolvedMsg struct {
		kind  report.Kind
		canon string
	}
	startMsg        struct{}
	tickMsg         time.Time
	statusClearMsg  struct{}
	mutationDoneMsg struct {
		label string
		out   task.Outcome
		err   error
	}
	refreshDoneMsg struct{ err error }
	editDoneMsg    struct{ err error }
	termStartedMsg struct {
		term TermView
		err  error
	}
)

// NewModel creates a new TUI model.
func NewModel(eng Engine, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if opts.Report == "" {
		opts.Report = report.KindSummary
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorCyan)

	ti := textinput.New()
	ti.CharLimit = task.MaxDescriptionLength
	ti.Width = 60

	m := Model{
		eng:        eng,
		opts:       opts,
		filter:     filter.Pending(),
		reportKind: opts.Report,
		loading:    true,
		spinner:    s,
		input:      ti,
	}
	if opts.Filter != "" {
		if f, err := filter.Parse(opts.Filter, opts.Now()); err == nil {
			m.filter = f
		} else {
			m.setStatus(err.Error())
		}
	}
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return startMsg{} },
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.term != nil {
			t, _ := m.term.Update(m.termSize())
			m.term = &t
		}
		return m, nil

	case startMsg:
		m.status = m.eng.Status()
		cmd := m.requery()
		return m, tea.Batch(cmd, m.tick())

	case tickMsg:
		m.status = m.eng.Status()
		var cmd tea.Cmd
		if !m.loading && m.eng.CurrentGeneration() != m.listGen {
			cmd = m.requery()
		}
		return m, tea.Batch(cmd, m.tick())

	case resultMsg:
		cmd := m.applyResult(msg)
		return m, cmd

	case resolvedMsg:
		if msg.canon != m.canonFor(msg.kind) {
			return m, nil
		}
		cmd := m.query(msg.kind)
		return m, cmd

	case mutationDoneMsg:
		m.mutating = false
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.label, msg.err))
			return m, m.clearStatusLater()
		}
		label := msg.label
		if msg.out.UUID != "" {
			label += " " + shortUUID(msg.out.UUID)
		}
		m.setStatus(label)
		cmd := m.requery()
		return m, tea.Batch(cmd, m.clearStatusLater())

	case refreshDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Refresh failed: %v", msg.err))
		}
		cmd := m.requery()
		return m, cmd

	case editDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Edit failed: %v", msg.err))
		}
		return m, m.refresh()

	case termStartedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error())
			return m, m.clearStatusLater()
		}
		t := msg.term
		m.term = &t
		return m, t.Init()

	case ptyOutputMsg, ptyPollMsg, ptyExitMsg:
		if m.term == nil {
			return m, nil
		}
		t, cmd := m.term.Update(msg)
		m.term = &t
		return m, cmd

	case statusClearMsg:
		if m.opts.Now().After(m.statusExpiry) {
			m.statusMessage = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.mode != modeNormal && m.mode != modeConfirmDelete {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.term != nil {
		return m.handleTermKey(msg)
	}

	switch m.mode {
	case modeFilter, modeAdd, modeModify, modeAnnotate:
		return m.handleInputKey(msg)
	case modeConfirmDelete:
		m.mode = modeNormal
		switch msg.String() {
		case "y", "Y":
			if t := m.selectedTask(); t != nil {
				cmd := m.mutate("Deleted", task.Mutation{Kind: task.MutationDelete, UUID: t.UUID})
				return m, cmd
			}
		}
		m.setStatus("Cancelled")
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
		return m, nil

	case "down", "j":
		if m.selectedIndex < len(m.tasks)-1 {
			m.selectedIndex++
		}
		return m, nil

	case "g", "home":
		m.selectedIndex = 0
		return m, nil

	case "G", "end":
		m.selectedIndex = max(len(m.tasks)-1, 0)
		return m, nil

	case "tab":
		m.reportKind = nextKind(m.reportKind)
		m.report, m.reportGen = nil, 0
		cmd := m.query(m.reportKind)
		return m, cmd

	case "/":
		return m.openInput(modeFilter, "status:pending project:home +tag text", m.filter.String())

	case "c":
		m.filter = filter.Pending()
		m.selectedIndex = 0
		cmd := m.requery()
		return m, cmd

	case "a":
		return m.openInput(modeAdd, "project:home +tag Description", "")

	case "m":
		if m.selectedTask() == nil {
			return m, nil
		}
		return m.openInput(modeModify, "project:x priority:H due:tomorrow +tag -tag", "")

	case "A":
		if m.selectedTask() == nil {
			return m, nil
		}
		return m.openInput(modeAnnotate, "Annotation", "")

	case "d":
		cmd := m.mutateSelected("Completed", task.MutationDone)
		return m, cmd

	case "s":
		t := m.selectedTask()
		if t == nil {
			return m, nil
		}
		if t.IsActive() {
			cmd := m.mutateSelected("Stopped", task.MutationStop)
			return m, cmd
		}
		cmd := m.mutateSelected("Started", task.MutationStart)
		return m, cmd

	case "y":
		cmd := m.mutateSelected("Duplicated", task.MutationDuplicate)
		return m, cmd

	case "D":
		if m.selectedTask() != nil {
			m.mode = modeConfirmDelete
		}
		return m, nil

	case "S":
		m.eng.RequestSync()
		m.setStatus("Sync requested")
		return m, m.clearStatusLater()

	case "r":
		m.setStatus("Refreshing...")
		return m, m.refresh()

	case "e":
		return m, m.edit()

	case "enter", "i":
		return m, m.info()
	}

	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeInput()
		m.setStatus("Cancelled")
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.closeInput()
		return m.submitInput(mode, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	now := m.opts.Now()
	if mode == modeFilter {
		f, err := filter.Parse(value, now)
		if err != nil {
			m.setStatus(err.Error())
			return m, nil
		}
		m.filter = f
		m.selectedIndex = 0
		cmd := m.requery()
		return m, cmd
	}

	if value == "" {
		m.setStatus("Cancelled")
		return m, nil
	}

	var kind task.MutationKind
	var uuid, label string
	switch mode {
	case modeAdd:
		kind, label = task.MutationAdd, "Added"
	case modeModify:
		kind, label = task.MutationModify, "Modified"
	case modeAnnotate:
		kind, label = task.MutationAnnotate, "Annotated"
	}
	if mode != modeAdd {
		t := m.selectedTask()
		if t == nil {
			return m, nil
		}
		uuid = t.UUID
	}

	mut, err := filter.ParseModification(kind, uuid, value, now)
	if err != nil {
		m.setStatus(err.Error())
		return m, nil
	}
	cmd := m.mutate(label, mut)
	return m, cmd
}

func (m Model) handleTermKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.term.IsFocused() {
		switch msg.String() {
		case "esc", "q":
			m.term.Close()
			m.term = nil
			return m, m.refresh()
		case "i":
			if !m.term.Exited() {
				m.term.SetFocused(true)
			}
			return m, nil
		case "ctrl+c":
			m.term.Close()
			return m, tea.Quit
		}
	}
	t, cmd := m.term.Update(msg)
	m.term = &t
	return m, cmd
}

// View renders the UI.
func (m Model) View() string {
	if m.term != nil {
		return m.term.View()
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.mode == modeConfirmDelete {
		b.WriteString(m.renderConfirmDialog())
		b.WriteString("\n")
	} else if m.mode != modeNormal {
		b.WriteString(m.renderInputPrompt())
		b.WriteString("\n")
	}

	if m.err != nil && len(m.tasks) == 0 {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderMainContent(m.mainHeight()))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return lipgloss.NewStyle().Padding(0, 1).Render(b.String())
}

// Helper methods

func (m *Model) setStatus(msg string) {
	m.statusMessage = msg
	m.statusExpiry = m.opts.Now().Add(3 * time.Second)
}

func (m *Model) openInput(mode inputMode, placeholder, value string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
	return *m, textinput.Blink
}

func (m *Model) closeInput() {
	m.mode = modeNormal
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) selectedTask() *task.Task {
	if m.selectedIndex >= 0 && m.selectedIndex < len(m.tasks) {
		return &m.tasks[m.selectedIndex]
	}
	return nil
}

// reportFilter is the list filter widened to every status, so the side
// panel covers completed and deleted work too.
func (m Model) reportFilter() filter.Spec {
	f := m.filter
	f.Status = ""
	return f
}

func (m Model) filterFor(kind report.Kind) filter.Spec {
	if kind == report.KindList {
		return m.filter
	}
	return m.reportFilter()
}

func (m Model) canonFor(kind report.Kind) string {
	if kind != report.KindList && kind != m.reportKind {
		return ""
	}
	return m.filterFor(kind).Canonical()
}

func (m Model) mainHeight() int {
	if m.height <= 0 {
		return 0
	}
	h := m.height - 6
	if m.mode != modeNormal {
		h -= 5
	}
	return max(h, 3)
}

func (m Model) termSize() tea.WindowSizeMsg {
	return tea.WindowSizeMsg{Width: max(m.width-4, 20), Height: max(m.height-6, 5)}
}

// Queries

// requery asks for the list and the side panel report.
func (m *Model) requery() tea.Cmd {
	return tea.Batch(m.query(report.KindList), m.query(m.reportKind))
}

// query runs a non-blocking engine query. Ready and failed answers are
// applied immediately; a pending answer waits for its Done channel in a
// command and asks again.
func (m *Model) query(kind report.Kind) tea.Cmd {
	canon := m.canonFor(kind)
	res := m.eng.Query(m.filterFor(kind), kind)
	return m.applyResult(resultMsg{kind: kind, canon: canon, res: res})
}

func (m *Model) applyResult(msg resultMsg) tea.Cmd {
	if msg.canon != m.canonFor(msg.kind) {
		return nil
	}

	switch msg.res.State {
	case engine.StatePending:
		if msg.res.Done == nil {
			return nil
		}
		done := msg.res.Done
		return func() tea.Msg {
			<-done
			return resolvedMsg{kind: msg.kind, canon: msg.canon}
		}

	case engine.StateFailed:
		m.loading = false
		m.err = msg.res.Err
		return nil
	}

	if msg.kind == report.KindList {
		if msg.res.Generation < m.listGen {
			return nil
		}
		m.loading = false
		m.err = nil
		m.listGen = msg.res.Generation
		m.tasks = msg.res.Report.Tasks
		m.selectedIndex = min(m.selectedIndex, max(len(m.tasks)-1, 0))
		return nil
	}

	if msg.res.Generation >= m.reportGen {
		m.report = msg.res.Report
		m.reportGen = msg.res.Generation
	}
	return nil
}

// Commands

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) clearStatusLater() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg { return statusClearMsg{} })
}

func (m *Model) mutateSelected(label string, kind task.MutationKind) tea.Cmd {
	t := m.selectedTask()
	if t == nil {
		return nil
	}
	return m.mutate(label, task.Mutation{Kind: kind, UUID: t.UUID})
}

func (m *Model) mutate(label string, mut task.Mutation) tea.Cmd {
	if m.mutating {
		m.setStatus("Another change is still being applied")
		return nil
	}
	m.mutating = true
	m.setStatus("Applying change...")
	eng := m.eng
	return func() tea.Msg {
		out, err := eng.Mutate(context.Background(), mut)
		return mutationDoneMsg{label: label, out: out, err: err}
	}
}

func (m Model) refresh() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		return refreshDoneMsg{err: eng.Refresh(context.Background())}
	}
}

// edit hands the terminal to `task <uuid> edit`, which runs the user's editor.
func (m Model) edit() tea.Cmd {
	t := m.selectedTask()
	if t == nil || m.opts.Command == nil {
		return nil
	}
	return tea.ExecProcess(m.opts.Command(t.UUID, "edit"), func(err error) tea.Msg {
		return editDoneMsg{err: err}
	})
}

// info shows `task <uuid> info` in an embedded terminal.
func (m Model) info() tea.Cmd {
	t := m.selectedTask()
	if t == nil || m.opts.Command == nil {
		return nil
	}
	size := m.termSize()
	cmd := m.opts.Command(t.UUID, "info")
	id, title := t.UUID, fmt.Sprintf("task %s info", t.DisplayID())
	return func() tea.Msg {
		term, err := StartTerminal(id, title, cmd, size.Width, size.Height)
		if err == nil {
			term, _ = term.Update(size)
		}
		return termStartedMsg{term: term, err: err}
	}
}

func nextKind(k report.Kind) report.Kind {
	for i, kind := range report.Kinds {
		if kind == k {
			return report.Kinds[(i+1)%len(report.Kinds)]
		}
	}
	return report.Kinds[0]
}

func shortUUID(u string) string {
	if len(u) > 8 {
		return u[:8]
	}
	return u
}
