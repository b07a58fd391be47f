package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Jayphen/lazytask/internal/report"
	"github.com/Jayphen/lazytask/internal/task"
)

// widthCache caches ANSI-aware width calculations to avoid repeated lipgloss.Width calls.
var (
	widthCache   = make(map[string]int)
	widthCacheMu sync.RWMutex
)

// renderHeader renders the application header.
func (m Model) renderHeader() string {
	title := TitleStyle.Render("lazytask")
	version := ""
	if m.opts.Version != "" {
		version = " " + SubtitleStyle.Render("v"+m.opts.Version)
	}
	expr := m.filter.String()
	if expr == "" {
		expr = "all tasks"
	}
	subtitle := SubtitleStyle.Render("Filter: ") + expr

	return title + version + "\n" + subtitle
}

// renderConfirmDialog renders the delete confirmation dialog.
func (m Model) renderConfirmDialog() string {
	desc := ""
	if t := m.selectedTask(); t != nil {
		desc = truncate(t.Description, 40)
	}
	msg := fmt.Sprintf("Delete %q? (y/n)", desc)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorYellow).
		Padding(0, 2).
		Foreground(ColorYellow)

	return style.Render(msg)
}

// renderInputPrompt renders the filter / add / modify / annotate input.
func (m Model) renderInputPrompt() string {
	var title string
	switch m.mode {
	case modeFilter:
		title = "Filter tasks"
	case modeAdd:
		title = "Add a task"
	case modeModify:
		title = "Modify task"
	case modeAnnotate:
		title = "Annotate task"
	}
	if t := m.selectedTask(); t != nil && (m.mode == modeModify || m.mode == modeAnnotate) {
		title += " " + t.DisplayID()
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(ColorCyan).Render(title))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("Enter to apply, Esc to cancel"))

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorCyan).
		Padding(0, 2)

	return style.Render(b.String())
}

// renderTaskList renders the task list.
func (m Model) renderTaskList() string {
	if m.loading && len(m.tasks) == 0 {
		return m.spinner.View() + " Loading tasks..."
	}

	if len(m.tasks) == 0 {
		style := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 2).
			Foreground(ColorGray)
		return style.Render("No matching tasks")
	}

	var b strings.Builder

	headers := fmt.Sprintf(" %-3s%-6s%-3s%-38s%-14s%-8s%s",
		"", "ID", "", "DESCRIPTION", "PROJECT", "DUE", "URG")
	b.WriteString(DimStyle.Bold(true).Render(headers))
	b.WriteString("\n")

	for i := range m.tasks {
		b.WriteString(m.renderTaskRow(i))
		b.WriteString("\n")
	}

	return b.String()
}

// renderTaskRow renders a single task row.
func (m Model) renderTaskRow(index int) string {
	t := m.tasks[index]
	isSelected := index == m.selectedIndex
	now := m.opts.Now()

	selector := "  "
	if isSelected {
		selector = SelectedStyle.Render(IndicatorSelected + " ")
	}

	idPart := GetPriorityStyle(t.Priority).Render(t.DisplayID())
	statePart := stateIndicator(t, now)

	descStyle := DescStyleDefault
	switch {
	case t.Status.IsClosed():
		descStyle = DescStyleDimmed
	case isSelected:
		descStyle = DescStyleSelected
	}
	desc := truncate(t.Description, 36)
	if len(t.Annotations) > 0 {
		desc = truncate(t.Description, 33) + fmt.Sprintf(" [%d]", len(t.Annotations))
	}
	descPart := descStyle.Render(desc)

	projectPart := ProjectStyle.Render(truncate(t.Project, 12))

	duePart := ""
	if t.Due != nil {
		due := formatDue(*t.Due, now)
		if t.IsOverdue(now) {
			duePart = StatusOverdue.Render(due)
		} else {
			duePart = DimStyle.Render(due)
		}
	}

	urgPart := DimStyle.Render(fmt.Sprintf("%5.1f", t.Urgency))

	// fmt.Sprintf widths don't work with ANSI-styled strings
	return selector +
		padRight(idPart, 6) +
		padRight(statePart, 3) +
		padRight(descPart, 38) +
		padRight(projectPart, 14) +
		padRight(duePart, 8) +
		urgPart
}

// stateIndicator picks the single most relevant marker for t.
func stateIndicator(t task.Task, now time.Time) string {
	switch {
	case t.Status == task.StatusCompleted:
		return StatusCompleted.Render(IndicatorCompleted)
	case t.Status == task.StatusDeleted:
		return StatusCompleted.Render(IndicatorDeleted)
	case t.IsActive():
		return StatusActive.Render(IndicatorActive)
	case t.IsOverdue(now):
		return StatusOverdue.Render(IndicatorOverdue)
	case t.IsBlocked():
		return StatusBlocked.Render(IndicatorBlocked)
	case t.Status == task.StatusWaiting:
		return StatusWaiting.Render(IndicatorWaiting)
	default:
		return DimStyle.Render(IndicatorPending)
	}
}

// renderMainContent renders the split view (task list + detail/report panel).
func (m Model) renderMainContent(maxHeight int) string {
	list := m.renderTaskList()
	if maxHeight > 0 {
		list = m.scrollList(list, maxHeight)
	}
	availableWidth := m.contentWidth()

	const (
		gap      = 2
		minLeft  = 78
		minRight = 34
	)

	if availableWidth == 0 || availableWidth < minLeft+minRight+gap {
		right := m.renderRightPanel(availableWidth, 0)
		return list + "\n" + right
	}

	leftWidth := minLeft
	rightWidth := availableWidth - leftWidth - gap

	left := lipgloss.NewStyle().Width(leftWidth).Render(list)
	right := m.renderRightPanel(rightWidth, maxHeight)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, strings.Repeat(" ", gap), right)
}

// scrollList keeps the selected row visible within maxLines.
func (m Model) scrollList(list string, maxLines int) string {
	lines := strings.Split(list, "\n")
	if len(lines) <= maxLines {
		return list
	}
	// Line 0 is the column header.
	header, rows := lines[0], lines[1:]
	visible := maxLines - 1
	start := 0
	if m.selectedIndex >= visible {
		start = m.selectedIndex - visible + 1
	}
	end := min(start+visible, len(rows))
	return header + "\n" + strings.Join(rows[start:end], "\n")
}

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return 0
	}
	return max(m.width-2, 0)
}

// renderRightPanel stacks the task detail above the report panel.
func (m Model) renderRightPanel(width, maxHeight int) string {
	detail := m.renderTaskDetail(width)
	rep := m.renderReport(width)
	out := rep
	if detail != "" {
		out = lipgloss.JoinVertical(lipgloss.Left, detail, rep)
	}
	if maxHeight > 0 {
		out = truncateLines(out, maxHeight, DimStyle.Render("..."))
	}
	return out
}

// renderTaskDetail renders the detail panel for the selected task.
func (m Model) renderTaskDetail(width int) string {
	t := m.selectedTask()
	if t == nil {
		return ""
	}
	now := m.opts.Now()

	var b strings.Builder

	titleStyle := TitleStyle
	if t.Status.IsClosed() {
		titleStyle = titleStyle.Foreground(ColorGray)
	}
	b.WriteString(titleStyle.Render(t.Description))
	b.WriteString("\n\n")

	b.WriteString(m.renderDetailRow("UUID:", DimStyle.Render(t.UUID)))
	b.WriteString(m.renderDetailRow("Status:", stateIndicator(*t, now)+" "+string(t.Status)))
	if t.Project != "" {
		b.WriteString(m.renderDetailRow("Project:", ProjectStyle.Render(t.Project)))
	}
	if t.Priority != task.PriorityNone {
		b.WriteString(m.renderDetailRow("Priority:", GetPriorityStyle(t.Priority).Render(t.Priority.String())))
	}
	if len(t.Tags) > 0 {
		b.WriteString(m.renderDetailRow("Tags:", TagStyle.Render("+"+strings.Join(t.Tags, " +"))))
	}
	if t.Due != nil {
		due := t.Due.Local().Format("2006-01-02 15:04")
		if t.IsOverdue(now) {
			due = StatusOverdue.Render(due + " (overdue)")
		}
		b.WriteString(m.renderDetailRow("Due:", due))
	}
	if t.Start != nil {
		b.WriteString(m.renderDetailRow("Started:", formatAge(*t.Start, now)))
	}
	b.WriteString(m.renderDetailRow("Entered:", formatAge(t.Entry, now)))
	if !t.Modified.IsZero() {
		b.WriteString(m.renderDetailRow("Modified:", formatAge(t.Modified, now)))
	}
	if t.IsBlocked() {
		b.WriteString(m.renderDetailRow("Blocked by:", StatusBlocked.Render(fmt.Sprintf("%d task(s)", len(t.Depends)))))
	}
	b.WriteString(m.renderDetailRow("Urgency:", fmt.Sprintf("%.2f", t.Urgency)))

	for _, a := range t.Annotations {
		b.WriteString("  " + DimStyle.Render(a.Entry.Local().Format("2006-01-02")) + " " + a.Description + "\n")
	}

	style := BoxStyle
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}

// renderReport renders the side panel report.
func (m Model) renderReport(width int) string {
	title := SectionStyle.Render(strings.ToUpper(string(m.reportKind)[:1])+string(m.reportKind)[1:]) +
		DimStyle.Render("  (tab to switch)")

	var body string
	switch {
	case m.report == nil:
		body = m.spinner.View() + " Computing..."
	case m.report.Summary != nil:
		body = renderSummary(m.report.Summary)
	case m.report.Burndown != nil:
		body = renderBurndown(m.report.Burndown, width)
	case m.report.Kind == report.KindProjects:
		body = renderProjects(m.report.Projects)
	case m.report.Activity != nil:
		body = renderActivity(m.report.Activity, m.opts.Now())
	}

	style := BoxStyle.MarginTop(0)
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(title + "\n\n" + body)
}

func renderSummary(s *report.Summary) string {
	var b strings.Builder
	for _, st := range task.Statuses {
		fmt.Fprintf(&b, "%-11s %d\n", string(st)+":", s.Count(st))
	}
	fmt.Fprintf(&b, "%-11s %d\n", "active:", s.Active)
	if s.Overdue > 0 {
		b.WriteString(StatusOverdue.Render(fmt.Sprintf("%-11s %d", "overdue:", s.Overdue)) + "\n")
	}
	fmt.Fprintf(&b, "%-11s %.1f\n", "avg urg:", s.AverageUrgency)
	fmt.Fprintf(&b, "%-11s %d added, %d done\n", "last 7d:", s.RecentlyAdded, s.CompletedLast7Days)

	pct := s.CompletionRate * 100
	b.WriteString("\n" + StatusActive.Render(RenderProgressBar(pct, 20)) + fmt.Sprintf(" %.0f%% complete", pct))
	return b.String()
}

func renderBurndown(bd *report.Burndown, width int) string {
	points := bd.Points
	rows := 10
	if len(points) > rows {
		points = points[len(points)-rows:]
	}
	peak := 1
	for _, p := range points {
		peak = max(peak, p.Remaining)
	}
	barWidth := 20
	if width > 30 {
		barWidth = width - 24
	}

	var b strings.Builder
	for _, p := range points {
		bar := strings.Repeat(ProgressFilled, p.Remaining*barWidth/peak)
		fmt.Fprintf(&b, "%s %s %d", p.Start.Format("01-02"), StatusActive.Render(padRight(bar, barWidth)), p.Remaining)
		if p.Added > 0 || p.Completed > 0 {
			b.WriteString(DimStyle.Render(fmt.Sprintf(" +%d/-%d", p.Added, p.Completed)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProjects(projects []report.ProjectStats) string {
	if len(projects) == 0 {
		return DimStyle.Render("No projects")
	}
	var b strings.Builder
	for i, p := range projects {
		if i == 12 {
			b.WriteString(DimStyle.Render(fmt.Sprintf("... %d more", len(projects)-i)))
			break
		}
		name := truncate(p.Name, 16)
		fmt.Fprintf(&b, "%-17s %3d/%-3d %s %4.0f%%\n",
			name, p.Completed, p.Pending+p.Completed,
			RenderProgressBar(p.CompletionRate*100, 8), p.CompletionRate*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderActivity(a *report.Activity, now time.Time) string {
	if len(a.Events) == 0 {
		return DimStyle.Render("No recent activity")
	}
	var b strings.Builder
	for i, ev := range a.Events {
		if i == 12 {
			break
		}
		var kind string
		switch ev.Kind {
		case report.EventCompleted:
			kind = StatusActive.Render(IndicatorCompleted)
		case report.EventDeleted:
			kind = StatusOverdue.Render(IndicatorDeleted)
		case report.EventCreated:
			kind = StatusMsgStyle.Render("+")
		default:
			kind = DimStyle.Render("~")
		}
		fmt.Fprintf(&b, "%s %s %s\n", kind, padRight(DimStyle.Render(formatAge(ev.At, now)), 9), truncate(ev.Description, 28))
	}
	if a.Truncated || len(a.Events) > 12 {
		b.WriteString(DimStyle.Render("..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderDetailRow renders a label: value row in the detail panel.
func (m Model) renderDetailRow(label, value string) string {
	labelStyle := DimStyle.Width(12)
	return labelStyle.Render(label) + value + "\n"
}

// renderStatusBar renders the bottom status bar.
func (m Model) renderStatusBar() string {
	st := m.status

	var counts strings.Builder
	counts.WriteString(DimStyle.Render(fmt.Sprintf("%d shown / %d tasks", len(m.tasks), st.Tasks)))
	counts.WriteString(DimStyle.Render(fmt.Sprintf("  gen %d", st.Generation)))
	if st.Source != "" && st.Source != "none" {
		counts.WriteString(DimStyle.Render(" via " + st.Source))
	}
	if st.Stale {
		counts.WriteString(" " + WarningStyle.Render("stale"))
	}

	syncPart := ""
	switch {
	case !st.Sync.Enabled:
	case st.Sync.InFlight:
		syncPart = m.spinner.View() + " syncing"
	case st.Sync.ConsecutiveFailures > 0:
		syncPart = StatusOverdue.Render(IndicatorSyncFail) + fmt.Sprintf(" sync failing (%d)", st.Sync.ConsecutiveFailures)
	case !st.Sync.LastSuccess.IsZero():
		syncPart = StatusActive.Render(IndicatorSyncOK) + " synced " + formatAge(st.Sync.LastSuccess, m.opts.Now())
	default:
		syncPart = WarningStyle.Render(IndicatorSyncWarn) + " not synced"
	}

	help := []string{
		HelpKeyStyle.Render("↑↓/jk") + " nav",
		HelpKeyStyle.Render("/") + " filter",
		HelpKeyStyle.Render("a") + " add",
		HelpKeyStyle.Render("m") + " modify",
		HelpKeyStyle.Render("A") + " annotate",
		HelpKeyStyle.Render("d") + " done",
		HelpKeyStyle.Render("s") + " start/stop",
		HelpKeyStyle.Render("D") + " delete",
		HelpKeyStyle.Render("e") + " edit",
		HelpKeyStyle.Render("↵") + " info",
		HelpKeyStyle.Render("S") + " sync",
		HelpKeyStyle.Render("q") + " quit",
	}
	helpLine := DimStyle.Render(strings.Join(help, "  "))

	sep := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(ColorGray)

	var b strings.Builder
	if m.statusMessage != "" {
		b.WriteString(StatusMsgStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}
	if st.Warning != "" {
		b.WriteString(WarningStyle.Render(truncate(st.Warning, max(m.contentWidth(), 60))))
		b.WriteString("\n")
	}
	b.WriteString(counts.String())
	if syncPart != "" {
		b.WriteString("  " + syncPart)
	}
	b.WriteString("\n")
	b.WriteString(helpLine)

	return sep.Render(b.String())
}

// padRight pads a string to the specified visible width.
// Uses a cache to avoid repeated ANSI-aware width calculations.
func padRight(s string, width int) string {
	widthCacheMu.RLock()
	visibleWidth, cached := widthCache[s]
	widthCacheMu.RUnlock()

	if !cached {
		visibleWidth = lipgloss.Width(s)
		widthCacheMu.Lock()
		widthCache[s] = visibleWidth
		widthCacheMu.Unlock()
	}

	if visibleWidth >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleWidth)
}

// truncate shortens s to at most n cells.
func truncate(s string, n int) string {
	return ansi.Truncate(s, n, "…")
}

func truncateLines(s string, maxLines int, suffix string) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	if suffix != "" {
		if maxLines == 1 {
			return suffix
		}
		lines = lines[:maxLines-1]
		lines = append(lines, suffix)
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n")
}

// formatAge formats a time as a human-readable age string.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return "in " + formatSpan(-d)
	}
	return formatSpan(d) + " ago"
}

// formatDue formats a due date relative to now, e.g. "3d" or "-2h".
func formatDue(due, now time.Time) string {
	d := due.Sub(now)
	if d < 0 {
		return "-" + formatSpan(-d)
	}
	return formatSpan(d)
}

func formatSpan(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 14*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/(24*7)))
	}
}
