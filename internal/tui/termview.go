package tui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"
)

const (
	scrollbackLines = 1000
	pollInterval    = 100 * time.Millisecond
)

// TermView shows a task command running under a PTY, such as
// `task <uuid> info` or `task <uuid> edit`. Output keeps its colors and
// scrolls; while focused, keystrokes go to the process.
type TermView struct {
	pty  io.ReadWriteCloser
	proc *exec.Cmd
	id   string

	title  string
	out    *scrollback
	vp     viewport.Model
	width  int
	height int

	focused  bool
	exited   bool
	received time.Time
}

// scrollback holds complete output lines, oldest first. A trailing partial
// line waits in pending until its newline arrives.
type scrollback struct {
	mu      sync.Mutex
	lines   []string
	pending []byte
	limit   int
}

func newScrollback(limit int) *scrollback {
	if limit <= 0 {
		limit = scrollbackLines
	}
	return &scrollback{limit: limit}
}

func (s *scrollback) write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, data...)
	for {
		i := strings.IndexByte(string(s.pending), '\n')
		if i < 0 {
			break
		}
		// PTYs translate \n to \r\n.
		s.lines = append(s.lines, strings.TrimSuffix(string(s.pending[:i]), "\r"))
		s.pending = s.pending[i+1:]
	}
	if over := len(s.lines) - s.limit; over > 0 {
		s.lines = append(s.lines[:0:0], s.lines[over:]...)
	}
}

func (s *scrollback) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *scrollback) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

type (
	ptyOutputMsg struct {
		id   string
		data []byte
	}
	ptyPollMsg struct{ id string }
	ptyExitMsg struct{ id string }
)

// NewTermView wraps an already running PTY.
func NewTermView(id, title string, p io.ReadWriteCloser) TermView {
	vp := viewport.New(80, 24)
	vp.MouseWheelEnabled = true
	// Only scrolling keys; letters stay free for the view's own bindings.
	km := viewport.DefaultKeyMap()
	vp.KeyMap = viewport.KeyMap{
		Up: km.Up, Down: km.Down,
		PageUp: km.PageUp, PageDown: km.PageDown,
		HalfPageUp: km.HalfPageUp, HalfPageDown: km.HalfPageDown,
	}
	return TermView{pty: p, id: id, title: title, out: newScrollback(scrollbackLines), vp: vp, received: time.Now()}
}

// StartTerminal runs cmd under a new PTY sized width x height.
func StartTerminal(id, title string, cmd *exec.Cmd, width, height int) (TermView, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(max(width, 20)), Rows: uint16(max(height, 5))})
	if err != nil {
		return TermView{}, fmt.Errorf("start %s: %w", strings.Join(cmd.Args, " "), err)
	}
	v := NewTermView(id, title, f)
	v.proc = cmd
	v.width, v.height = width, height
	return v, nil
}

func (v TermView) Init() tea.Cmd {
	if v.pty == nil {
		return nil
	}
	return tea.Batch(v.read(), v.poll())
}

func (v TermView) Update(msg tea.Msg) (TermView, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !v.focused {
			break
		}
		if msg.String() == "ctrl+]" {
			v.SetFocused(false)
		} else if v.pty != nil && !v.exited {
			_, _ = v.pty.Write(keyToBytes(msg))
		}
		return v, nil

	case tea.WindowSizeMsg:
		v.width, v.height = msg.Width, msg.Height
		v.vp.Width, v.vp.Height = msg.Width, msg.Height
		if f, ok := v.pty.(*os.File); ok {
			_ = pty.Setsize(f, &pty.Winsize{Cols: uint16(max(msg.Width, 1)), Rows: uint16(max(msg.Height, 1))})
		}
		v.render()
		return v, nil

	case ptyOutputMsg:
		if msg.id != v.id {
			return v, nil
		}
		follow := v.vp.AtBottom()
		v.out.write(msg.data)
		v.render()
		if follow {
			v.vp.GotoBottom()
		}
		v.received = time.Now()
		return v, nil

	case ptyPollMsg:
		if msg.id != v.id || v.exited {
			return v, nil
		}
		return v, tea.Batch(v.read(), v.poll())

	case ptyExitMsg:
		if msg.id == v.id {
			v.exited = true
			v.SetFocused(false)
		}
		return v, nil
	}

	if v.focused {
		return v, nil
	}
	var cmd tea.Cmd
	v.vp, cmd = v.vp.Update(msg)
	return v, cmd
}

func (v TermView) View() string {
	if v.width == 0 || v.height == 0 {
		return ""
	}

	color := ColorBlue
	title := v.title
	switch {
	case v.focused:
		color = ColorCyan
		title += " [focus: ctrl+] to leave]"
	case v.exited:
		title += " [exited]"
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Foreground(color).Padding(0, 1).Render(title),
		v.vp.View(),
		v.footer(),
	)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Render(body)
}

// Close kills the process and releases the PTY.
func (v *TermView) Close() {
	if v.pty != nil {
		_ = v.pty.Close()
	}
	if v.proc != nil && v.proc.Process != nil {
		_ = v.proc.Process.Kill()
		_ = v.proc.Wait()
	}
	v.exited = true
}

// render cuts lines to the view width without breaking escape sequences.
func (v *TermView) render() {
	lines := v.out.snapshot()
	if v.width > 0 {
		for i := range lines {
			lines[i] = ansi.Truncate(lines[i], v.width, "…")
		}
	}
	v.vp.SetContent(strings.Join(lines, "\n"))
}

func (v TermView) footer() string {
	left := SubtitleStyle.Render(fmt.Sprintf("%d lines  %3.f%%  %s",
		v.out.count(), v.vp.ScrollPercent()*100, v.received.Format("15:04:05")))

	right := SubtitleStyle.Render("↑↓ pgup/pgdn scroll  i focus  esc close")
	if v.focused {
		right = lipgloss.NewStyle().Foreground(ColorYellow).Render("ctrl+] leave focus")
	}

	gap := v.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	return left + strings.Repeat(" ", max(gap, 0)) + right
}

func (v *TermView) SetFocused(focused bool) { v.focused = focused }
func (v TermView) IsFocused() bool          { return v.focused }
func (v TermView) Exited() bool             { return v.exited }

// read returns whatever the PTY has within one poll interval.
func (v TermView) read() tea.Cmd {
	if v.pty == nil {
		return nil
	}
	id, p := v.id, v.pty
	return func() tea.Msg {
		if f, ok := p.(*os.File); ok {
			_ = f.SetReadDeadline(time.Now().Add(pollInterval))
		}
		buf := make([]byte, 4096)
		n, err := p.Read(buf)
		switch {
		case n > 0:
			return ptyOutputMsg{id: id, data: buf[:n]}
		case err != nil && processGone(err):
			return ptyExitMsg{id: id}
		}
		return nil
	}
}

func (v TermView) poll() tea.Cmd {
	id := v.id
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return ptyPollMsg{id: id} })
}

var keySequences = map[tea.KeyType]string{
	tea.KeySpace:     " ",
	tea.KeyEnter:     "\n",
	tea.KeyTab:       "\t",
	tea.KeyBackspace: "\x7f",
	tea.KeyDelete:    "\x1b[3~",
	tea.KeyUp:        "\x1b[A",
	tea.KeyDown:      "\x1b[B",
	tea.KeyRight:     "\x1b[C",
	tea.KeyLeft:      "\x1b[D",
	tea.KeyHome:      "\x1b[H",
	tea.KeyEnd:       "\x1b[F",
	tea.KeyPgUp:      "\x1b[5~",
	tea.KeyPgDown:    "\x1b[6~",
	tea.KeyEsc:       "\x1b",
	tea.KeyCtrlC:     "\x03",
	tea.KeyCtrlD:     "\x04",
	tea.KeyCtrlZ:     "\x1a",
}

// keyToBytes encodes a key press the way a terminal would send it.
func keyToBytes(msg tea.KeyMsg) []byte {
	if seq, ok := keySequences[msg.Type]; ok {
		return []byte(seq)
	}
	if len(msg.Runes) > 0 {
		return []byte(string(msg.Runes))
	}
	return []byte(msg.String())
}

// processGone reports whether a PTY read error means the child has exited.
// Linux reports EIO on the master once the slave side is closed.
func processGone(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}
