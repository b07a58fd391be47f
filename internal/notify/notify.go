// Package notify provides OS-native notification functionality.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier delivers a user-visible alert without blocking the caller.
type Notifier interface {
	Send(title, message string)
}

// Desktop sends notifications through the platform's notification tool.
type Desktop struct {
	// Urgency is passed to notify-send on Linux (low, normal, critical).
	Urgency string

	goos string
	run  func(*exec.Cmd) error
}

// NewDesktop returns a Desktop notifier for the running platform.
func NewDesktop() *Desktop {
	return &Desktop{Urgency: "normal", goos: runtime.GOOS, run: (*exec.Cmd).Run}
}

// Send sends the notification in the background. It fails silently if the
// notification command is not available on the system.
func (d *Desktop) Send(title, message string) {
	cmd := d.command(title, message)
	if cmd == nil {
		return
	}
	go func() {
		_ = d.run(cmd)
	}()
}

// command builds the platform command:
// - macOS: osascript (native AppleScript)
// - Linux: notify-send (libnotify)
// Other platforms get nil.
// Supported reports whether notifications can be shown on this platform.
func (d *Desktop) Supported() bool {
	return d.command("lazytask", "") != nil
}

func (d *Desktop) command(title, message string) *exec.Cmd {
	switch d.goos {
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
		return exec.Command("osascript", "-e", script)
	case "linux":
		args := []string{"--app-name=lazytask"}
		if d.Urgency != "" {
			args = append(args, "--urgency="+d.Urgency)
		}
		return exec.Command("notify-send", append(args, "--", title, message)...)
	default:
		return nil
	}
}

// Send sends a notification with the default Desktop notifier.
func Send(title, message string) {
	NewDesktop().Send(title, message)
}

// escapeAppleScript escapes special characters for AppleScript strings.
func escapeAppleScript(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch ch {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
