// Package tui implements the terminal user interface using Bubbletea.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Jayphen/lazytask/internal/task"
)

// Palette, as 256-color codes.
var (
	ColorCyan    = lipgloss.Color("86")
	ColorYellow  = lipgloss.Color("221")
	ColorBlue    = lipgloss.Color("111")
	ColorGray    = lipgloss.Color("245")
	colorGreen   = lipgloss.Color("78")
	colorRed     = lipgloss.Color("196")
	colorMagenta = lipgloss.Color("213")
	colorDim     = lipgloss.Color("239")
)

// Task state styles
var (
	StatusActive    = lipgloss.NewStyle().Foreground(colorGreen)
	StatusOverdue   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	StatusBlocked   = lipgloss.NewStyle().Foreground(colorMagenta)
	StatusWaiting   = lipgloss.NewStyle().Foreground(colorDim)
	StatusCompleted = lipgloss.NewStyle().Foreground(ColorGray)
)

var (
	TitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	SubtitleStyle  = lipgloss.NewStyle().Foreground(ColorGray)
	SelectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	DimStyle       = lipgloss.NewStyle().Foreground(colorDim)
	SectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	HelpKeyStyle   = lipgloss.NewStyle().Foreground(ColorCyan)
	ErrorStyle     = lipgloss.NewStyle().Foreground(colorRed)
	StatusMsgStyle = lipgloss.NewStyle().Foreground(ColorCyan)
	WarningStyle   = lipgloss.NewStyle().Foreground(ColorYellow)

	// BoxStyle frames the report panel and dialogs.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)
)

// Row parts, built once rather than per frame.
var (
	DescStyleDefault  = lipgloss.NewStyle()
	DescStyleSelected = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)
	DescStyleDimmed   = lipgloss.NewStyle().Foreground(ColorGray)
	ProjectStyle      = lipgloss.NewStyle().Foreground(ColorBlue)
	TagStyle          = lipgloss.NewStyle().Foreground(colorMagenta)
)

// Status indicators
const (
	IndicatorActive    = "▶"
	IndicatorOverdue   = "!"
	IndicatorBlocked   = "⧗"
	IndicatorWaiting   = "◌"
	IndicatorCompleted = "✓"
	IndicatorDeleted   = "✗"
	IndicatorPending   = "○"
	IndicatorSelected  = "❯"
	IndicatorSyncOK    = "●"
	IndicatorSyncWarn  = "◐"
	IndicatorSyncFail  = "○"
)

// Progress bar characters
const (
	ProgressFilled = "█"
	ProgressEmpty  = "░"
)

// RenderProgressBar renders a progress bar for the given percentage.
func RenderProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := int((percent / 100) * float64(width))
	filled = max(0, min(filled, width))
	return strings.Repeat(ProgressFilled, filled) + strings.Repeat(ProgressEmpty, width-filled)
}

var priorityStyles = map[task.Priority]lipgloss.Style{
	task.PriorityHigh:   lipgloss.NewStyle().Foreground(colorRed),
	task.PriorityMedium: lipgloss.NewStyle().Foreground(ColorYellow),
	task.PriorityLow:    lipgloss.NewStyle().Foreground(ColorBlue),
}

// GetPriorityStyle colors a priority marker; unset priorities are gray.
func GetPriorityStyle(p task.Priority) lipgloss.Style {
	if st, ok := priorityStyles[p]; ok {
		return st
	}
	return SubtitleStyle
}
