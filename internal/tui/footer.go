package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Footer renders the status bar and keyboard hints.
type Footer struct {
	message    string
	success    bool
	done       bool
	gate       string
	logsTab    bool
	width      int
	taskCounts TaskCounts

	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	gateStyle      lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
		errorStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		gateStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		hintStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		separatorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("236")),
	}
}

// SetDone marks the run as finished.
func (f *Footer) SetDone(success bool, message string) {
	f.done = true
	f.success = success
	f.message = message
}

// SetGate shows the manual gate the run is waiting on. Empty clears it.
func (f *Footer) SetGate(gate string) {
	f.gate = gate
}

// SetLogsTab switches the hints between the pipeline and logs views.
func (f *Footer) SetLogsTab(logs bool) {
	f.logsTab = logs
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetTaskCounts updates the task counts for display.
func (f *Footer) SetTaskCounts(counts TaskCounts) {
	f.taskCounts = counts
}

// View renders the footer.
func (f *Footer) View() string {
	var left string

	c := f.taskCounts
	if c.Done+c.Failed+c.Blocked+c.Running > 0 {
		left = fmt.Sprintf("✓%d", c.Done)
		if c.Failed > 0 {
			left += f.errorStyle.Render(fmt.Sprintf(" ✗%d", c.Failed))
		}
		if c.Blocked > 0 {
			left += fmt.Sprintf(" ⊘%d", c.Blocked)
		}
		if c.Running > 0 {
			left += fmt.Sprintf(" ⏳%d", c.Running)
		}
	}

	switch {
	case f.done && f.success:
		left = f.successStyle.Render("✓ " + f.message)
	case f.done:
		left = f.errorStyle.Render("✗ " + f.message)
	case f.gate != "":
		left = f.gateStyle.Render(fmt.Sprintf("⏸ awaiting approval: %s", f.gate))
	}

	right := f.keyboardHints()
	if left == "" {
		return right
	}
	return left + f.separatorStyle.Render(" │ ") + right
}

// keyboardHints returns context-sensitive keyboard hints.
func (f *Footer) keyboardHints() string {
	if f.done {
		return f.hintStyle.Render("Press q to exit")
	}
	hints := "1 pipeline │ 2 logs │ j/k scroll"
	if f.logsTab {
		hints += " │ f filter │ a auto-scroll"
	} else {
		hints += " │ tab focus"
	}
	return f.hintStyle.Render(hints + " │ q quit")
}
