package tui

import (
	"fmt"
	"strings"
	"time"
)

// PhaseStatus is the display state of a phase row.
type PhaseStatus string

const (
	PhasePending  PhaseStatus = "pending"
	PhaseRunning  PhaseStatus = "running"
	PhaseDone     PhaseStatus = "done"
	PhaseFailed   PhaseStatus = "failed"
	PhaseAwaiting PhaseStatus = "awaiting"
)

// PhaseRow is one line of the phases panel.
type PhaseRow struct {
	Name     string
	Status   PhaseStatus
	Duration time.Duration
	// Note holds the failure reason or the gate being awaited.
	Note string
}

// PhasesPanel lists the pipeline phases in order with their status.
type PhasesPanel struct {
	rows    []PhaseRow
	index   map[string]int
	spinner string
	width   int
	height  int
	focused bool
}

// NewPhasesPanel creates a panel for the given pipeline order.
func NewPhasesPanel(phases []string) *PhasesPanel {
	p := &PhasesPanel{index: make(map[string]int)}
	p.SetPipeline(phases)
	return p
}

// SetPipeline replaces the rows with the given phases, all pending.
func (p *PhasesPanel) SetPipeline(phases []string) {
	p.rows = make([]PhaseRow, 0, len(phases))
	p.index = make(map[string]int, len(phases))
	for _, name := range phases {
		p.index[name] = len(p.rows)
		p.rows = append(p.rows, PhaseRow{Name: name, Status: PhasePending})
	}
}

// Set updates one phase. Unknown phases are appended.
func (p *PhasesPanel) Set(name string, status PhaseStatus, note string, d time.Duration) {
	i, ok := p.index[name]
	if !ok {
		i = len(p.rows)
		p.index[name] = i
		p.rows = append(p.rows, PhaseRow{Name: name})
	}
	p.rows[i].Status = status
	p.rows[i].Note = note
	if d > 0 {
		p.rows[i].Duration = d
	}
}

// Row returns the row for a phase.
func (p *PhasesPanel) Row(name string) (PhaseRow, bool) {
	i, ok := p.index[name]
	if !ok {
		return PhaseRow{}, false
	}
	return p.rows[i], true
}

// SetSpinner sets the frame drawn next to running phases.
func (p *PhasesPanel) SetSpinner(frame string) {
	p.spinner = frame
}

// SetSize updates the panel dimensions.
func (p *PhasesPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetFocused sets whether this panel has keyboard focus.
func (p *PhasesPanel) SetFocused(focused bool) {
	p.focused = focused
}

// View renders the panel.
func (p *PhasesPanel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Phases"))
	b.WriteString("\n")

	if len(p.rows) == 0 {
		b.WriteString(mutedStyle.Render("  No pipeline loaded"))
	}
	for _, r := range p.rows {
		b.WriteString(p.renderRow(r))
		b.WriteString("\n")
	}
	return panelBox(b.String(), p.width, p.height, p.focused)
}

func (p *PhasesPanel) renderRow(r PhaseRow) string {
	var icon string
	style := pendingStyle
	switch r.Status {
	case PhaseRunning:
		icon, style = p.spinner, runningStyle
		if icon == "" {
			icon = "●"
		}
	case PhaseDone:
		icon, style = "✓", doneStyle
	case PhaseFailed:
		icon, style = "✗", failedStyle
	case PhaseAwaiting:
		icon, style = "⏸", waitingStyle
	default:
		icon = "○"
	}

	line := fmt.Sprintf(" %s %s", style.Render(icon), r.Name)
	if r.Duration > 0 {
		line += pendingStyle.Render(" " + formatDuration(r.Duration))
	}
	if r.Note != "" {
		line += " " + style.Render(truncate(r.Note, p.width-len(r.Name)-12))
	}
	return line
}

// formatDuration renders a short human duration.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
