package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar: product name, feature, and current phase.
type Header struct {
	width     int
	featureID string
	phase     string
	batch     int
	batches   int

	titleStyle lipgloss.Style
	metaStyle  lipgloss.Style
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{
		width: 80,
		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true),
		metaStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetFeature sets the feature being run.
func (h *Header) SetFeature(featureID string) {
	h.featureID = featureID
}

// SetPhase sets the phase currently executing.
func (h *Header) SetPhase(phase string) {
	h.phase = phase
}

// SetBatch sets batch progress for the implement phase.
func (h *Header) SetBatch(batch, batches int) {
	h.batch = batch
	h.batches = batches
}

// View renders the header.
func (h *Header) View() string {
	left := h.titleStyle.Render("shipline")
	if h.featureID != "" {
		left += h.metaStyle.Render("  " + h.featureID)
	}

	right := ""
	if h.phase != "" {
		right = h.phase
		if h.batches > 0 {
			right += fmt.Sprintf("  batch %d/%d", h.batch, h.batches)
		}
	}

	gap := h.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.NewStyle().
		Width(h.width).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(lipgloss.Color("240")).
		Render(left + lipgloss.NewStyle().Width(gap).Render("") + h.metaStyle.Render(right))
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 2 // title + bottom border
}
