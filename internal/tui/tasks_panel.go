package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// TaskStatus is the display state of a task row.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
	TaskBlocked TaskStatus = "blocked"
)

// TaskRow is one task line.
type TaskRow struct {
	ID     string
	Title  string
	Domain string
	Batch  int
	Status TaskStatus
	// Note holds the failure reason or the blocking task.
	Note string
}

// TaskCounts holds the count of tasks in each status.
type TaskCounts struct {
	Done    int
	Failed  int
	Blocked int
	Running int
}

// TasksPanel displays dispatched tasks grouped by batch.
type TasksPanel struct {
	rows         []*TaskRow
	byID         map[string]*TaskRow
	scrollOffset int
	width        int
	height       int
	focused      bool
	spinner      string
}

// NewTasksPanel creates a new TasksPanel instance.
func NewTasksPanel() *TasksPanel {
	return &TasksPanel{byID: make(map[string]*TaskRow)}
}

// Upsert adds a task or updates its status. Empty fields keep their
// previous values.
func (p *TasksPanel) Upsert(row TaskRow) {
	existing, ok := p.byID[row.ID]
	if !ok {
		r := row
		p.byID[row.ID] = &r
		p.rows = append(p.rows, &r)
		return
	}
	if row.Title != "" {
		existing.Title = row.Title
	}
	if row.Domain != "" {
		existing.Domain = row.Domain
	}
	if row.Batch != 0 {
		existing.Batch = row.Batch
	}
	if row.Status != "" {
		existing.Status = row.Status
	}
	existing.Note = row.Note
}

// Task returns the row for a task ID.
func (p *TasksPanel) Task(id string) (TaskRow, bool) {
	r, ok := p.byID[id]
	if !ok {
		return TaskRow{}, false
	}
	return *r, true
}

// Counts tallies rows by status.
func (p *TasksPanel) Counts() TaskCounts {
	var c TaskCounts
	for _, r := range p.rows {
		switch r.Status {
		case TaskDone:
			c.Done++
		case TaskFailed:
			c.Failed++
		case TaskBlocked:
			c.Blocked++
		case TaskRunning:
			c.Running++
		}
	}
	return c
}

// Reset clears all rows, for a new implement attempt.
func (p *TasksPanel) Reset() {
	p.rows = nil
	p.byID = make(map[string]*TaskRow)
	p.scrollOffset = 0
}

// SetSpinner sets the frame drawn next to running tasks.
func (p *TasksPanel) SetSpinner(frame string) {
	p.spinner = frame
}

// SetSize updates the panel dimensions.
func (p *TasksPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetFocused sets whether this panel has keyboard focus.
func (p *TasksPanel) SetFocused(focused bool) {
	p.focused = focused
}

// Update handles scrolling keys.
func (p *TasksPanel) Update(msg tea.Msg) (*TasksPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "up", "k":
			if p.scrollOffset > 0 {
				p.scrollOffset--
			}
		case "down", "j":
			if p.scrollOffset < len(p.lines())-p.visibleLines() {
				p.scrollOffset++
			}
		case "g":
			p.scrollOffset = 0
		}
	}
	return p, nil
}

func (p *TasksPanel) visibleLines() int {
	lines := p.height - 3 // title + borders
	if lines < 1 {
		lines = 1
	}
	return lines
}

// lines renders every row with a header line before each batch.
func (p *TasksPanel) lines() []string {
	var out []string
	batch := -1
	for _, r := range p.rows {
		if r.Batch != batch {
			batch = r.Batch
			header := fmt.Sprintf("── batch %d ──", batch)
			if batch == 0 {
				header = "── not dispatched ──"
			}
			out = append(out, pendingStyle.Render(header))
		}
		out = append(out, p.renderRow(r)...)
	}
	return out
}

// View renders the panel.
func (p *TasksPanel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Tasks"))
	b.WriteString("\n")

	lines := p.lines()
	if len(lines) == 0 {
		b.WriteString(mutedStyle.Render("  No tasks dispatched"))
	} else {
		start := p.scrollOffset
		if start > len(lines) {
			start = len(lines)
		}
		end := start + p.visibleLines()
		if end > len(lines) {
			end = len(lines)
		}
		b.WriteString(strings.Join(lines[start:end], "\n"))
	}
	return panelBox(b.String(), p.width, p.height, p.focused)
}

// renderRow returns the task line and, when set, an indented note line.
func (p *TasksPanel) renderRow(r *TaskRow) []string {
	icon, style := "○", pendingStyle
	switch r.Status {
	case TaskRunning:
		icon, style = p.spinner, runningStyle
		if icon == "" {
			icon = "●"
		}
	case TaskDone:
		icon, style = "✓", doneStyle
	case TaskFailed:
		icon, style = "✗", failedStyle
	case TaskBlocked:
		icon, style = "⊘", blockedStyle
	}

	line := fmt.Sprintf(" %s %s %s %s",
		style.Render(icon),
		r.ID,
		pendingStyle.Render(fmt.Sprintf("%-8s", r.Domain)),
		truncate(r.Title, p.width-24),
	)
	if r.Note == "" {
		return []string{line}
	}
	return []string{line, "     " + style.Render(truncate(r.Note, p.width-8))}
}
