package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelDebug LogLevel = "DEBUG"
)

// PanelLogEntry represents a single log entry in the logs panel.
type PanelLogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Phase     string // Empty means global log
	TaskID    string
	Message   string
}

// Built-in log filters. Any other filter value is a phase name.
const (
	FilterAll      = "all"
	FilterProblems = "problems"
)

// LogsPanel is a scrollable run log. The filter cycles through all
// entries, warnings and errors only, then each phase seen so far.
type LogsPanel struct {
	logs          []PanelLogEntry
	filter        string
	filterOptions []string
	filterIndex   int
	scrollOffset  int
	autoScroll    bool
	width         int
	height        int
	focused       bool
	maxLogs       int

	filterStyle lipgloss.Style
	infoStyle   lipgloss.Style
	warnStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	debugStyle  lipgloss.Style
	timeStyle   lipgloss.Style
	phaseStyle  lipgloss.Style
	taskStyle   lipgloss.Style
}

// NewLogsPanel creates a new LogsPanel instance.
func NewLogsPanel() *LogsPanel {
	return &LogsPanel{
		filter:        FilterAll,
		filterOptions: []string{FilterAll, FilterProblems},
		autoScroll:    true,
		maxLogs:       1000,

		filterStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		infoStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		warnStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		debugStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		timeStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		phaseStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		taskStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("139")),
	}
}

// AddLog appends an entry, keeping at most maxLogs.
func (p *LogsPanel) AddLog(entry PanelLogEntry) {
	p.logs = append(p.logs, entry)
	if len(p.logs) > p.maxLogs {
		p.logs = p.logs[len(p.logs)-p.maxLogs:]
	}
	if entry.Phase != "" {
		p.addFilterOption(entry.Phase)
	}
	if p.autoScroll {
		p.scrollToBottom()
	}
}

func (p *LogsPanel) addFilterOption(phase string) {
	for _, opt := range p.filterOptions {
		if opt == phase {
			return
		}
	}
	p.filterOptions = append(p.filterOptions, phase)
}

// SetSize updates the panel dimensions.
func (p *LogsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// SetFocused sets whether this panel has keyboard focus.
func (p *LogsPanel) SetFocused(focused bool) {
	p.focused = focused
}

// Update handles input messages.
func (p *LogsPanel) Update(msg tea.Msg) (*LogsPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			if p.scrollOffset > 0 {
				p.scrollOffset--
				p.autoScroll = false
			}
		case "down", "j":
			if p.scrollOffset < len(p.filteredLogs())-p.visibleLines() {
				p.scrollOffset++
			}
		case "f":
			p.filterIndex = (p.filterIndex + 1) % len(p.filterOptions)
			p.filter = p.filterOptions[p.filterIndex]
			p.scrollToBottom()
		case "g":
			p.scrollOffset = 0
			p.autoScroll = false
		case "G":
			p.scrollToBottom()
			p.autoScroll = true
		case "a":
			p.autoScroll = !p.autoScroll
			if p.autoScroll {
				p.scrollToBottom()
			}
		}
	}
	return p, nil
}

func (p *LogsPanel) visibleLines() int {
	lines := p.height - 4 // title, scroll indicator, borders
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (p *LogsPanel) scrollToBottom() {
	p.scrollOffset = len(p.filteredLogs()) - p.visibleLines()
	if p.scrollOffset < 0 {
		p.scrollOffset = 0
	}
}

func (p *LogsPanel) matches(entry PanelLogEntry) bool {
	switch p.filter {
	case FilterAll:
		return true
	case FilterProblems:
		return entry.Level == LogLevelWarn || entry.Level == LogLevelError
	default:
		return entry.Phase == p.filter
	}
}

func (p *LogsPanel) filteredLogs() []PanelLogEntry {
	if p.filter == FilterAll {
		return p.logs
	}
	var filtered []PanelLogEntry
	for _, entry := range p.logs {
		if p.matches(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Problems counts warning and error entries.
func (p *LogsPanel) Problems() int {
	n := 0
	for _, entry := range p.logs {
		if entry.Level == LogLevelWarn || entry.Level == LogLevelError {
			n++
		}
	}
	return n
}

// View renders the logs panel.
func (p *LogsPanel) View() string {
	var b strings.Builder

	title := "Logs"
	if n := p.Problems(); n > 0 {
		title = fmt.Sprintf("Logs (%d problems)", n)
	}
	if p.focused {
		title = "[" + title + "]"
	}
	b.WriteString(titleStyle.Render(title))
	filterText := fmt.Sprintf(" [%s]", p.filter)
	if p.autoScroll {
		filterText += " (auto)"
	}
	b.WriteString(p.filterStyle.Render(filterText))
	b.WriteString("\n")

	filtered := p.filteredLogs()
	if len(filtered) == 0 {
		b.WriteString(mutedStyle.Render("  No logs"))
	} else {
		start := p.scrollOffset
		if start > len(filtered) {
			start = len(filtered)
		}
		end := start + p.visibleLines()
		if end > len(filtered) {
			end = len(filtered)
		}
		for i := start; i < end; i++ {
			b.WriteString(p.renderLogLine(filtered[i]))
			b.WriteString("\n")
		}
		if len(filtered) > p.visibleLines() {
			b.WriteString(p.timeStyle.Render(fmt.Sprintf(" [%d/%d]", end, len(filtered))))
		}
	}

	return panelBox(b.String(), p.width, p.height, p.focused)
}

// renderLogLine renders a single log entry.
func (p *LogsPanel) renderLogLine(entry PanelLogEntry) string {
	parts := []string{p.timeStyle.Render(entry.Timestamp.Format("15:04:05"))}

	levelStyle, levelIcon := p.infoStyle, "I"
	switch entry.Level {
	case LogLevelWarn:
		levelStyle, levelIcon = p.warnStyle, "W"
	case LogLevelError:
		levelStyle, levelIcon = p.errorStyle, "E"
	case LogLevelDebug:
		levelStyle, levelIcon = p.debugStyle, "D"
	}
	parts = append(parts, levelStyle.Render(levelIcon))

	if entry.Phase != "" && p.filter != entry.Phase {
		parts = append(parts, p.phaseStyle.Render("["+entry.Phase+"]"))
	}
	if entry.TaskID != "" {
		parts = append(parts, p.taskStyle.Render(entry.TaskID))
	}

	maxMsgLen := p.width - 30
	if maxMsgLen < 20 {
		maxMsgLen = 20
	}
	parts = append(parts, truncate(entry.Message, maxMsgLen))
	return strings.Join(parts, " ")
}

// LogCount returns the number of retained entries.
func (p *LogsPanel) LogCount() int {
	return len(p.logs)
}

// FilteredCount returns the number of entries the filter shows.
func (p *LogsPanel) FilteredCount() int {
	return len(p.filteredLogs())
}

// CurrentFilter returns the current filter value.
func (p *LogsPanel) CurrentFilter() string {
	return p.filter
}
