package tui

// PanelDimensions holds calculated dimensions for each panel in the layout.
type PanelDimensions struct {
	// PhasesWidth is the width of the phases panel (left).
	PhasesWidth int
	// TasksWidth is the width of the tasks panel (right).
	TasksWidth int
	// LogsWidth is the width of the logs panel.
	LogsWidth int
	// ContentHeight is the height available for panel content.
	ContentHeight int
	// LogsHeight is the height of the logs strip under the main panels.
	LogsHeight int
}

// LayoutManager calculates panel dimensions based on terminal size.
type LayoutManager struct {
	totalWidth   int
	totalHeight  int
	headerHeight int
	footerHeight int
}

// NewLayoutManager creates a new LayoutManager with the given terminal dimensions.
func NewLayoutManager(width, height int) *LayoutManager {
	return &LayoutManager{
		totalWidth:   width,
		totalHeight:  height,
		headerHeight: 2,
		footerHeight: 1,
	}
}

// SetSize updates the terminal dimensions.
func (l *LayoutManager) SetSize(width, height int) {
	l.totalWidth = width
	l.totalHeight = height
}

// SetHeaderHeight sets the header height.
func (l *LayoutManager) SetHeaderHeight(height int) {
	l.headerHeight = height
}

// CalculateMain returns dimensions for the pipeline view.
// Layout: Phases 30% | Tasks 70% on top, logs strip below taking a third.
func (l *LayoutManager) CalculateMain() PanelDimensions {
	const (
		minPhasesWidth = 24
		minLogsHeight  = 5
	)

	phasesWidth := l.totalWidth * 30 / 100
	if phasesWidth < minPhasesWidth {
		phasesWidth = minPhasesWidth
	}
	tasksWidth := l.totalWidth - phasesWidth
	if tasksWidth < 0 {
		tasksWidth = 0
	}

	available := l.totalHeight - l.headerHeight - l.footerHeight
	logsHeight := available / 3
	if logsHeight < minLogsHeight {
		logsHeight = minLogsHeight
	}
	contentHeight := available - logsHeight
	if contentHeight < 3 {
		contentHeight = 3
	}

	return PanelDimensions{
		PhasesWidth:   phasesWidth,
		TasksWidth:    tasksWidth,
		LogsWidth:     l.totalWidth,
		ContentHeight: contentHeight,
		LogsHeight:    logsHeight,
	}
}

// CalculateLogs returns dimensions for the full-screen logs view.
func (l *LayoutManager) CalculateLogs() PanelDimensions {
	contentHeight := l.totalHeight - l.headerHeight - l.footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}
	return PanelDimensions{
		LogsWidth:  l.totalWidth,
		LogsHeight: contentHeight,
	}
}
