package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View tab indices.
const (
	ViewTabMain = 0 // Phases + tasks, logs strip below
	ViewTabLogs = 1 // Full-screen logs
)

// Focus targets on the main tab.
const (
	FocusPhases = 0
	FocusTasks  = 1
)

// EventMsg wraps an orchestrator event for the TUI.
type EventMsg struct {
	Type      string
	Phase     string
	TaskID    string
	TaskTitle string
	Domain    string
	Batch     int
	Batches   int
	Gate      string
	Message   string
	Error     string
	Timestamp time.Time
	Duration  time.Duration
}

// DoneMsg signals that the run has returned.
type DoneMsg struct {
	Success bool
	Message string
}

// DebugLogMsg is sent to add a debug message to the logs.
type DebugLogMsg struct {
	Message string
}

// App is the main bubbletea model for the shipline TUI.
type App struct {
	header      *Header
	phasesPanel *PhasesPanel
	tasksPanel  *TasksPanel
	logsPanel   *LogsPanel
	footer      *Footer
	layout      *LayoutManager
	spinner     spinner.Model

	activeTab int
	focus     int
	width     int
	height    int
	quitting  bool
	done      bool
	success   bool
	// phase is the phase the latest event belongs to.
	phase string
}

// New creates an App for a feature and its pipeline order.
func New(featureID string, phases []string) *App {
	s := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	s.Style = runningStyle

	a := &App{
		header:      NewHeader(),
		phasesPanel: NewPhasesPanel(phases),
		tasksPanel:  NewTasksPanel(),
		logsPanel:   NewLogsPanel(),
		footer:      NewFooter(),
		layout:      NewLayoutManager(80, 24),
		spinner:     s,
		focus:       FocusTasks,
	}
	a.header.SetFeature(featureID)
	a.updateFocus()
	a.updateSizes()
	return a
}

// NewProgram creates a Bubbletea program for the App. The returned program
// receives events via Send().
func NewProgram(featureID string, phases []string) (*tea.Program, *App) {
	app := New(featureID, phases)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "1":
			a.activeTab = ViewTabMain
		case "2":
			a.activeTab = ViewTabLogs
		case "tab", "shift+tab":
			if a.activeTab == ViewTabMain {
				a.focus = 1 - a.focus
			}
		}
		a.footer.SetLogsTab(a.activeTab == ViewTabLogs)
		a.updateFocus()
		a.updateSizes()

		var cmd tea.Cmd
		if a.activeTab == ViewTabLogs {
			a.logsPanel, cmd = a.logsPanel.Update(msg)
		} else if a.focus == FocusTasks {
			a.tasksPanel, cmd = a.tasksPanel.Update(msg)
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout.SetSize(msg.Width, msg.Height)
		a.updateSizes()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		frame := a.spinner.View()
		a.phasesPanel.SetSpinner(frame)
		a.tasksPanel.SetSpinner(frame)
		if !a.done {
			cmds = append(cmds, cmd)
		}

	case EventMsg:
		a.handleEvent(msg)

	case DoneMsg:
		a.done = true
		a.success = msg.Success
		a.footer.SetDone(msg.Success, msg.Message)

	case DebugLogMsg:
		a.logsPanel.AddLog(PanelLogEntry{
			Timestamp: time.Now(),
			Level:     LogLevelDebug,
			Message:   msg.Message,
		})
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var body string
	if a.activeTab == ViewTabLogs {
		body = a.logsPanel.View()
	} else {
		top := lipgloss.JoinHorizontal(lipgloss.Top, a.phasesPanel.View(), a.tasksPanel.View())
		body = lipgloss.JoinVertical(lipgloss.Left, top, a.logsPanel.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.header.View(), body, a.footer.View())
}

func (a *App) updateFocus() {
	main := a.activeTab == ViewTabMain
	a.phasesPanel.SetFocused(main && a.focus == FocusPhases)
	a.tasksPanel.SetFocused(main && a.focus == FocusTasks)
	a.logsPanel.SetFocused(!main)
}

func (a *App) updateSizes() {
	a.header.SetWidth(a.layout.totalWidth)
	a.footer.SetWidth(a.layout.totalWidth)
	if a.activeTab == ViewTabLogs {
		d := a.layout.CalculateLogs()
		a.logsPanel.SetSize(d.LogsWidth, d.LogsHeight)
		return
	}
	d := a.layout.CalculateMain()
	a.phasesPanel.SetSize(d.PhasesWidth, d.ContentHeight)
	a.tasksPanel.SetSize(d.TasksWidth, d.ContentHeight)
	a.logsPanel.SetSize(d.LogsWidth, d.LogsHeight)
}

// handleEvent applies an orchestrator event to the panels and logs it.
func (a *App) handleEvent(msg EventMsg) {
	if msg.Phase != "" {
		a.phase = msg.Phase
		a.header.SetPhase(msg.Phase)
	}

	level := LogLevelInfo
	text := msg.Message

	switch msg.Type {
	case "phase_started":
		a.phasesPanel.Set(msg.Phase, PhaseRunning, "", 0)
		a.footer.SetGate("")
		a.header.SetBatch(0, 0)
		if text == "" {
			text = "phase started"
		}

	case "phase_completed":
		a.phasesPanel.Set(msg.Phase, PhaseDone, "", msg.Duration)
		if text == "" {
			text = "phase completed"
		}

	case "phase_failed":
		level = LogLevelError
		reason := joinNonEmpty(msg.Message, msg.Error)
		a.phasesPanel.Set(msg.Phase, PhaseFailed, reason, msg.Duration)
		text = joinNonEmpty("phase failed", reason)

	case "check_completed":
		if msg.Message != "pass" {
			level = LogLevelWarn
		}
		text = fmt.Sprintf("check %s: %s", msg.Gate, msg.Message)

	case "batch_started":
		a.header.SetBatch(msg.Batch, msg.Batches)
		if msg.Batch == 1 {
			a.tasksPanel.Reset()
		}
		text = fmt.Sprintf("batch %d/%d: %s", msg.Batch, msg.Batches, msg.Message)

	case "task_started":
		a.tasksPanel.Upsert(TaskRow{
			ID:     msg.TaskID,
			Title:  msg.TaskTitle,
			Domain: msg.Domain,
			Batch:  msg.Batch,
			Status: TaskRunning,
		})
		if text == "" {
			text = "started"
		}

	case "task_completed":
		a.tasksPanel.Upsert(TaskRow{ID: msg.TaskID, Status: TaskDone})
		if text == "" {
			text = "completed"
		}

	case "task_failed":
		level = LogLevelError
		note := joinNonEmpty(msg.Error, msg.Message)
		a.tasksPanel.Upsert(TaskRow{ID: msg.TaskID, Status: TaskFailed, Note: note})
		text = joinNonEmpty("failed", note)

	case "task_blocked":
		level = LogLevelWarn
		a.tasksPanel.Upsert(TaskRow{
			ID:     msg.TaskID,
			Title:  msg.TaskTitle,
			Domain: msg.Domain,
			Batch:  msg.Batch,
			Status: TaskBlocked,
			Note:   msg.Message,
		})

	case "tasklist_warning":
		level = LogLevelWarn
		text = "tasks.md: " + msg.Message

	case "gate_awaiting":
		level = LogLevelWarn
		a.phasesPanel.Set(msg.Phase, PhaseAwaiting, "gate "+msg.Gate, 0)
		a.footer.SetGate(msg.Gate)
		text = fmt.Sprintf("awaiting approval of gate %s", msg.Gate)

	case "run_done":
		if msg.Error != "" {
			level = LogLevelError
		}
		text = joinNonEmpty(text, msg.Error)
	}

	a.footer.SetTaskCounts(a.tasksPanel.Counts())

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	a.logsPanel.AddLog(PanelLogEntry{
		Timestamp: ts,
		Level:     level,
		Phase:     msg.Phase,
		TaskID:    msg.TaskID,
		Message:   text,
	})
}

// Phases exposes the phases panel, for tests and status queries.
func (a *App) Phases() *PhasesPanel {
	return a.phasesPanel
}

// Tasks exposes the tasks panel.
func (a *App) Tasks() *TasksPanel {
	return a.tasksPanel
}

// Logs exposes the logs panel.
func (a *App) Logs() *LogsPanel {
	return a.logsPanel
}

// Done reports whether the run finished and whether it succeeded.
func (a *App) Done() (done, success bool) {
	return a.done, a.success
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + ": " + b
	}
}
