// Package tui provides the terminal user interface for shipline runs.
//
// The App model shows the phase pipeline, the tasks of the current batch,
// and a scrolling log of orchestrator events. It is driven entirely by
// messages: the caller forwards orchestrator events as EventMsg values and
// sends a DoneMsg when the run returns.
//
// Keys:
//
//	1 / 2      switch between the pipeline view and full-screen logs
//	j / k      scroll the focused panel
//	tab        move focus between phases and tasks
//	q          quit
package tui
