package orchestrator

import (
	"time"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPhaseStarted indicates a phase began (or was retried).
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted indicates a phase completed and the pipeline advanced.
	EventPhaseCompleted EventType = "phase_completed"
	// EventPhaseFailed indicates a phase failed.
	EventPhaseFailed EventType = "phase_failed"
	// EventCheckCompleted indicates a quality gate command finished.
	EventCheckCompleted EventType = "check_completed"
	// EventBatchStarted indicates a batch of tasks was dispatched.
	EventBatchStarted EventType = "batch_started"
	// EventTaskStarted indicates a task has started execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskBlocked indicates a task was skipped because its chain failed.
	EventTaskBlocked EventType = "task_blocked"
	// EventTaskListWarning reports a task-list line that was skipped.
	EventTaskListWarning EventType = "tasklist_warning"
	// EventGateAwaiting indicates the pipeline is suspended on a manual gate.
	EventGateAwaiting EventType = "gate_awaiting"
	// EventRunDone indicates the invocation finished.
	EventRunDone EventType = "run_done"
)

// Terminal reports whether the event ends or suspends the invocation.
func (t EventType) Terminal() bool {
	switch t {
	case EventRunDone, EventGateAwaiting, EventPhaseFailed:
		return true
	}
	return false
}

// OrchestratorEvent represents an event emitted by the orchestrator.
// These events are used to update the TUI and the console printer.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// FeatureID is the feature being run.
	FeatureID string
	// Phase is the related phase, if applicable.
	Phase models.Phase
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the description of the related task, if applicable.
	TaskTitle string
	// Domain is the related task's domain.
	Domain models.Domain
	// Batch is the 1-based batch number for batch and task events.
	Batch int
	// Batches is the number of batches in the plan.
	Batches int
	// Gate is the manual gate name for gate events, or the check name for
	// check events.
	Gate string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time, for completion events.
	Duration time.Duration
}
