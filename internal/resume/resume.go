// Package resume decides what the orchestrator does next from persisted state
// and the completion ledger. It is the entry point of every invocation.
package resume

import (
	"fmt"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/ledger"
	"github.com/ShayCichocki/shipline/internal/state"
	"github.com/ShayCichocki/shipline/internal/tasklist"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// Kind is the type of the next action.
type Kind string

const (
	// RetryPhase re-enters the failed current phase.
	RetryPhase Kind = "retry-phase"
	// ResumeBatch continues implement from the first incomplete batch.
	ResumeBatch Kind = "resume-batch"
	// AwaitGate suspends until a manual gate is resolved.
	AwaitGate Kind = "await-gate"
	// Advance moves past a completed current phase.
	Advance Kind = "advance"
	// Done means every phase is completed.
	Done Kind = "done"
	// RunPhase starts or continues the current phase's work.
	RunPhase Kind = "run-phase"
)

// Action is the next step for the orchestrator.
type Action struct {
	Kind  Kind
	Phase models.Phase
	// Gate is the pending gate for AwaitGate.
	Gate models.ManualGate
	// Plan is the batch plan over pending tasks for ResumeBatch.
	Plan []batch.Batch
	// FullPlan is the batch plan over every task, for reporting.
	FullPlan []batch.Batch
	// StartBatch is the FullPlan index of the first batch with a
	// non-completed task, or -1.
	StartBatch int
	// Completed is the ledger's completed set for ResumeBatch.
	Completed map[string]bool
	// Document is the parsed task list for ResumeBatch.
	Document *tasklist.Document
	// Warnings lists task-list lines the parser skipped.
	Warnings []string
}

// String describes the action for status output.
func (a Action) String() string {
	switch a.Kind {
	case AwaitGate:
		return fmt.Sprintf("%s %s (gate %s)", a.Kind, a.Phase, a.Gate.Name)
	case ResumeBatch:
		return fmt.Sprintf("%s %s at batch %d/%d (%d tasks pending)", a.Kind, a.Phase, a.StartBatch+1, len(a.FullPlan), len(batch.Flatten(a.Plan)))
	case Done:
		return string(a.Kind)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Phase)
	}
}

// Inputs provides the task list and completion ledger of a feature.
type Inputs interface {
	TaskList(featureID string) (*tasklist.Document, error)
	Completed(featureID string) (map[string]bool, error)
}

// FileInputs reads the task list and ledger from disk.
type FileInputs struct {
	TasksPath  func(featureID string) string
	LedgerPath func(featureID string) string
}

// TaskList parses the feature's task list.
func (f FileInputs) TaskList(featureID string) (*tasklist.Document, error) {
	return tasklist.ParseFile(f.TasksPath(featureID))
}

// Completed reads the feature's completion ledger.
func (f FileInputs) Completed(featureID string) (map[string]bool, error) {
	return ledger.Open(f.LedgerPath(featureID)).Completed()
}

// Engine computes next actions.
type Engine struct {
	inputs  Inputs
	batcher *batch.Batcher
	reqs    state.Requirements
}

// New creates an Engine.
func New(inputs Inputs, batcher *batch.Batcher, reqs state.Requirements) *Engine {
	return &Engine{inputs: inputs, batcher: batcher, reqs: reqs}
}

// NextAction inspects st and returns what to do next. It never mutates st.
//
// Implement is always re-planned from the task list and the ledger, never
// from in-memory progress, so completed tasks are never dispatched again.
func (e *Engine) NextAction(st *models.WorkflowState) (Action, error) {
	if st.AllCompleted() {
		return Action{Kind: Done}, nil
	}

	phase := st.CurrentPhase
	switch st.Status(phase) {
	case models.PhaseFailed:
		return Action{Kind: RetryPhase, Phase: phase}, nil
	case models.PhaseCompleted:
		if _, ok := st.NextPhase(phase); !ok {
			return Action{Kind: Done}, nil
		}
		return Action{Kind: Advance, Phase: phase}, nil
	case models.PhaseInProgress:
		if phase == models.PhaseImplement {
			return e.resumeImplement(st.FeatureID)
		}
		if e.reqs != nil && e.reqs.RequiresApproval(phase) {
			if g, ok := st.GateForPhase(phase); ok && g.Status == models.GatePending {
				return Action{Kind: AwaitGate, Phase: phase, Gate: g}, nil
			}
		}
	}
	return Action{Kind: RunPhase, Phase: phase}, nil
}

// resumeImplement re-plans pending tasks from the task list and ledger.
func (e *Engine) resumeImplement(featureID string) (Action, error) {
	plan, err := e.Plan(featureID)
	if err != nil {
		return Action{}, err
	}
	plan.Kind = ResumeBatch
	plan.Phase = models.PhaseImplement
	return plan, nil
}

// Plan batches the feature's task list twice: in full, and over the tasks
// the ledger does not record as completed.
func (e *Engine) Plan(featureID string) (Action, error) {
	doc, err := e.inputs.TaskList(featureID)
	if err != nil {
		return Action{}, fmt.Errorf("resume %s: %w", featureID, err)
	}
	completed, err := e.inputs.Completed(featureID)
	if err != nil {
		return Action{}, fmt.Errorf("resume %s: read ledger: %w", featureID, err)
	}

	full, err := e.batcher.Batch(doc.Tasks, doc.Format)
	if err != nil {
		return Action{}, fmt.Errorf("resume %s: %w", featureID, err)
	}
	pending, err := e.batcher.Batch(tasklist.Pending(doc.Tasks, completed), doc.Format)
	if err != nil {
		return Action{}, fmt.Errorf("resume %s: %w", featureID, err)
	}

	return Action{
		Plan:       pending,
		FullPlan:   full,
		StartBatch: batch.FirstIncomplete(full, completed),
		Completed:  completed,
		Document:   doc,
		Warnings:   doc.Warnings,
	}, nil
}
