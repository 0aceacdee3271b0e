package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/dispatch"
	iexec "github.com/ShayCichocki/shipline/internal/exec"
	"github.com/ShayCichocki/shipline/internal/gate"
	"github.com/ShayCichocki/shipline/internal/git"
	"github.com/ShayCichocki/shipline/internal/ledger"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/internal/resume"
	"github.com/ShayCichocki/shipline/internal/state"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// ErrPhaseFailed indicates the invocation stopped on a failed phase.
var ErrPhaseFailed = errors.New("phase failed")

// OutcomeKind is how an invocation ended.
type OutcomeKind string

const (
	// OutcomeDone means every phase completed.
	OutcomeDone OutcomeKind = "done"
	// OutcomeAwaitingGate means the pipeline is suspended on a manual gate.
	OutcomeAwaitingGate OutcomeKind = "awaiting-gate"
	// OutcomeFailed means the current phase failed.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome describes where an invocation stopped.
type Outcome struct {
	Kind      OutcomeKind
	FeatureID string
	Phase     models.Phase
	// Gate is set for OutcomeAwaitingGate.
	Gate *models.ManualGate
	// Reason explains a failure.
	Reason string
	// Report is the implement dispatch report, when tasks ran.
	Report *dispatch.Report
	// State is the final WorkflowState.
	State *models.WorkflowState
}

// Orchestrator coordinates the pipeline for one project.
// It wires together: state store -> resume engine -> gate controller -> dispatcher.
type Orchestrator struct {
	repoPath   string
	store      state.StateStore
	def        *pipeline.Definition
	worker     dispatch.Worker
	controller *gate.Controller
	engine     *resume.Engine
	checks     *gate.Checks
	batcher    *batch.Batcher
	strategies dispatch.Strategies
	gitRunner  git.Runner
	execRunner iexec.CommandRunner
	waiter     GateWaiter
	emitter    *EventEmitter
	logger     *DebugLogger
	opts       orchestratorOptions
}

// New creates an Orchestrator with required configuration and optional settings.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	o := defaultOptions(req.RepoPath)
	for _, opt := range opts {
		opt(&o)
	}
	if o.batcher == nil {
		o.batcher = batch.New(batch.Config{})
	}
	if o.execRunner == nil {
		o.execRunner = iexec.NewRunner()
	}
	if o.gitRunner == nil {
		o.gitRunner = git.NewRunnerWith(req.RepoPath, o.execRunner)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}

	checks := gate.NewChecks(o.execRunner, req.RepoPath)
	if o.checkTimeout > 0 {
		checks.SetTimeout(o.checkTimeout)
	}
	inputs := resume.FileInputs{TasksPath: o.tasksPath, LedgerPath: o.ledgerPath}

	return &Orchestrator{
		repoPath:   req.RepoPath,
		store:      req.Store,
		def:        req.Pipeline,
		worker:     req.Worker,
		controller: gate.NewController(req.Store, req.Pipeline),
		engine:     resume.New(inputs, o.batcher, req.Pipeline),
		checks:     checks,
		batcher:    o.batcher,
		strategies: o.strategies,
		gitRunner:  o.gitRunner,
		execRunner: o.execRunner,
		waiter:     o.waiter,
		emitter:    NewEventEmitter(o.eventBuffer, o.logger),
		logger:     o.logger,
		opts:       o,
	}
}

// Events returns the event stream. It is closed by Close.
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	return o.emitter.Events()
}

// Close closes the event stream and the debug log.
func (o *Orchestrator) Close() error {
	o.emitter.Close()
	return o.logger.Close()
}

// Controller exposes the gate controller, for approve and reject.
func (o *Orchestrator) Controller() *gate.Controller {
	return o.controller
}

// Engine exposes the resume engine, for status reporting.
func (o *Orchestrator) Engine() *resume.Engine {
	return o.engine
}

// Ledger opens the feature's completion ledger.
func (o *Orchestrator) Ledger(featureID string) *ledger.Ledger {
	return ledger.Open(o.opts.ledgerPath(featureID))
}

// Run advances featureID's pipeline as far as it can go in this invocation.
//
// It returns OutcomeDone when every phase is complete, OutcomeAwaitingGate
// (nil error) when a manual gate needs a decision, and OutcomeFailed with an
// error wrapping ErrPhaseFailed when a phase fails. A phase that failed in an
// earlier invocation is retried once; completed tasks are never re-run.
func (o *Orchestrator) Run(ctx context.Context, featureID string) (Outcome, error) {
	o.logger.Log("Run() started for feature %s", featureID)

	st, err := o.store.Load(featureID)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, FeatureID: featureID}, fmt.Errorf("load state: %w", err)
	}

	var report *dispatch.Report
	maxSteps := 4*len(st.Pipeline) + 8
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return o.outcome(OutcomeFailed, st, "interrupted", report), err
		}

		action, err := o.engine.NextAction(st)
		if err != nil {
			return o.fail(st, err.Error(), report, err)
		}
		o.logger.Log("[run] step %d: %s", step, action)

		switch action.Kind {
		case resume.Done:
			out := o.outcome(OutcomeDone, st, "", report)
			o.emit(OrchestratorEvent{Type: EventRunDone, FeatureID: featureID, Message: "pipeline complete"})
			return out, nil

		case resume.Advance:
			advanced, err := o.controller.Advance(st)
			if err != nil {
				return o.fail(st, err.Error(), report, err)
			}
			if !advanced {
				return o.outcome(OutcomeDone, st, "", report), nil
			}

		case resume.RetryPhase:
			if step > 0 {
				reason := lastReason(st, action.Phase)
				return o.fail(st, reason, report, fmt.Errorf("%w: %s: %s", ErrPhaseFailed, action.Phase, reason))
			}
			if err := o.controller.Retry(st); err != nil {
				return o.fail(st, err.Error(), report, err)
			}
			o.emit(OrchestratorEvent{Type: EventPhaseStarted, FeatureID: featureID, Phase: action.Phase, Message: "retry"})

		case resume.AwaitGate:
			g := action.Gate
			o.emit(OrchestratorEvent{Type: EventGateAwaiting, FeatureID: featureID, Phase: action.Phase, Gate: g.Name, Message: "run: shipline approve " + featureID + " " + g.Name})
			if o.waiter == nil {
				out := o.outcome(OutcomeAwaitingGate, st, "", report)
				out.Gate = &g
				return out, nil
			}
			o.logger.Log("[run] waiting on gate %s", g.Name)
			if err := o.waiter.Wait(ctx, featureID, g.Name); err != nil {
				out := o.outcome(OutcomeAwaitingGate, st, "", report)
				out.Gate = &g
				return out, err
			}
			if st, err = o.store.Load(featureID); err != nil {
				return o.fail(st, err.Error(), report, fmt.Errorf("reload state: %w", err))
			}

		case resume.RunPhase:
			if reason, err := o.runPhase(ctx, st); err != nil || reason != "" {
				if err == nil {
					err = fmt.Errorf("%w: %s: %s", ErrPhaseFailed, st.CurrentPhase, reason)
				}
				return o.fail(st, reason, report, err)
			}

		case resume.ResumeBatch:
			rep, reason, err := o.runImplement(ctx, st, action)
			if rep != nil {
				report = rep
			}
			if err != nil || reason != "" {
				if err == nil {
					err = fmt.Errorf("%w: %s: %s", ErrPhaseFailed, models.PhaseImplement, reason)
				}
				return o.fail(st, reason, report, err)
			}
		}
	}
	err = fmt.Errorf("no progress after %d steps at %s (%s)", maxSteps, st.CurrentPhase, st.CurrentStatus())
	return o.fail(st, err.Error(), report, err)
}

func (o *Orchestrator) outcome(kind OutcomeKind, st *models.WorkflowState, reason string, report *dispatch.Report) Outcome {
	out := Outcome{Kind: kind, Reason: reason, Report: report, State: st}
	if st != nil {
		out.FeatureID = st.FeatureID
		out.Phase = st.CurrentPhase
	}
	return out
}

func (o *Orchestrator) fail(st *models.WorkflowState, reason string, report *dispatch.Report, err error) (Outcome, error) {
	o.logger.Log("[run] stopped: %v", err)
	return o.outcome(OutcomeFailed, st, reason, report), err
}

func (o *Orchestrator) emit(ev OrchestratorEvent) {
	o.emitter.Emit(ev)
}

// lastReason returns the reason of the most recent transition of phase.
func lastReason(st *models.WorkflowState, phase models.Phase) string {
	for i := len(st.History) - 1; i >= 0; i-- {
		if st.History[i].Phase == phase {
			return st.History[i].Reason
		}
	}
	return string(st.Status(phase))
}
