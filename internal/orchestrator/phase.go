package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/dispatch"
	iexec "github.com/ShayCichocki/shipline/internal/exec"
	"github.com/ShayCichocki/shipline/internal/gate"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/internal/resume"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// runPhase performs the current non-implement phase: its command, its
// checks, then completion or an approval request. A non-empty reason means
// the phase was marked failed.
func (o *Orchestrator) runPhase(ctx context.Context, st *models.WorkflowState) (string, error) {
	phase := st.CurrentPhase
	if st.Status(phase) == models.PhaseNotStarted {
		if err := o.controller.Start(st); err != nil {
			return "", err
		}
	}
	if phase == models.PhaseImplement {
		// Dispatch happens on the next step, as ResumeBatch.
		return "", nil
	}

	start := time.Now()
	o.emit(OrchestratorEvent{Type: EventPhaseStarted, FeatureID: st.FeatureID, Phase: phase})
	manual := o.def.RequiresApproval(phase)

	if manual {
		if g, ok := st.GateForPhase(phase); ok && g.Status == models.GateApproved {
			return "", o.complete(st, "approved by "+g.Approver, start)
		}
	}

	if reason := o.runCommand(ctx, st); reason != "" {
		return o.failPhase(st, reason)
	}
	reason, err := o.runChecks(ctx, st, phase)
	if err != nil {
		return "", err
	}
	if reason != "" {
		return o.failPhase(st, reason)
	}

	if manual {
		g, err := o.controller.RequestApproval(st)
		if err != nil {
			return "", err
		}
		if g.Status == models.GateApproved {
			return "", o.complete(st, "approved by "+g.Approver, start)
		}
		o.logger.Log("[phase] %s awaiting gate %s (%s)", phase, g.Name, g.ID)
		return "", nil
	}
	return "", o.complete(st, "completed", start)
}

// runCommand runs the phase's configured command. Without one the phase's
// work is done outside the engine.
func (o *Orchestrator) runCommand(ctx context.Context, st *models.WorkflowState) string {
	phase := st.CurrentPhase
	command := o.def.Phase(phase).Command
	if command == "" {
		o.logger.Log("[phase] %s has no command, work is external", phase)
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.phaseTimeout)
	defer cancel()

	o.logger.Log("[phase] %s running: %s", phase, command)
	out, err := o.execRunner.RunShell(ctx, o.repoPath, command,
		"SHIPLINE_FEATURE="+st.FeatureID,
		"SHIPLINE_PHASE="+string(phase),
		"SHIPLINE_DEPLOYMENT_MODEL="+string(st.DeploymentModel),
		"SHIPLINE_TASKS="+o.opts.tasksPath(st.FeatureID),
		"SHIPLINE_LEDGER="+o.opts.ledgerPath(st.FeatureID),
	)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s command timed out after %s", phase, o.opts.phaseTimeout)
	}
	if err != nil {
		return fmt.Sprintf("%s command exited %d: %s", phase, iexec.ExitCode(err), lastLines(string(out), 5))
	}
	return ""
}

// runChecks runs the phase's quality gate commands and records the results.
// A failing optional check is reported but not recorded, since any recorded
// failure blocks completion.
func (o *Orchestrator) runChecks(ctx context.Context, st *models.WorkflowState, phase models.Phase) (string, error) {
	checks := o.def.Checks(phase)
	if len(checks) == 0 {
		return "", nil
	}

	outputs := o.checks.Run(ctx, checks)
	var (
		gates  []models.QualityGate
		failed []string
	)
	for i, out := range outputs {
		o.emit(OrchestratorEvent{
			Type:      EventCheckCompleted,
			FeatureID: st.FeatureID,
			Phase:     phase,
			Gate:      out.Gate,
			Message:   out.Result.String(),
			Duration:  out.Duration,
		})
		if out.Result != gate.CheckPass && !checks[i].IsRequired() {
			log.Printf("[orchestrator] warning: optional check %s/%s %s", phase, out.Gate, out.Result)
			continue
		}
		gates = append(gates, out.QualityGate(phase, time.Now().UTC()))
		if out.Result != gate.CheckPass {
			failed = append(failed, out.Gate)
		}
	}
	if len(gates) > 0 {
		if err := o.controller.RecordQuality(st, gates...); err != nil {
			return "", err
		}
	}
	if len(failed) > 0 {
		return fmt.Sprintf("quality gate %s failed", strings.Join(failed, ", ")), nil
	}
	return "", nil
}

// runImplement dispatches the pending plan, then decides the tasks-complete
// gate from the ledger rather than from the dispatch results.
func (o *Orchestrator) runImplement(ctx context.Context, st *models.WorkflowState, action resume.Action) (*dispatch.Report, string, error) {
	featureID := st.FeatureID
	start := time.Now()
	pending := batch.Flatten(action.Plan)
	o.emit(OrchestratorEvent{
		Type:      EventPhaseStarted,
		FeatureID: featureID,
		Phase:     models.PhaseImplement,
		Batches:   len(action.FullPlan),
		Batch:     action.StartBatch + 1,
		Message:   fmt.Sprintf("%d of %d tasks pending", len(pending), len(batch.Flatten(action.FullPlan))),
	})
	for _, w := range action.Warnings {
		log.Printf("[implement] warning: %s", w)
		o.emit(OrchestratorEvent{Type: EventTaskListWarning, FeatureID: featureID, Phase: models.PhaseImplement, Message: w})
	}

	var report *dispatch.Report
	if len(action.Plan) > 0 {
		d := dispatch.New(featureID, o.worker, o.strategies, o.Ledger(featureID),
			dispatch.WithRollback(o.gitRunner),
			dispatch.WithInspect(o.gitRunner),
			dispatch.WithWorkDir(o.repoPath),
			dispatch.WithObserver(&taskObserver{emit: o.emit, featureID: featureID}),
			dispatch.WithDebugLog(o.logger.Log),
		)
		rep, err := d.Execute(ctx, action.Plan)
		report = &rep
		if err != nil {
			return report, "", err
		}
	}

	after, err := o.engine.Plan(featureID)
	if err != nil {
		return report, "", err
	}
	remaining := batch.Flatten(after.Plan)
	qg := models.QualityGate{
		Name:   pipeline.TasksCompleteGate,
		Phase:  models.PhaseImplement,
		Passed: len(remaining) == 0,
		Detail: fmt.Sprintf("%d/%d tasks completed", len(after.Completed), len(after.Document.Tasks)),
	}
	if !qg.Passed {
		qg.Detail += "; remaining " + strings.Join(taskIDs(remaining), " ")
	}
	if err := o.controller.RecordQuality(st, qg); err != nil {
		return report, "", err
	}
	if !qg.Passed {
		reason := implementFailure(report, remaining)
		r, err := o.failPhase(st, reason)
		return report, r, err
	}

	reason, err := o.runChecks(ctx, st, models.PhaseImplement)
	if err != nil {
		return report, "", err
	}
	if reason != "" {
		r, err := o.failPhase(st, reason)
		return report, r, err
	}
	return report, "", o.complete(st, qg.Detail, start)
}

func (o *Orchestrator) complete(st *models.WorkflowState, reason string, start time.Time) error {
	phase := st.CurrentPhase
	if err := o.controller.Complete(st, reason); err != nil {
		return err
	}
	o.emit(OrchestratorEvent{Type: EventPhaseCompleted, FeatureID: st.FeatureID, Phase: phase, Message: reason, Duration: time.Since(start)})
	return nil
}

func (o *Orchestrator) failPhase(st *models.WorkflowState, reason string) (string, error) {
	phase := st.CurrentPhase
	if err := o.controller.Fail(st, reason); err != nil {
		return reason, err
	}
	o.emit(OrchestratorEvent{Type: EventPhaseFailed, FeatureID: st.FeatureID, Phase: phase, Message: reason})
	return reason, nil
}

// implementFailure names the failed and blocked tasks of a dispatch.
func implementFailure(report *dispatch.Report, remaining []models.Task) string {
	if report == nil {
		return fmt.Sprintf("%d tasks not completed: %s", len(remaining), strings.Join(taskIDs(remaining), " "))
	}
	var parts []string
	for _, res := range report.Results {
		if res.Failed() {
			msg := res.TaskID
			if res.Err != nil {
				msg += " (" + firstLine(res.Err.Error()) + ")"
			}
			parts = append(parts, msg)
		}
	}
	reason := "failed tasks: " + strings.Join(parts, ", ")
	if len(report.Blocked) > 0 {
		reason += "; blocked: " + strings.Join(report.Blocked, " ")
	}
	return reason
}

// taskObserver forwards dispatch notifications as events.
type taskObserver struct {
	emit      func(OrchestratorEvent)
	featureID string
}

func (t *taskObserver) BatchStarted(b batch.Batch, total int) {
	t.emit(OrchestratorEvent{
		Type:      EventBatchStarted,
		FeatureID: t.featureID,
		Phase:     models.PhaseImplement,
		Batch:     b.Index + 1,
		Batches:   total,
		Domain:    b.Domain(),
		Message:   strings.Join(b.IDs(), " "),
	})
}

func (t *taskObserver) TaskStarted(task models.Task, batchIndex int) {
	t.emit(OrchestratorEvent{Type: EventTaskStarted, FeatureID: t.featureID, Phase: models.PhaseImplement, TaskID: task.ID, TaskTitle: task.Description, Domain: task.Domain, Batch: batchIndex + 1})
}

func (t *taskObserver) TaskFinished(task models.Task, res dispatch.Result) {
	ev := OrchestratorEvent{FeatureID: t.featureID, Phase: models.PhaseImplement, TaskID: task.ID, TaskTitle: task.Description, Domain: task.Domain, Message: res.Evidence}
	if res.Failed() {
		ev.Type = EventTaskFailed
		ev.Error = res.Err
		if res.Rollback != "" {
			ev.Message = "rollback " + res.Rollback
		}
	} else {
		ev.Type = EventTaskCompleted
	}
	t.emit(ev)
}

func (t *taskObserver) TaskBlocked(task models.Task, by []string) {
	t.emit(OrchestratorEvent{Type: EventTaskBlocked, FeatureID: t.featureID, Phase: models.PhaseImplement, TaskID: task.ID, TaskTitle: task.Description, Message: "blocked by " + strings.Join(by, " ")})
}

func taskIDs(tasks []models.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

var _ dispatch.Observer = (*taskObserver)(nil)
