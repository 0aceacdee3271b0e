package gate

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/internal/state"
	"github.com/ShayCichocki/shipline/pkg/models"
)

func setup(t *testing.T) (*Controller, *state.Store, *models.WorkflowState) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	def := pipeline.Default()
	store := state.NewStore(db, def)
	st, err := store.Init("upload", false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return NewController(store, def), store, st
}

// driveTo completes phases until current is target and in_progress.
func driveTo(t *testing.T, c *Controller, st *models.WorkflowState, target models.Phase) {
	t.Helper()
	if st.CurrentStatus() == models.PhaseNotStarted {
		if err := c.Start(st); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	for st.CurrentPhase != target {
		if st.CurrentPhase == models.PhaseImplement {
			qg := models.QualityGate{Name: pipeline.TasksCompleteGate, Phase: models.PhaseImplement, Passed: true}
			if err := c.RecordQuality(st, qg); err != nil {
				t.Fatalf("RecordQuality: %v", err)
			}
		}
		if err := c.Complete(st, ""); err != nil {
			t.Fatalf("Complete %s: %v", st.CurrentPhase, err)
		}
	}
}

func TestStartAndComplete(t *testing.T) {
	c, store, st := setup(t)

	if err := c.Start(st); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st.CurrentStatus() != models.PhaseInProgress {
		t.Fatalf("spec = %q", st.CurrentStatus())
	}
	if err := c.Start(st); !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("second Start error = %v", err)
	}
	if err := c.Complete(st, "spec written"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if st.CurrentPhase != models.PhasePlan || st.CurrentStatus() != models.PhaseInProgress {
		t.Errorf("after Complete: %s %s", st.CurrentPhase, st.CurrentStatus())
	}

	loaded, err := store.Load("upload")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.CurrentPhase != models.PhasePlan {
		t.Errorf("persisted phase = %q", loaded.CurrentPhase)
	}
}

func TestComplete_ImplementNeedsTasksGate(t *testing.T) {
	c, _, st := setup(t)
	driveTo(t, c, st, models.PhaseImplement)

	if err := c.Complete(st, ""); !errors.Is(err, state.ErrGateNotPassed) {
		t.Fatalf("expected ErrGateNotPassed, got %v", err)
	}
	failing := models.QualityGate{Name: pipeline.TasksCompleteGate, Phase: models.PhaseImplement, Passed: false, Detail: "T002 failed"}
	if err := c.RecordQuality(st, failing); err != nil {
		t.Fatalf("RecordQuality: %v", err)
	}
	if err := c.Complete(st, ""); !errors.Is(err, state.ErrGateNotPassed) {
		t.Fatalf("expected ErrGateNotPassed for failing gate, got %v", err)
	}
	if err := c.Fail(st, "T002 failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if st.CurrentPhase != models.PhaseImplement || st.CurrentStatus() != models.PhaseFailed {
		t.Fatalf("after Fail: %s %s", st.CurrentPhase, st.CurrentStatus())
	}

	if err := c.Retry(st); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if _, ok := st.QualityGates[models.QualityGateKey(models.PhaseImplement, pipeline.TasksCompleteGate)]; ok {
		t.Error("Retry kept the stale quality gate")
	}
	passing := failing
	passing.Passed = true
	if err := c.RecordQuality(st, passing); err != nil {
		t.Fatalf("RecordQuality: %v", err)
	}
	if err := c.Complete(st, ""); err != nil {
		t.Fatalf("Complete after fix: %v", err)
	}
	if st.CurrentPhase != models.PhaseOptimize {
		t.Errorf("CurrentPhase = %q, want optimize", st.CurrentPhase)
	}
}

func TestManualGate_Approve(t *testing.T) {
	c, store, st := setup(t)
	driveTo(t, c, st, models.PhasePreview)

	if _, ok := PendingGate(st); ok {
		t.Fatal("gate should not open before the phase work runs")
	}
	requested, err := c.RequestApproval(st)
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	again, err := c.RequestApproval(st)
	if err != nil || again.ID != requested.ID {
		t.Errorf("second RequestApproval = %+v, %v; want the same instance", again, err)
	}
	gate, ok := PendingGate(st)
	if !ok || gate.Name != "preview" || gate.ID == "" {
		t.Fatalf("PendingGate = %+v, %v", gate, ok)
	}
	if err := c.Approve(st, "preview", "alex"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if st.CurrentPhase != models.PhaseDeployStaging {
		t.Errorf("CurrentPhase = %q, want deploy-staging", st.CurrentPhase)
	}
	approved := st.ManualGates["preview"]
	if approved.Status != models.GateApproved || approved.Approver != "alex" || approved.Timestamp == nil {
		t.Errorf("gate = %+v", approved)
	}

	if err := c.Approve(st, "preview", "sam"); !errors.Is(err, ErrGateResolved) {
		t.Errorf("second Approve error = %v, want ErrGateResolved", err)
	}
	if err := c.Reject(st, "preview", "sam", "late"); !errors.Is(err, ErrGateResolved) {
		t.Errorf("Reject of resolved gate error = %v, want ErrGateResolved", err)
	}
	if err := c.Approve(st, "bogus", "sam"); !errors.Is(err, ErrUnknownGate) {
		t.Errorf("unknown gate error = %v", err)
	}

	loaded, _ := store.Load("upload")
	if loaded.ManualGates["preview"].Approver != "alex" {
		t.Error("approval not persisted")
	}
}

func TestManualGate_RejectAndRetry(t *testing.T) {
	c, _, st := setup(t)
	driveTo(t, c, st, models.PhasePreview)
	first, err := c.RequestApproval(st)
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}

	if err := c.Reject(st, "preview", "alex", "layout broken on mobile"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if st.CurrentPhase != models.PhasePreview || st.CurrentStatus() != models.PhaseFailed {
		t.Fatalf("after Reject: %s %s", st.CurrentPhase, st.CurrentStatus())
	}
	if _, ok := PendingGate(st); ok {
		t.Error("rejected phase should have no pending gate")
	}

	if err := c.Retry(st); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if _, ok := st.ManualGates["preview"]; ok {
		t.Error("Retry should retire the rejected instance")
	}
	last := st.History[len(st.History)-1]
	if !strings.Contains(last.Reason, first.ID) {
		t.Errorf("retry reason %q does not name the retired gate", last.Reason)
	}
	second, err := c.RequestApproval(st)
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if second.ID == first.ID || second.Status != models.GatePending {
		t.Errorf("Retry gate = %+v, want a new pending instance", second)
	}
	if err := c.Retry(st); !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("Retry of in_progress phase error = %v", err)
	}
	if err := c.Approve(st, "preview", "alex"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
}

func TestApprove_BlockedByQualityGate(t *testing.T) {
	c, _, st := setup(t)
	driveTo(t, c, st, models.PhasePreview)
	if _, err := c.RequestApproval(st); err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}

	failing := models.QualityGate{Name: "lighthouse", Phase: models.PhasePreview, Passed: false, Detail: "score 41"}
	if err := c.RecordQuality(st, failing); err != nil {
		t.Fatalf("RecordQuality: %v", err)
	}
	err := c.Approve(st, "preview", "alex")
	if !errors.Is(err, state.ErrGateNotPassed) {
		t.Fatalf("Approve error = %v, want ErrGateNotPassed", err)
	}
	if st.ManualGates["preview"].Status != models.GateApproved {
		t.Error("approval should be recorded even when completion is blocked")
	}
	if st.CurrentPhase != models.PhasePreview || st.CurrentStatus() != models.PhaseInProgress {
		t.Errorf("phase moved: %s %s", st.CurrentPhase, st.CurrentStatus())
	}
}

func TestReject_NotAwaiting(t *testing.T) {
	c, _, st := setup(t)
	driveTo(t, c, st, models.PhasePlan)
	st.ManualGates["preview"] = models.ManualGate{ID: "x", Name: "preview", Phase: models.PhasePreview, Status: models.GatePending}
	if err := c.Reject(st, "preview", "alex", ""); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("Reject error = %v, want ErrNotAwaiting", err)
	}
	if _, err := c.RequestApproval(st); err == nil {
		t.Error("RequestApproval on an automatic phase should fail")
	}
}

func TestAdvance(t *testing.T) {
	c, store, st := setup(t)
	driveTo(t, c, st, models.PhasePlan)

	// A legacy document stopped on a completed phase without advancing.
	st.Phases[models.PhasePlan] = models.PhaseCompleted
	if err := store.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	moved, err := c.Advance(st)
	if err != nil || !moved {
		t.Fatalf("Advance = %v, %v", moved, err)
	}
	if st.CurrentPhase != models.PhaseTasks || st.CurrentStatus() != models.PhaseInProgress {
		t.Errorf("after Advance: %s %s", st.CurrentPhase, st.CurrentStatus())
	}
	if _, err := c.Advance(st); !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("Advance of in_progress phase error = %v", err)
	}
}
