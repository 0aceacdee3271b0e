package resume

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/ledger"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/pkg/models"
)

const tasksDoc = `# Tasks
T001 [RED] Write failing test for Message.validate_content
T002 [GREEN→T001] Implement Message.validate_content
T003 Create upload endpoint in backend/api/upload.py
T004 Add upload service in backend/services/upload.py
T005 Create upload form component
T006 [REFACTOR] Tidy Message.validate_content
`

func newEngine(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(tasksPath, []byte(tasksDoc), 0644); err != nil {
		t.Fatalf("write tasks: %v", err)
	}
	ledgerPath := filepath.Join(dir, ".ledger")
	inputs := FileInputs{
		TasksPath:  func(string) string { return tasksPath },
		LedgerPath: func(string) string { return ledgerPath },
	}
	return New(inputs, batch.New(batch.Config{}), pipeline.Default()), ledger.Open(ledgerPath)
}

func stateAt(phase models.Phase, status models.PhaseStatus) *models.WorkflowState {
	def := pipeline.Default()
	st := models.NewWorkflowState("upload", "run-1", def.DeploymentModel, def.Pipeline())
	for _, p := range st.Pipeline {
		if p == phase {
			break
		}
		st.Phases[p] = models.PhaseCompleted
	}
	st.CurrentPhase = phase
	st.Phases[phase] = status
	return st
}

func TestNextAction_Kinds(t *testing.T) {
	engine, _ := newEngine(t)

	pendingPreview := stateAt(models.PhasePreview, models.PhaseInProgress)
	pendingPreview.ManualGates["preview"] = models.ManualGate{ID: "g1", Name: "preview", Phase: models.PhasePreview, Status: models.GatePending}

	approvedPreview := stateAt(models.PhasePreview, models.PhaseInProgress)
	approvedPreview.ManualGates["preview"] = models.ManualGate{ID: "g1", Name: "preview", Phase: models.PhasePreview, Status: models.GateApproved}

	done := stateAt(models.PhaseFinalize, models.PhaseCompleted)

	tests := []struct {
		name  string
		st    *models.WorkflowState
		kind  Kind
		phase models.Phase
	}{
		{"fresh", stateAt(models.PhaseSpec, models.PhaseNotStarted), RunPhase, models.PhaseSpec},
		{"plan in progress", stateAt(models.PhasePlan, models.PhaseInProgress), RunPhase, models.PhasePlan},
		{"plan failed", stateAt(models.PhasePlan, models.PhaseFailed), RetryPhase, models.PhasePlan},
		{"tasks completed", stateAt(models.PhaseTasks, models.PhaseCompleted), Advance, models.PhaseTasks},
		{"preview awaiting", pendingPreview, AwaitGate, models.PhasePreview},
		{"preview without gate", stateAt(models.PhasePreview, models.PhaseInProgress), RunPhase, models.PhasePreview},
		{"preview approved but blocked", approvedPreview, RunPhase, models.PhasePreview},
		{"implement in progress", stateAt(models.PhaseImplement, models.PhaseInProgress), ResumeBatch, models.PhaseImplement},
		{"finalize completed", done, Done, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.NextAction(tt.st)
			if err != nil {
				t.Fatalf("NextAction: %v", err)
			}
			if got.Kind != tt.kind || got.Phase != tt.phase {
				t.Errorf("NextAction() = %s %s, want %s %s", got.Kind, got.Phase, tt.kind, tt.phase)
			}
		})
	}
}

func TestNextAction_AwaitGateCarriesGate(t *testing.T) {
	engine, _ := newEngine(t)
	st := stateAt(models.PhaseValidateStaging, models.PhaseInProgress)
	st.ManualGates["validate-staging"] = models.ManualGate{ID: "g2", Name: "validate-staging", Phase: models.PhaseValidateStaging, Status: models.GatePending}

	got, err := engine.NextAction(st)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if got.Kind != AwaitGate || got.Gate.ID != "g2" {
		t.Errorf("NextAction() = %+v, want AwaitGate on g2", got)
	}
}

func TestNextAction_DoesNotMutate(t *testing.T) {
	engine, _ := newEngine(t)
	st := stateAt(models.PhaseImplement, models.PhaseFailed)
	before := st.Clone()
	if _, err := engine.NextAction(st); err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if !reflect.DeepEqual(st, before) {
		t.Error("NextAction mutated the state")
	}
}

// Scenario D: a failed implement phase is retried, and the re-planned
// batches never include tasks the ledger records as completed.
func TestScenarioD_RetryWithoutDuplicates(t *testing.T) {
	engine, l := newEngine(t)
	for _, rec := range []ledger.Record{
		{TaskID: "T001", Status: models.TaskStatusCompleted},
		{TaskID: "T003", Status: models.TaskStatusCompleted},
		{TaskID: "T002", Status: models.TaskStatusFailed},
	} {
		if err := l.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	st := stateAt(models.PhaseImplement, models.PhaseFailed)
	action, err := engine.NextAction(st)
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if action.Kind != RetryPhase || action.Phase != models.PhaseImplement {
		t.Fatalf("NextAction() = %s %s, want retry-phase implement", action.Kind, action.Phase)
	}

	st.Phases[models.PhaseImplement] = models.PhaseInProgress
	action, err = engine.NextAction(st)
	if err != nil {
		t.Fatalf("NextAction after retry: %v", err)
	}
	if action.Kind != ResumeBatch {
		t.Fatalf("NextAction() = %s, want resume-batch", action.Kind)
	}

	var dispatched []string
	for _, task := range batch.Flatten(action.Plan) {
		dispatched = append(dispatched, task.ID)
		if action.Completed[task.ID] {
			t.Errorf("%s is completed in the ledger but planned again", task.ID)
		}
	}
	want := []string{"T002", "T004", "T005", "T006"}
	if !reflect.DeepEqual(dispatched, want) {
		t.Errorf("planned %v, want %v", dispatched, want)
	}

	// T001 and T002 sit in the first two full-plan batches; T002 is not done.
	if action.StartBatch != 1 {
		t.Errorf("StartBatch = %d, want 1", action.StartBatch)
	}
	if len(action.FullPlan) != 5 {
		t.Errorf("full plan has %d batches, want 5", len(action.FullPlan))
	}

	// A second invocation with the same ledger plans exactly the same work.
	again, err := engine.NextAction(st)
	if err != nil {
		t.Fatalf("NextAction again: %v", err)
	}
	if !reflect.DeepEqual(batch.Flatten(again.Plan), batch.Flatten(action.Plan)) {
		t.Error("re-invocation planned different work")
	}
}

func TestNextAction_MissingTaskList(t *testing.T) {
	inputs := FileInputs{
		TasksPath:  func(string) string { return filepath.Join(t.TempDir(), "missing.md") },
		LedgerPath: func(string) string { return filepath.Join(t.TempDir(), ".ledger") },
	}
	engine := New(inputs, batch.New(batch.Config{}), pipeline.Default())
	if _, err := engine.NextAction(stateAt(models.PhaseImplement, models.PhaseInProgress)); err == nil {
		t.Error("expected error for missing task list")
	}
}

func TestPlan_CarriesTaskListWarnings(t *testing.T) {
	dir := t.TempDir()
	tasksPath := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(tasksPath, []byte(tasksDoc+"- [ ] Write the README\n"), 0644); err != nil {
		t.Fatalf("write tasks: %v", err)
	}
	inputs := FileInputs{
		TasksPath:  func(string) string { return tasksPath },
		LedgerPath: func(string) string { return filepath.Join(dir, ".ledger") },
	}
	engine := New(inputs, batch.New(batch.Config{}), pipeline.Default())

	action, err := engine.NextAction(stateAt(models.PhaseImplement, models.PhaseInProgress))
	if err != nil {
		t.Fatalf("NextAction: %v", err)
	}
	if action.Kind != ResumeBatch || len(action.Warnings) != 1 {
		t.Fatalf("action = %s with warnings %q, want one warning", action, action.Warnings)
	}
	if len(action.Document.Tasks) != 6 {
		t.Errorf("parsed %d tasks, want 6", len(action.Document.Tasks))
	}
}
