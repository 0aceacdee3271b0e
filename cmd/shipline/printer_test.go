package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ShayCichocki/shipline/internal/dispatch"
	"github.com/ShayCichocki/shipline/internal/orchestrator"
	"github.com/ShayCichocki/shipline/pkg/models"
)

func init() {
	color.NoColor = true
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   orchestrator.OrchestratorEvent
		want string
	}{
		{
			name: "phase retry",
			ev:   orchestrator.OrchestratorEvent{Type: orchestrator.EventPhaseStarted, Phase: models.PhaseImplement, Message: "retry"},
			want: "▶ implement (retry)",
		},
		{
			name: "batch",
			ev:   orchestrator.OrchestratorEvent{Type: orchestrator.EventBatchStarted, Batch: 2, Batches: 3, Domain: models.DomainBackend, Message: "T002 T004"},
			want: "  batch 2/3 [backend] T002 T004",
		},
		{
			name: "failed task keeps first line",
			ev:   orchestrator.OrchestratorEvent{Type: orchestrator.EventTaskFailed, TaskID: "T003", Error: errors.New("exit 1\nstack"), Message: "rolled back"},
			want: "    ✗ T003: exit 1 (rolled back)",
		},
		{
			name: "failing check",
			ev:   orchestrator.OrchestratorEvent{Type: orchestrator.EventCheckCompleted, Gate: "tests", Message: "fail"},
			want: "  • check tests: fail",
		},
		{
			name: "skipped task line",
			ev:   orchestrator.OrchestratorEvent{Type: orchestrator.EventTaskListWarning, Message: `line 6: no task identifier, skipped: "- [ ] Write the README"`},
			want: `  ! tasks.md: line 6: no task identifier, skipped: "- [ ] Write the README"`,
		},
		{
			name: "gate",
			ev:   orchestrator.OrchestratorEvent{Type: orchestrator.EventGateAwaiting, Phase: models.PhasePreview, Gate: "preview"},
			want: "⏸ preview awaiting approval of gate preview",
		},
		{
			name: "unknown type prints nothing",
			ev:   orchestrator.OrchestratorEvent{Type: "other"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent(tt.ev); got != tt.want {
				t.Errorf("formatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintOutcome_Failed(t *testing.T) {
	st := &models.WorkflowState{
		FeatureID: "001-upload",
		QualityGates: map[string]models.QualityGate{
			"implement/tests": {Name: "tests", Phase: models.PhaseImplement, Passed: false, Detail: "FAIL TestUpload"},
			"implement/lint":  {Name: "lint", Phase: models.PhaseImplement, Passed: true},
		},
	}
	out := orchestrator.Outcome{
		Kind:      orchestrator.OutcomeFailed,
		FeatureID: "001-upload",
		Phase:     models.PhaseImplement,
		Reason:    "1 task failed",
		State:     st,
		Report: &dispatch.Report{
			Results: []dispatch.Result{
				{TaskID: "T001", Status: models.TaskStatusCompleted},
				{TaskID: "T002", Status: models.TaskStatusFailed, Err: errors.New("exit status 1"), Rollback: "restored", Evidence: "logs/T002.txt"},
			},
			Blocked: []string{"T003"},
		},
	}

	var buf bytes.Buffer
	printOutcome(&buf, out)
	got := buf.String()

	for _, want := range []string{
		"✗ 001-upload failed at implement",
		"reason: 1 task failed",
		"quality gate tests: fail",
		"FAIL TestUpload",
		"task T002: failed (rollback restored)",
		"evidence: logs/T002.txt",
		"blocked: T003",
		"shipline run 001-upload",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "lint") || strings.Contains(got, "task T001") {
		t.Errorf("passing gates and tasks should be omitted:\n%s", got)
	}
}

func TestPrintOutcome_AwaitingGate(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, orchestrator.Outcome{
		Kind:      orchestrator.OutcomeAwaitingGate,
		FeatureID: "001-upload",
		Phase:     models.PhasePreview,
		Gate:      &models.ManualGate{Name: "preview", Phase: models.PhasePreview},
	})
	if !strings.Contains(buf.String(), "shipline approve 001-upload preview") {
		t.Errorf("missing approve hint:\n%s", buf.String())
	}
}

func TestOutcomeSummary(t *testing.T) {
	gate := &models.ManualGate{Name: "preview"}
	tests := []struct {
		out  orchestrator.Outcome
		err  error
		want string
	}{
		{orchestrator.Outcome{Kind: orchestrator.OutcomeDone}, nil, "all phases completed"},
		{orchestrator.Outcome{Kind: orchestrator.OutcomeAwaitingGate, FeatureID: "f", Phase: models.PhasePreview, Gate: gate}, nil, "paused at preview: shipline approve f preview"},
		{orchestrator.Outcome{Kind: orchestrator.OutcomeFailed, Phase: models.PhaseImplement, Reason: "boom"}, errors.New("x"), "implement failed: boom"},
		{orchestrator.Outcome{Kind: orchestrator.OutcomeFailed}, errors.New("load state"), "load state"},
	}
	for _, tt := range tests {
		if got := outcomeSummary(tt.out, tt.err); got != tt.want {
			t.Errorf("outcomeSummary() = %q, want %q", got, tt.want)
		}
	}
}

func TestFormatTask(t *testing.T) {
	task := models.Task{ID: "T002", TDDPhase: models.TDDGreen, Ref: "T001", Priority: 1, Story: 2, Description: "Implement upload"}
	if got, want := formatTask(task, true), "  ✓ T002 [GREEN→T001][P1][US2] Implement upload"; got != want {
		t.Errorf("formatTask() = %q, want %q", got, want)
	}
	if got, want := formatTask(models.Task{ID: "T009", Description: "Docs"}, false), "  ○ T009 Docs"; got != want {
		t.Errorf("formatTask() = %q, want %q", got, want)
	}
}
