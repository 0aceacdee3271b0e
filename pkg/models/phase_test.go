package models

import (
	"reflect"
	"testing"
)

func TestPhaseStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to PhaseStatus
		want     bool
	}{
		{PhaseNotStarted, PhaseInProgress, true},
		{PhaseNotStarted, PhaseCompleted, false},
		{PhaseInProgress, PhaseCompleted, true},
		{PhaseInProgress, PhaseFailed, true},
		{PhaseInProgress, PhaseNotStarted, false},
		{PhaseFailed, PhaseInProgress, true},
		{PhaseFailed, PhaseCompleted, false},
		{PhaseCompleted, PhaseInProgress, false},
		{PhaseCompleted, PhaseFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPipelinePhases(t *testing.T) {
	tests := []struct {
		name    string
		model   DeploymentModel
		clarify bool
		want    []Phase
	}{
		{
			name:    "staging-prod with clarify",
			model:   DeployStagingProd,
			clarify: true,
			want:    AllPhases,
		},
		{
			name:  "direct-prod drops staging",
			model: DeployDirectProd,
			want: []Phase{PhaseSpec, PhasePlan, PhaseTasks, PhaseImplement, PhaseOptimize,
				PhasePreview, PhaseDeployProd, PhaseFinalize},
		},
		{
			name:  "local-only drops every deploy phase",
			model: DeployLocalOnly,
			want: []Phase{PhaseSpec, PhasePlan, PhaseTasks, PhaseImplement, PhaseOptimize,
				PhasePreview, PhaseFinalize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PipelinePhases(tt.model, tt.clarify)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PipelinePhases() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePhase(t *testing.T) {
	if p, err := ParsePhase("validate-staging"); err != nil || p != PhaseValidateStaging {
		t.Errorf("ParsePhase(validate-staging) = %q, %v", p, err)
	}
	if _, err := ParsePhase("ship"); err == nil {
		t.Error("expected error for unknown phase")
	}
}
