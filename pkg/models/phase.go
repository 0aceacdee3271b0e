package models

import "fmt"

// Phase is one step of the delivery pipeline.
type Phase string

const (
	PhaseSpec            Phase = "spec"
	PhaseClarify         Phase = "clarify"
	PhasePlan            Phase = "plan"
	PhaseTasks           Phase = "tasks"
	PhaseImplement       Phase = "implement"
	PhaseOptimize        Phase = "optimize"
	PhasePreview         Phase = "preview"
	PhaseDeployStaging   Phase = "deploy-staging"
	PhaseValidateStaging Phase = "validate-staging"
	PhaseDeployProd      Phase = "deploy-prod"
	PhaseFinalize        Phase = "finalize"
)

// AllPhases is the full pipeline vocabulary in execution order.
var AllPhases = []Phase{
	PhaseSpec,
	PhaseClarify,
	PhasePlan,
	PhaseTasks,
	PhaseImplement,
	PhaseOptimize,
	PhasePreview,
	PhaseDeployStaging,
	PhaseValidateStaging,
	PhaseDeployProd,
	PhaseFinalize,
}

// Valid returns true if the phase is part of the vocabulary.
func (p Phase) Valid() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePhase converts a string into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// PhaseStatus is the lifecycle state of a phase.
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "not_started"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseFailed     PhaseStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseNotStarted, PhaseInProgress, PhaseCompleted, PhaseFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal state-machine edge.
//
//	not_started -> in_progress -> {completed | failed}
//	failed      -> in_progress (retry)
func (s PhaseStatus) CanTransition(next PhaseStatus) bool {
	switch s {
	case PhaseNotStarted:
		return next == PhaseInProgress
	case PhaseInProgress:
		return next == PhaseCompleted || next == PhaseFailed
	case PhaseFailed:
		return next == PhaseInProgress
	default:
		return false
	}
}

// DeploymentModel selects which deploy phases a pipeline contains.
type DeploymentModel string

const (
	// DeployStagingProd runs every phase including staging validation.
	DeployStagingProd DeploymentModel = "staging-prod"
	// DeployDirectProd skips the staging phases.
	DeployDirectProd DeploymentModel = "direct-prod"
	// DeployLocalOnly skips every deploy phase.
	DeployLocalOnly DeploymentModel = "local-only"
)

// Valid returns true if the model is a known value.
func (m DeploymentModel) Valid() bool {
	switch m {
	case DeployStagingProd, DeployDirectProd, DeployLocalOnly:
		return true
	default:
		return false
	}
}

// Excludes reports whether the deployment model drops the given phase.
func (m DeploymentModel) Excludes(p Phase) bool {
	switch m {
	case DeployDirectProd:
		return p == PhaseDeployStaging || p == PhaseValidateStaging
	case DeployLocalOnly:
		return p == PhaseDeployStaging || p == PhaseValidateStaging || p == PhaseDeployProd
	default:
		return false
	}
}

// PipelinePhases returns the ordered phases for a deployment model.
// The optional clarify phase is kept only when includeClarify is set.
func PipelinePhases(model DeploymentModel, includeClarify bool) []Phase {
	phases := make([]Phase, 0, len(AllPhases))
	for _, p := range AllPhases {
		if p == PhaseClarify && !includeClarify {
			continue
		}
		if model.Excludes(p) {
			continue
		}
		phases = append(phases, p)
	}
	return phases
}
