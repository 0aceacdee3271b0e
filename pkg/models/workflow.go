package models

import "time"

// StateVersion is the current schema version of a persisted WorkflowState.
const StateVersion = 1

// GateStatus is the resolution state of a manual gate.
type GateStatus string

const (
	GatePending  GateStatus = "pending"
	GateApproved GateStatus = "approved"
	GateRejected GateStatus = "rejected"
)

// ManualGate is a checkpoint that needs an explicit human decision.
// Once resolved it never changes; a retried phase gets a new instance.
type ManualGate struct {
	// ID identifies this gate instance.
	ID string `json:"id"`
	// Name is the gate's public name, used by approve/reject.
	Name string `json:"name"`
	// Phase is the phase this gate guards.
	Phase Phase `json:"phase"`
	// Status is pending until approved or rejected.
	Status GateStatus `json:"status"`
	// Approver is who resolved the gate.
	Approver string `json:"approver,omitempty"`
	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`
	// RequestedAt is when the gate instance was created.
	RequestedAt time.Time `json:"requested_at"`
	// Timestamp is when the gate was resolved.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Resolved reports whether the gate has been approved or rejected.
func (g ManualGate) Resolved() bool {
	return g.Status == GateApproved || g.Status == GateRejected
}

// QualityGate is the outcome of one automated check.
type QualityGate struct {
	Name      string    `json:"name"`
	Phase     Phase     `json:"phase"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// TransitionRecord is one entry of the phase audit trail.
type TransitionRecord struct {
	Phase  Phase       `json:"phase"`
	From   PhaseStatus `json:"from"`
	To     PhaseStatus `json:"to"`
	At     time.Time   `json:"at"`
	Reason string      `json:"reason,omitempty"`
}

// WorkflowState is the persisted aggregate for one feature's pipeline run.
type WorkflowState struct {
	// Version is the document schema version.
	Version int `json:"version"`
	// FeatureID keys the document.
	FeatureID string `json:"feature_id"`
	// RunID identifies the pipeline run that created this document.
	RunID string `json:"run_id"`
	// CurrentPhase is the phase the pipeline is positioned on.
	CurrentPhase Phase `json:"current_phase"`
	// DeploymentModel selects which deploy phases exist.
	DeploymentModel DeploymentModel `json:"deployment_model"`
	// Pipeline is the ordered list of phases for this run.
	Pipeline []Phase `json:"pipeline"`
	// Phases maps each pipeline phase to its status.
	Phases map[Phase]PhaseStatus `json:"phases"`
	// ManualGates maps gate names to the current gate instance.
	ManualGates map[string]ManualGate `json:"manual_gates"`
	// QualityGates maps gate keys ("phase/name") to the latest result.
	QualityGates map[string]QualityGate `json:"quality_gates"`
	// History is the append-only transition log.
	History []TransitionRecord `json:"history,omitempty"`
	// UpdatedAt is the time of the last save.
	UpdatedAt time.Time `json:"updated_at"`
}

// QualityGateKey builds the QualityGates map key for a phase's check.
func QualityGateKey(phase Phase, name string) string {
	return string(phase) + "/" + name
}

// NewWorkflowState creates a fresh state with every phase not started.
func NewWorkflowState(featureID, runID string, model DeploymentModel, pipeline []Phase) *WorkflowState {
	s := &WorkflowState{
		Version:         StateVersion,
		FeatureID:       featureID,
		RunID:           runID,
		DeploymentModel: model,
		Pipeline:        append([]Phase(nil), pipeline...),
		Phases:          make(map[Phase]PhaseStatus, len(pipeline)),
		ManualGates:     make(map[string]ManualGate),
		QualityGates:    make(map[string]QualityGate),
	}
	for _, p := range pipeline {
		s.Phases[p] = PhaseNotStarted
	}
	if len(pipeline) > 0 {
		s.CurrentPhase = pipeline[0]
	}
	return s
}

// Status returns the status of a phase, defaulting to not started.
func (s *WorkflowState) Status(p Phase) PhaseStatus {
	if st, ok := s.Phases[p]; ok {
		return st
	}
	return PhaseNotStarted
}

// CurrentStatus returns the status of the current phase.
func (s *WorkflowState) CurrentStatus() PhaseStatus {
	return s.Status(s.CurrentPhase)
}

// NextPhase returns the phase after p in this run's pipeline.
// The second return value is false when p is the last phase or not in the pipeline.
func (s *WorkflowState) NextPhase(p Phase) (Phase, bool) {
	for i, phase := range s.Pipeline {
		if phase == p && i+1 < len(s.Pipeline) {
			return s.Pipeline[i+1], true
		}
	}
	return "", false
}

// InPipeline reports whether p is part of this run's pipeline.
func (s *WorkflowState) InPipeline(p Phase) bool {
	for _, phase := range s.Pipeline {
		if phase == p {
			return true
		}
	}
	return false
}

// AllCompleted reports whether every pipeline phase is completed.
func (s *WorkflowState) AllCompleted() bool {
	if len(s.Pipeline) == 0 {
		return false
	}
	for _, p := range s.Pipeline {
		if s.Status(p) != PhaseCompleted {
			return false
		}
	}
	return true
}

// GateForPhase returns the manual gate instance guarding a phase, if any.
func (s *WorkflowState) GateForPhase(p Phase) (ManualGate, bool) {
	for _, g := range s.ManualGates {
		if g.Phase == p {
			return g, true
		}
	}
	return ManualGate{}, false
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (s *WorkflowState) Clone() *WorkflowState {
	c := *s
	c.Pipeline = append([]Phase(nil), s.Pipeline...)
	c.Phases = make(map[Phase]PhaseStatus, len(s.Phases))
	for k, v := range s.Phases {
		c.Phases[k] = v
	}
	c.ManualGates = make(map[string]ManualGate, len(s.ManualGates))
	for k, v := range s.ManualGates {
		c.ManualGates[k] = v
	}
	c.QualityGates = make(map[string]QualityGate, len(s.QualityGates))
	for k, v := range s.QualityGates {
		c.QualityGates[k] = v
	}
	c.History = append([]TransitionRecord(nil), s.History...)
	return &c
}
