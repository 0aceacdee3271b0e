package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// ErrUnsupportedVersion indicates a document written by a newer engine.
var ErrUnsupportedVersion = errors.New("unsupported workflow state version")

// documentV0 is the shape written before documents carried a version:
// no run id, no explicit pipeline, gates keyed by bare name.
type documentV0 struct {
	FeatureID       string                              `json:"feature_id"`
	CurrentPhase    models.Phase                        `json:"current_phase"`
	DeploymentModel models.DeploymentModel              `json:"deployment_model"`
	Phases          map[models.Phase]models.PhaseStatus `json:"phases"`
	ManualGates     map[string]models.ManualGate        `json:"manual_gates"`
	QualityGates    map[string]models.QualityGate       `json:"quality_gates"`
}

// decodeDocument decodes a stored document and migrates it forward to
// models.StateVersion. The embedded "version" field decides the shape.
func decodeDocument(data []byte, clarify bool) (*models.WorkflowState, error) {
	var peek struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	var (
		st  *models.WorkflowState
		err error
	)
	switch {
	case peek.Version == 0:
		st, err = migrateV0(data, clarify)
	case peek.Version == models.StateVersion:
		st = &models.WorkflowState{}
		if uerr := json.Unmarshal(data, st); uerr != nil {
			err = fmt.Errorf("%w: %v", ErrCorruptState, uerr)
		}
	default:
		return nil, fmt.Errorf("%w: %d (this build reads up to %d)", ErrUnsupportedVersion, peek.Version, models.StateVersion)
	}
	if err != nil {
		return nil, err
	}

	fillDefaults(st)
	if err := checkDecoded(st); err != nil {
		return nil, err
	}
	return st, nil
}

// migrateV0 lifts an unversioned document to v1.
func migrateV0(data []byte, clarify bool) (*models.WorkflowState, error) {
	var old documentV0
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	model := old.DeploymentModel
	if model == "" {
		model = models.DeployStagingProd
	}
	_, hasClarify := old.Phases[models.PhaseClarify]
	st := models.NewWorkflowState(old.FeatureID, uuid.New().String(), model, models.PipelinePhases(model, clarify || hasClarify))
	for p, status := range old.Phases {
		if st.InPipeline(p) {
			st.Phases[p] = status
		}
	}
	if old.CurrentPhase != "" {
		st.CurrentPhase = old.CurrentPhase
	}

	for name, g := range old.ManualGates {
		if g.Name == "" {
			g.Name = name
		}
		if g.Phase == "" {
			g.Phase = models.Phase(g.Name)
		}
		if g.ID == "" {
			g.ID = uuid.New().String()
		}
		st.ManualGates[g.Name] = g
	}
	for key, q := range old.QualityGates {
		if q.Name == "" {
			q.Name = key
		}
		if !strings.Contains(key, "/") && q.Phase != "" {
			key = models.QualityGateKey(q.Phase, q.Name)
		}
		st.QualityGates[key] = q
	}
	return st, nil
}

// fillDefaults repairs nil maps so callers never write into a nil map.
func fillDefaults(st *models.WorkflowState) {
	st.Version = models.StateVersion
	if st.Phases == nil {
		st.Phases = make(map[models.Phase]models.PhaseStatus)
	}
	if st.ManualGates == nil {
		st.ManualGates = make(map[string]models.ManualGate)
	}
	if st.QualityGates == nil {
		st.QualityGates = make(map[string]models.QualityGate)
	}
	for _, p := range st.Pipeline {
		if _, ok := st.Phases[p]; !ok {
			st.Phases[p] = models.PhaseNotStarted
		}
	}
}

// checkDecoded rejects documents whose content is not a usable state.
func checkDecoded(st *models.WorkflowState) error {
	if st.FeatureID == "" {
		return fmt.Errorf("%w: missing feature id", ErrCorruptState)
	}
	if !st.DeploymentModel.Valid() {
		return fmt.Errorf("%w: unknown deployment model %q", ErrCorruptState, st.DeploymentModel)
	}
	if len(st.Pipeline) == 0 {
		return fmt.Errorf("%w: empty pipeline", ErrCorruptState)
	}
	for _, p := range st.Pipeline {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown phase %q", ErrCorruptState, p)
		}
	}
	if !st.InPipeline(st.CurrentPhase) {
		return fmt.Errorf("%w: current phase %q not in pipeline", ErrCorruptState, st.CurrentPhase)
	}
	for p, status := range st.Phases {
		if !status.Valid() {
			return fmt.Errorf("%w: phase %s has status %q", ErrCorruptState, p, status)
		}
	}
	return nil
}
