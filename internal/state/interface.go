package state

import (
	"io"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// Requirements tells the store which gates guard a phase's completion.
// pipeline.Definition is the production implementation.
type Requirements interface {
	// RequiredQualityGates lists the quality gates that must pass for phase.
	RequiredQualityGates(phase models.Phase) []string
	// RequiresApproval reports whether phase is guarded by a manual gate.
	RequiresApproval(phase models.Phase) bool
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// WorkflowStore loads and saves whole WorkflowState documents.
type WorkflowStore interface {
	Load(featureID string) (*models.WorkflowState, error)
	Save(s *models.WorkflowState) error
	Transition(s *models.WorkflowState, phase models.Phase, to models.PhaseStatus, reason string) error
}

// StateStore defines the interface for state persistence.
// The orchestrator depends on this rather than the concrete SQLite store.
type StateStore interface {
	io.Closer
	Migrator
	WorkflowStore
	Init(featureID string, force bool) (*models.WorkflowState, error)
	List() ([]Summary, error)
	History(featureID string) ([]models.TransitionRecord, error)
}

// Compile-time verification that Store implements all interfaces.
var (
	_ StateStore    = (*Store)(nil)
	_ WorkflowStore = (*Store)(nil)
	_ Migrator      = (*DB)(nil)
)
