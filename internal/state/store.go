package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/shipline/pkg/models"
)

var (
	// ErrCorruptState indicates a persisted document that cannot be decoded.
	// The engine refuses to guess; the fix is "init --force" or manual repair.
	ErrCorruptState = errors.New("corrupt workflow state")
	// ErrGateNotPassed indicates a required quality gate that is missing or failing.
	ErrGateNotPassed = errors.New("quality gate not passed")
	// ErrGateNotApproved indicates a required manual gate that is not approved.
	ErrGateNotApproved = errors.New("manual gate not approved")
	// ErrInvalidTransition indicates an edge the phase state machine does not allow.
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrExists indicates Init on a feature that already has state.
	ErrExists = errors.New("workflow state already exists")
)

// Summary is one row of List.
type Summary struct {
	FeatureID    string
	CurrentPhase models.Phase
	Status       models.PhaseStatus
	UpdatedAt    time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDeploymentModel sets the deployment model for fresh states.
func WithDeploymentModel(m models.DeploymentModel) Option {
	return func(s *Store) {
		s.model = m
	}
}

// WithClarify includes the optional clarify phase in fresh states.
func WithClarify(include bool) Option {
	return func(s *Store) {
		s.clarify = include
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store persists WorkflowState documents. It assumes a single writer per
// feature; the orchestrator serializes all mutations.
type Store struct {
	db      *DB
	reqs    Requirements
	model   models.DeploymentModel
	clarify bool
	now     func() time.Time
}

// NewStore creates a Store over a migrated database.
func NewStore(db *DB, reqs Requirements, opts ...Option) *Store {
	s := &Store{
		db:    db,
		reqs:  reqs,
		model: models.DeployStagingProd,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate() error {
	return s.db.Migrate()
}

// Fresh builds an unsaved state with every phase not started.
func (s *Store) Fresh(featureID string) *models.WorkflowState {
	return models.NewWorkflowState(featureID, uuid.New().String(), s.model, models.PipelinePhases(s.model, s.clarify))
}

// Load returns the state for a feature. A feature with no stored document
// gets a fresh, unsaved state. A document that cannot be decoded returns
// ErrCorruptState.
func (s *Store) Load(featureID string) (*models.WorkflowState, error) {
	var doc string
	row := s.db.QueryRow(`SELECT document FROM workflow_states WHERE feature_id = ?`, featureID)
	err := row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return s.Fresh(featureID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", featureID, err)
	}

	st, err := decodeDocument([]byte(doc), s.clarify)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", featureID, err)
	}
	if st.FeatureID != featureID {
		return nil, fmt.Errorf("load state %s: %w: document belongs to %q", featureID, ErrCorruptState, st.FeatureID)
	}
	return st, nil
}

// Exists reports whether a document is stored for the feature.
func (s *Store) Exists(featureID string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM workflow_states WHERE feature_id = ?`, featureID).Scan(&n); err != nil {
		return false, fmt.Errorf("check state %s: %w", featureID, err)
	}
	return n > 0, nil
}

// Save writes the whole document and any transition records not yet in
// state_history, in one transaction.
func (s *Store) Save(st *models.WorkflowState) error {
	if err := validate(st); err != nil {
		return err
	}
	st.Version = models.StateVersion
	st.UpdatedAt = s.now().UTC()

	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.FeatureID, err)
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO workflow_states (feature_id, version, document, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(feature_id) DO UPDATE SET
				version = excluded.version,
				document = excluded.document,
				updated_at = excluded.updated_at
		`, st.FeatureID, st.Version, string(doc), formatTime(st.UpdatedAt))
		if err != nil {
			return fmt.Errorf("save state %s: %w", st.FeatureID, err)
		}

		var persisted int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM state_history WHERE feature_id = ?`, st.FeatureID).Scan(&persisted); err != nil {
			return fmt.Errorf("count history %s: %w", st.FeatureID, err)
		}
		for _, rec := range st.History[min(persisted, len(st.History)):] {
			_, err := tx.Exec(`
				INSERT INTO state_history (feature_id, phase, from_status, to_status, reason, at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, st.FeatureID, string(rec.Phase), string(rec.From), string(rec.To), rec.Reason, formatTime(rec.At))
			if err != nil {
				return fmt.Errorf("append history %s: %w", st.FeatureID, err)
			}
		}
		return nil
	})
}

// Transition moves phase to a new status and saves the whole document.
//
// Only the current phase may transition. Completing a phase requires every
// recorded quality gate for it to pass, every required quality gate to be
// present, and an approved manual gate when the phase is manual. On
// completion the next pipeline phase becomes current and in_progress within
// the same save. On error st is left unchanged.
func (s *Store) Transition(st *models.WorkflowState, phase models.Phase, to models.PhaseStatus, reason string) error {
	if !st.InPipeline(phase) {
		return fmt.Errorf("%w: %s is not in the %s pipeline", ErrInvalidTransition, phase, st.DeploymentModel)
	}
	if phase != st.CurrentPhase {
		return fmt.Errorf("%w: %s is not the current phase (%s)", ErrInvalidTransition, phase, st.CurrentPhase)
	}
	from := st.Status(phase)
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, phase, from, to)
	}
	if to == models.PhaseCompleted {
		if err := s.checkGates(st, phase); err != nil {
			return err
		}
	}

	next := st.Clone()
	now := s.now().UTC()
	next.Phases[phase] = to
	next.History = append(next.History, models.TransitionRecord{Phase: phase, From: from, To: to, At: now, Reason: reason})

	if to == models.PhaseCompleted {
		if following, ok := next.NextPhase(phase); ok {
			prev := next.Status(following)
			next.CurrentPhase = following
			next.Phases[following] = models.PhaseInProgress
			next.History = append(next.History, models.TransitionRecord{Phase: following, From: prev, To: models.PhaseInProgress, At: now, Reason: "advanced from " + string(phase)})
		}
	}

	if err := s.Save(next); err != nil {
		return err
	}
	*st = *next
	return nil
}

// checkGates verifies the gates guarding phase completion.
func (s *Store) checkGates(st *models.WorkflowState, phase models.Phase) error {
	for _, qg := range st.QualityGates {
		if qg.Phase == phase && !qg.Passed {
			return fmt.Errorf("%w: %s/%s failed: %s", ErrGateNotPassed, phase, qg.Name, qg.Detail)
		}
	}
	if s.reqs == nil {
		return nil
	}
	for _, name := range s.reqs.RequiredQualityGates(phase) {
		if _, ok := st.QualityGates[models.QualityGateKey(phase, name)]; !ok {
			return fmt.Errorf("%w: %s/%s has not run", ErrGateNotPassed, phase, name)
		}
	}
	if s.reqs.RequiresApproval(phase) {
		gate, ok := st.GateForPhase(phase)
		if !ok {
			return fmt.Errorf("%w: %s has no gate", ErrGateNotApproved, phase)
		}
		if gate.Status != models.GateApproved {
			return fmt.Errorf("%w: %s is %s", ErrGateNotApproved, gate.Name, gate.Status)
		}
	}
	return nil
}

// Init creates and saves a fresh state. Existing state is kept unless force
// is set, in which case the document and its history are replaced.
func (s *Store) Init(featureID string, force bool) (*models.WorkflowState, error) {
	exists, err := s.Exists(featureID)
	if err != nil {
		return nil, err
	}
	if exists && !force {
		return nil, fmt.Errorf("init %s: %w (use --force to replace)", featureID, ErrExists)
	}
	if exists {
		err := s.db.Transaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(`DELETE FROM state_history WHERE feature_id = ?`, featureID); err != nil {
				return fmt.Errorf("clear history %s: %w", featureID, err)
			}
			if _, err := tx.Exec(`DELETE FROM workflow_states WHERE feature_id = ?`, featureID); err != nil {
				return fmt.Errorf("clear state %s: %w", featureID, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	st := s.Fresh(featureID)
	if err := s.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}

// List summarizes every stored feature, most recently updated first.
// Undecodable documents are listed with an empty phase.
func (s *Store) List() ([]Summary, error) {
	rows, err := s.db.Query(`SELECT feature_id, document, updated_at FROM workflow_states ORDER BY updated_at DESC, feature_id`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum               Summary
			doc, updatedAtStr string
		)
		if err := rows.Scan(&sum.FeatureID, &doc, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		sum.UpdatedAt, _ = parseTime(updatedAtStr)
		if st, err := decodeDocument([]byte(doc), s.clarify); err == nil {
			sum.CurrentPhase = st.CurrentPhase
			sum.Status = st.CurrentStatus()
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// History returns the persisted transition log for a feature in order.
func (s *Store) History(featureID string) ([]models.TransitionRecord, error) {
	rows, err := s.db.Query(`
		SELECT phase, from_status, to_status, COALESCE(reason, ''), at
		FROM state_history WHERE feature_id = ? ORDER BY id
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", featureID, err)
	}
	defer rows.Close()

	var out []models.TransitionRecord
	for rows.Next() {
		var (
			rec         models.TransitionRecord
			phase, from string
			to, at      string
		)
		if err := rows.Scan(&phase, &from, &to, &rec.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Phase = models.Phase(phase)
		rec.From = models.PhaseStatus(from)
		rec.To = models.PhaseStatus(to)
		rec.At, _ = parseTime(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// validate rejects documents that would not load back.
func validate(st *models.WorkflowState) error {
	if st == nil || st.FeatureID == "" {
		return fmt.Errorf("save state: missing feature id")
	}
	if !st.InPipeline(st.CurrentPhase) {
		return fmt.Errorf("save state %s: current phase %q not in pipeline", st.FeatureID, st.CurrentPhase)
	}
	for p, status := range st.Phases {
		if !p.Valid() || !status.Valid() {
			return fmt.Errorf("save state %s: invalid phase entry %q=%q", st.FeatureID, p, status)
		}
	}
	return nil
}
