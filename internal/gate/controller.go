// Package gate drives the phase state machine: starting, completing, failing
// and retrying phases, resolving manual gates and recording quality gates.
//
//	not_started -> in_progress -> {completed | failed}
//	failed      -> in_progress (retry)
//
// Every method takes the WorkflowState explicitly, mutates it only on
// success, and persists it with a single whole-document save.
package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/shipline/internal/state"
	"github.com/ShayCichocki/shipline/pkg/models"
)

var (
	// ErrGateResolved indicates an approve/reject of a gate that is already resolved.
	ErrGateResolved = errors.New("manual gate already resolved")
	// ErrUnknownGate indicates a gate name with no instance in the state.
	ErrUnknownGate = errors.New("unknown manual gate")
	// ErrNotAwaiting indicates a gate whose phase is not the active phase.
	ErrNotAwaiting = errors.New("gate is not awaiting a decision")
)

// Store is the persistence the controller needs.
type Store interface {
	Save(s *models.WorkflowState) error
	Transition(s *models.WorkflowState, phase models.Phase, to models.PhaseStatus, reason string) error
}

// Controller applies state-machine transitions.
type Controller struct {
	store Store
	reqs  state.Requirements
	now   func() time.Time
	newID func() string
}

// NewController creates a controller over store using reqs to decide which
// phases are manual.
func NewController(store Store, reqs state.Requirements) *Controller {
	return &Controller{
		store: store,
		reqs:  reqs,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Start moves the current phase from not_started to in_progress.
func (c *Controller) Start(st *models.WorkflowState) error {
	phase := st.CurrentPhase
	if err := c.store.Transition(st, phase, models.PhaseInProgress, "started"); err != nil {
		return fmt.Errorf("start %s: %w", phase, err)
	}
	return nil
}

// Complete marks the current phase completed, which advances the pipeline.
func (c *Controller) Complete(st *models.WorkflowState, reason string) error {
	phase := st.CurrentPhase
	if err := c.store.Transition(st, phase, models.PhaseCompleted, reason); err != nil {
		return fmt.Errorf("complete %s: %w", phase, err)
	}
	return nil
}

// RequestApproval opens a pending gate on the current manual phase once its
// work has run. An existing pending or approved instance is kept.
func (c *Controller) RequestApproval(st *models.WorkflowState) (models.ManualGate, error) {
	phase := st.CurrentPhase
	if !c.reqs.RequiresApproval(phase) {
		return models.ManualGate{}, fmt.Errorf("request approval: %s is not a manual phase", phase)
	}
	if st.Status(phase) != models.PhaseInProgress {
		return models.ManualGate{}, fmt.Errorf("request approval: %w: %s is %s", ErrNotAwaiting, phase, st.Status(phase))
	}
	if g, ok := st.GateForPhase(phase); ok && g.Status != models.GateRejected {
		return g, nil
	}
	next := st.Clone()
	g := c.openGate(next, phase)
	if err := c.store.Save(next); err != nil {
		return models.ManualGate{}, fmt.Errorf("request approval %s: %w", phase, err)
	}
	*st = *next
	return g, nil
}

// Fail marks the current phase failed. The pipeline stays on it.
func (c *Controller) Fail(st *models.WorkflowState, reason string) error {
	phase := st.CurrentPhase
	if err := c.store.Transition(st, phase, models.PhaseFailed, reason); err != nil {
		return fmt.Errorf("fail %s: %w", phase, err)
	}
	return nil
}

// Retry re-enters a failed current phase. Its previous quality gate results
// are discarded and a resolved manual gate is retired, so the next approval
// request creates a new instance; resolved instances are never reopened.
func (c *Controller) Retry(st *models.WorkflowState) error {
	next := st.Clone()
	phase := next.CurrentPhase
	if next.Status(phase) != models.PhaseFailed {
		return fmt.Errorf("retry %s: %w: phase is %s", phase, state.ErrInvalidTransition, next.Status(phase))
	}
	for key, qg := range next.QualityGates {
		if qg.Phase == phase {
			delete(next.QualityGates, key)
		}
	}
	reason := "retry"
	if c.reqs.RequiresApproval(phase) {
		if old, ok := next.GateForPhase(phase); ok {
			reason = fmt.Sprintf("retry, previous gate %s was %s by %s", old.ID, old.Status, old.Approver)
			delete(next.ManualGates, old.Name)
		}
	}
	if err := c.store.Transition(next, phase, models.PhaseInProgress, reason); err != nil {
		return fmt.Errorf("retry %s: %w", phase, err)
	}
	*st = *next
	return nil
}

// Advance moves past a completed current phase that was not advanced, as
// found in documents written by older engines. It returns false when the
// current phase is the last one.
func (c *Controller) Advance(st *models.WorkflowState) (bool, error) {
	phase := st.CurrentPhase
	if st.Status(phase) != models.PhaseCompleted {
		return false, fmt.Errorf("advance from %s: %w: phase is %s", phase, state.ErrInvalidTransition, st.Status(phase))
	}
	following, ok := st.NextPhase(phase)
	if !ok {
		return false, nil
	}
	next := st.Clone()
	next.CurrentPhase = following
	if err := c.store.Transition(next, following, models.PhaseInProgress, "advanced from "+string(phase)); err != nil {
		return false, fmt.Errorf("advance to %s: %w", following, err)
	}
	*st = *next
	return true, nil
}

// Approve resolves the named gate and completes its phase. When other
// gates still block completion, the approval is saved and the blocking
// error is returned.
func (c *Controller) Approve(st *models.WorkflowState, name, approver string) error {
	next, gate, err := c.resolve(st, name)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	gate.Status = models.GateApproved
	gate.Approver = approver
	gate.Timestamp = &now
	next.ManualGates[name] = gate

	err = c.store.Transition(next, gate.Phase, models.PhaseCompleted, "approved by "+approver)
	if errors.Is(err, state.ErrGateNotPassed) {
		if serr := c.store.Save(next); serr != nil {
			return fmt.Errorf("approve %s: %w", name, serr)
		}
		*st = *next
		return fmt.Errorf("approve %s: recorded, but %w", name, err)
	}
	if err != nil {
		return fmt.Errorf("approve %s: %w", name, err)
	}
	*st = *next
	return nil
}

// Reject resolves the named gate as rejected and fails its phase.
func (c *Controller) Reject(st *models.WorkflowState, name, approver, reason string) error {
	next, gate, err := c.resolve(st, name)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	gate.Status = models.GateRejected
	gate.Approver = approver
	gate.Reason = reason
	gate.Timestamp = &now
	next.ManualGates[name] = gate

	msg := "rejected by " + approver
	if reason != "" {
		msg += ": " + reason
	}
	if err := c.store.Transition(next, gate.Phase, models.PhaseFailed, msg); err != nil {
		return fmt.Errorf("reject %s: %w", name, err)
	}
	*st = *next
	return nil
}

// resolve finds a pending gate on the active phase and returns a clone to mutate.
func (c *Controller) resolve(st *models.WorkflowState, name string) (*models.WorkflowState, models.ManualGate, error) {
	gate, ok := st.ManualGates[name]
	if !ok {
		return nil, models.ManualGate{}, fmt.Errorf("%w: %q", ErrUnknownGate, name)
	}
	if gate.Resolved() {
		return nil, models.ManualGate{}, fmt.Errorf("%w: %s was %s by %s", ErrGateResolved, name, gate.Status, gate.Approver)
	}
	if gate.Phase != st.CurrentPhase || st.Status(gate.Phase) != models.PhaseInProgress {
		return nil, models.ManualGate{}, fmt.Errorf("%w: %s guards %s, pipeline is at %s (%s)", ErrNotAwaiting, name, gate.Phase, st.CurrentPhase, st.CurrentStatus())
	}
	return st.Clone(), gate, nil
}

// RecordQuality stores quality gate results, replacing earlier results of
// the same phase and name.
func (c *Controller) RecordQuality(st *models.WorkflowState, gates ...models.QualityGate) error {
	next := st.Clone()
	for _, qg := range gates {
		if qg.Timestamp.IsZero() {
			qg.Timestamp = c.now().UTC()
		}
		next.QualityGates[models.QualityGateKey(qg.Phase, qg.Name)] = qg
	}
	if err := c.store.Save(next); err != nil {
		return fmt.Errorf("record quality gates: %w", err)
	}
	*st = *next
	return nil
}

// openGate installs a new pending gate instance for phase.
func (c *Controller) openGate(st *models.WorkflowState, phase models.Phase) models.ManualGate {
	name := string(phase)
	g := models.ManualGate{
		ID:          c.newID(),
		Name:        name,
		Phase:       phase,
		Status:      models.GatePending,
		RequestedAt: c.now().UTC(),
	}
	st.ManualGates[name] = g
	return g
}

// PendingGate returns the gate awaiting a decision on the current phase.
func PendingGate(st *models.WorkflowState) (models.ManualGate, bool) {
	g, ok := st.GateForPhase(st.CurrentPhase)
	if !ok || g.Status != models.GatePending || st.CurrentStatus() != models.PhaseInProgress {
		return models.ManualGate{}, false
	}
	return g, true
}
