package models

import "fmt"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Domain is the inferred work category of a task.
// The set is closed; worker strategies are looked up by Domain, never by free text.
type Domain string

const (
	DomainBackend  Domain = "backend"
	DomainFrontend Domain = "frontend"
	DomainDatabase Domain = "database"
	DomainTests    Domain = "tests"
	DomainGeneral  Domain = "general"
)

// Domains lists every domain in a fixed order.
var Domains = []Domain{DomainBackend, DomainFrontend, DomainDatabase, DomainTests, DomainGeneral}

// Valid returns true if the domain is a known value.
func (d Domain) Valid() bool {
	switch d {
	case DomainBackend, DomainFrontend, DomainDatabase, DomainTests, DomainGeneral:
		return true
	default:
		return false
	}
}

// TDDPhase tags a task as one member of a RED -> GREEN -> REFACTOR chain.
type TDDPhase string

const (
	// TDDNone marks a task outside any TDD chain.
	TDDNone     TDDPhase = ""
	TDDRed      TDDPhase = "RED"
	TDDGreen    TDDPhase = "GREEN"
	TDDRefactor TDDPhase = "REFACTOR"
)

// TaskFormat is the organization of a task-list document.
type TaskFormat string

const (
	// FormatTDDPhase is a flat list ordered by TDD phase.
	FormatTDDPhase TaskFormat = "tdd-phase"
	// FormatUserStory groups tasks by [Pn] priority and [USn] story.
	FormatUserStory TaskFormat = "user-story"
)

// Task represents one line of a task-list document.
type Task struct {
	// ID is the stable identifier, e.g. "T001".
	ID string `json:"id"`
	// Description is the free-text work item with markers stripped.
	Description string `json:"description"`
	// Domain is the category inferred from the description.
	Domain Domain `json:"domain"`
	// TDDPhase is set for members of a TDD chain.
	TDDPhase TDDPhase `json:"tdd_phase,omitempty"`
	// Ref links a GREEN task to its RED task, or a REFACTOR task to its GREEN task.
	Ref string `json:"ref,omitempty"`
	// Parallelizable is false only for tasks in the middle of a TDD chain.
	Parallelizable bool `json:"parallelizable"`
	// ParallelMarked records an explicit [P] marker.
	ParallelMarked bool `json:"parallel_marked,omitempty"`
	// Priority is the [Pn] grouping; zero when untagged.
	Priority int `json:"priority,omitempty"`
	// Story is the [USn] grouping; zero when untagged.
	Story int `json:"story,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Line is the 1-based line number in the source document.
	Line int `json:"line,omitempty"`
	// Scope lists file paths the description declares.
	Scope []string `json:"scope,omitempty"`
	// Reuse lists files the worker should reuse rather than recreate.
	Reuse []string `json:"reuse,omitempty"`
	// Patterns lists pattern hints handed to the worker.
	Patterns []string `json:"patterns,omitempty"`
}

// InChain reports whether the task belongs to a TDD chain.
func (t Task) InChain() bool {
	return t.TDDPhase != TDDNone
}

// String returns a short human-readable form, e.g. "T002 [GREEN→T001] (backend)".
func (t Task) String() string {
	switch t.TDDPhase {
	case TDDNone:
		return fmt.Sprintf("%s (%s)", t.ID, t.Domain)
	case TDDRed:
		return fmt.Sprintf("%s [RED] (%s)", t.ID, t.Domain)
	default:
		return fmt.Sprintf("%s [%s→%s] (%s)", t.ID, t.TDDPhase, t.Ref, t.Domain)
	}
}
