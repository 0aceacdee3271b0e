// Package dispatch runs batches of tasks through workers: concurrently within
// a batch, strictly sequentially across batches.
package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// Strategy is how a domain's tasks are carried out.
type Strategy struct {
	// Agent names the specialist handling the domain, e.g. "backend-dev".
	Agent string `mapstructure:"agent" yaml:"agent"`
	// Command is the shell command that performs one task.
	Command string `mapstructure:"command" yaml:"command"`
}

// Strategies maps each domain to its worker strategy.
type Strategies map[models.Domain]Strategy

// DefaultStrategies names one agent per domain. Commands are left empty;
// they come from configuration.
func DefaultStrategies() Strategies {
	return Strategies{
		models.DomainBackend:  {Agent: "backend-dev"},
		models.DomainFrontend: {Agent: "frontend-shipper"},
		models.DomainDatabase: {Agent: "database-architect"},
		models.DomainTests:    {Agent: "qa-test"},
		models.DomainGeneral:  {Agent: "general-purpose"},
	}
}

// For returns the strategy for d, falling back to the general domain for
// fields d leaves empty.
func (s Strategies) For(d models.Domain) Strategy {
	st := s[d]
	general := s[models.DomainGeneral]
	if st.Agent == "" {
		st.Agent = general.Agent
	}
	if st.Command == "" {
		st.Command = general.Command
	}
	return st
}

// Validate checks that every domain resolves to a command.
func (s Strategies) Validate() error {
	var missing []string
	for _, d := range models.Domains {
		if s.For(d).Command == "" {
			missing = append(missing, string(d))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no worker command for domains %v (set workers.general.command)", missing)
	}
	return nil
}

// InvokeContext carries everything a worker needs besides the task itself.
type InvokeContext struct {
	FeatureID    string
	Reuse        []string
	PatternHints []string
	Strategy     Strategy
}

// Result is the outcome of one task. Task failures are data, not errors.
type Result struct {
	TaskID   string
	Status   models.TaskStatus
	Evidence string
	Coverage string
	Commit   string
	// Err explains a failure.
	Err error
	// Rollback records what happened to the task's working-tree changes.
	Rollback string
}

// Failed reports whether the task did not complete.
func (r Result) Failed() bool {
	return r.Status != models.TaskStatusCompleted
}

// Worker performs a single task.
type Worker interface {
	Invoke(ctx context.Context, task models.Task, ictx InvokeContext) Result
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, task models.Task, ictx InvokeContext) Result

// Invoke calls f.
func (f WorkerFunc) Invoke(ctx context.Context, task models.Task, ictx InvokeContext) Result {
	return f(ctx, task, ictx)
}
