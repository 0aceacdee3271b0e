package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/dispatch"
	iexec "github.com/ShayCichocki/shipline/internal/exec"
	"github.com/ShayCichocki/shipline/internal/git"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/internal/state"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// RepoPath is the project root; commands and workers run there.
	RepoPath string
	// Store persists WorkflowState documents.
	Store state.StateStore
	// Pipeline defines phases, manual gates and quality gates.
	Pipeline *pipeline.Definition
	// Worker performs implement tasks.
	Worker dispatch.Worker
}

// GateWaiter blocks until a manual gate may have been resolved.
type GateWaiter interface {
	Wait(ctx context.Context, featureID, gate string) error
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	batcher      *batch.Batcher
	strategies   dispatch.Strategies
	gitRunner    git.Runner
	execRunner   iexec.CommandRunner
	logger       *DebugLogger
	waiter       GateWaiter
	tasksPath    func(featureID string) string
	ledgerPath   func(featureID string) string
	phaseTimeout time.Duration
	checkTimeout time.Duration
	eventBuffer  int
}

// WithBatcher sets the batcher, and with it the batch size cap.
func WithBatcher(b *batch.Batcher) Option {
	return func(o *orchestratorOptions) { o.batcher = b }
}

// WithStrategies sets the domain to worker strategy table.
func WithStrategies(s dispatch.Strategies) Option {
	return func(o *orchestratorOptions) { o.strategies = s }
}

// WithGitRunner sets the git runner used for rollback and commit lookup.
func WithGitRunner(r git.Runner) Option {
	return func(o *orchestratorOptions) { o.gitRunner = r }
}

// WithExecRunner sets the command runner for phase commands and checks.
func WithExecRunner(r iexec.CommandRunner) Option {
	return func(o *orchestratorOptions) { o.execRunner = r }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithGateWaiter makes Run block on manual gates instead of returning.
func WithGateWaiter(w GateWaiter) Option {
	return func(o *orchestratorOptions) { o.waiter = w }
}

// WithTasksPath sets where a feature's task list lives.
func WithTasksPath(fn func(featureID string) string) Option {
	return func(o *orchestratorOptions) { o.tasksPath = fn }
}

// WithLedgerPath sets where a feature's completion ledger lives.
func WithLedgerPath(fn func(featureID string) string) Option {
	return func(o *orchestratorOptions) { o.ledgerPath = fn }
}

// WithPhaseTimeout bounds each phase command.
func WithPhaseTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.phaseTimeout = d }
}

// WithCheckTimeout bounds each quality gate command.
func WithCheckTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.checkTimeout = d }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}

// TasksPath is the default task list location: specs/<feature>/tasks.md.
func TasksPath(repoPath, featureID string) string {
	return filepath.Join(repoPath, "specs", featureID, "tasks.md")
}

// LedgerPath is the default ledger location: specs/<feature>/.ledger.
func LedgerPath(repoPath, featureID string) string {
	return filepath.Join(repoPath, "specs", featureID, ".ledger")
}

func defaultOptions(repoPath string) orchestratorOptions {
	return orchestratorOptions{
		strategies:   dispatch.DefaultStrategies(),
		tasksPath:    func(id string) string { return TasksPath(repoPath, id) },
		ledgerPath:   func(id string) string { return LedgerPath(repoPath, id) },
		phaseTimeout: 30 * time.Minute,
		eventBuffer:  256,
	}
}
