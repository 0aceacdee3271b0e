package dispatch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/git"
	"github.com/ShayCichocki/shipline/internal/graph"
	"github.com/ShayCichocki/shipline/internal/ledger"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// Rollback outcomes recorded in the ledger.
const (
	RollbackDone    = "done"
	RollbackSkipped = "skipped"
	RollbackError   = "error"
)

// Observer receives task lifecycle notifications. Calls may come from worker
// goroutines concurrently.
type Observer interface {
	BatchStarted(b batch.Batch, total int)
	TaskStarted(task models.Task, batchIndex int)
	TaskFinished(task models.Task, res Result)
	TaskBlocked(task models.Task, blockedBy []string)
}

// Report summarizes an Execute call.
type Report struct {
	// Results holds one result per dispatched task in plan order.
	Results []Result
	// Blocked lists tasks never dispatched because a chain dependency failed.
	Blocked []string
}

// Completed returns the ids of completed tasks.
func (r Report) Completed() []string {
	var ids []string
	for _, res := range r.Results {
		if !res.Failed() {
			ids = append(ids, res.TaskID)
		}
	}
	return ids
}

// Failed returns the ids of failed tasks.
func (r Report) Failed() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Failed() {
			ids = append(ids, res.TaskID)
		}
	}
	return ids
}

// OK reports whether every planned task completed.
func (r Report) OK() bool {
	return len(r.Failed()) == 0 && len(r.Blocked) == 0
}

// Dispatcher fans a batch out to workers and records outcomes in the ledger.
type Dispatcher struct {
	featureID  string
	worker     Worker
	strategies Strategies
	ledger     *ledger.Ledger
	rollback   git.RollbackOperations
	inspect    git.InspectOperations
	workDir    string
	observer   Observer
	debugLog   func(format string, args ...interface{})
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRollback sets how failed tasks' changes are discarded.
func WithRollback(r git.RollbackOperations) Option {
	return func(d *Dispatcher) { d.rollback = r }
}

// WithInspect sets where HEAD commits and working-tree changes are read
// from. Without it, rollback is limited to declared task scopes.
func WithInspect(i git.InspectOperations) Option {
	return func(d *Dispatcher) { d.inspect = i }
}

// WithWorkDir sets the repository root that changed paths are relative to.
func WithWorkDir(dir string) Option {
	return func(d *Dispatcher) { d.workDir = dir }
}

// WithObserver sets the task lifecycle observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.debugLog = fn
		}
	}
}

// New creates a dispatcher for one feature.
func New(featureID string, worker Worker, strategies Strategies, l *ledger.Ledger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		featureID:  featureID,
		worker:     worker,
		strategies: strategies,
		ledger:     l,
		debugLog:   func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs batches in order, waiting for each to finish before the next.
// Tasks whose TDD chain depends on a failed task are reported as blocked and
// never dispatched; unrelated tasks keep running. Cancelling ctx stops before
// the next batch and returns the partial report with ctx's error.
func (d *Dispatcher) Execute(ctx context.Context, batches []batch.Batch) (Report, error) {
	var report Report

	g := graph.New()
	g.SetDebugLog(d.debugLog)
	if err := g.Build(batch.Flatten(batches), true); err != nil {
		return report, fmt.Errorf("build chain graph: %w", err)
	}

	var failed []string
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		blocked := make(map[string]bool)
		for _, id := range g.Dependents(failed...) {
			blocked[id] = true
		}

		run := b
		run.Tasks = nil
		for _, task := range b.Tasks {
			if blocked[task.ID] {
				report.Blocked = append(report.Blocked, task.ID)
				by := blockedBy(g, task.ID, failed)
				if task.InChain() {
					d.debugLog("[dispatch] %s blocked: chain %s failed at %v", task.ID, g.ChainRoot(task.ID), by)
				} else {
					d.debugLog("[dispatch] %s blocked by %v", task.ID, by)
				}
				if d.observer != nil {
					d.observer.TaskBlocked(task, by)
				}
				continue
			}
			run.Tasks = append(run.Tasks, task)
		}
		if len(run.Tasks) == 0 {
			continue
		}
		if d.observer != nil {
			d.observer.BatchStarted(run, len(batches))
		}

		for _, res := range d.Run(ctx, run) {
			report.Results = append(report.Results, res)
			if res.Failed() {
				failed = append(failed, res.TaskID)
			}
		}
	}
	return report, nil
}

// Run dispatches every task of b concurrently and returns once all have
// finished, with results in batch order. A failing task does not cancel its
// siblings. Failed tasks are rolled back after the whole batch has joined,
// using the working-tree changes made during the batch.
func (d *Dispatcher) Run(ctx context.Context, b batch.Batch) []Result {
	type indexed struct {
		i   int
		res Result
	}
	results := make(chan indexed, len(b.Tasks))

	d.debugLog("[dispatch] batch %d: %v", b.Index+1, b.IDs())
	before, snapOK := d.snapshot(ctx)

	var wg sync.WaitGroup
	for i, task := range b.Tasks {
		wg.Add(1)
		go func(i int, task models.Task) {
			defer wg.Done()
			results <- indexed{i: i, res: d.runTask(ctx, task, b.Index)}
		}(i, task)
	}
	wg.Wait()
	close(results)

	out := make([]Result, len(b.Tasks))
	for r := range results {
		out[r.i] = r.res
	}

	var changed []string
	for i, res := range out {
		if !res.Failed() || res.Rollback != "" {
			continue
		}
		if changed == nil && snapOK {
			changed = d.changedSince(ctx, before)
		}
		task := b.Tasks[i]
		res.Rollback = d.rollbackTask(ctx, task, rollbackPaths(task, b.Tasks, out, changed))
		d.recordFailure(task, res)
		d.finish(task, res)
		out[i] = res
	}
	return out
}

// runTask invokes the worker for one task. Completions are recorded here;
// failures are left for Run to roll back once the batch has joined.
func (d *Dispatcher) runTask(ctx context.Context, task models.Task, batchIndex int) Result {
	if d.observer != nil {
		d.observer.TaskStarted(task, batchIndex)
	}

	ictx := InvokeContext{
		FeatureID:    d.featureID,
		Reuse:        task.Reuse,
		PatternHints: task.Patterns,
		Strategy:     d.strategies.For(task.Domain),
	}
	res := d.invoke(ctx, task, ictx)
	res.TaskID = task.ID
	res.Rollback = ""
	if res.Status != models.TaskStatusCompleted {
		res.Status = models.TaskStatusFailed
		return res
	}

	if err := d.recordCompletion(ctx, task, &res); err != nil {
		// The work itself succeeded; keep it in place.
		res.Status = models.TaskStatusFailed
		res.Err = err
		res.Rollback = RollbackSkipped
	}
	d.finish(task, res)
	return res
}

func (d *Dispatcher) finish(task models.Task, res Result) {
	d.debugLog("[dispatch] %s %s (rollback=%s err=%v)", task.ID, res.Status, res.Rollback, res.Err)
	if d.observer != nil {
		d.observer.TaskFinished(task, res)
	}
}

// invoke calls the worker, turning a panic into a failed result.
func (d *Dispatcher) invoke(ctx context.Context, task models.Task, ictx InvokeContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{TaskID: task.ID, Status: models.TaskStatusFailed, Err: fmt.Errorf("worker panic: %v", r)}
		}
	}()
	return d.worker.Invoke(ctx, task, ictx)
}

// snapshot records the paths already changed before a batch starts.
func (d *Dispatcher) snapshot(ctx context.Context) (map[string]bool, bool) {
	if d.inspect == nil {
		return nil, false
	}
	files, err := d.inspect.ChangedFiles(ctx)
	if err != nil {
		log.Printf("[dispatch] warning: read working tree: %v; rollback limited to declared scopes", err)
		return nil, false
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f] = true
	}
	return seen, true
}

// changedSince returns paths changed during the batch, minus shipline's own
// bookkeeping files. Paths already dirty before the batch are not included.
func (d *Dispatcher) changedSince(ctx context.Context, before map[string]bool) []string {
	files, err := d.inspect.ChangedFiles(ctx)
	if err != nil {
		log.Printf("[dispatch] warning: read working tree: %v; rollback limited to declared scopes", err)
		return []string{}
	}
	changed := []string{}
	for _, f := range files {
		if before[f] || d.isLedger(f) || strings.HasPrefix(f, ".shipline/") {
			continue
		}
		changed = append(changed, f)
	}
	return changed
}

// isLedger reports whether the repo-relative path f is the ledger file.
func (d *Dispatcher) isLedger(f string) bool {
	p := d.ledger.Path()
	if d.workDir != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(d.workDir, p); err == nil {
			return filepath.ToSlash(rel) == f
		}
	}
	p = filepath.ToSlash(filepath.Clean(p))
	return p == f || strings.HasSuffix(p, "/"+f)
}

// rollbackPaths decides which paths a failed task's rollback covers: its
// declared scope plus paths changed during the batch that belong to it.
// A task alone in its batch owns every change. In a shared batch it owns the
// changes no sibling declared, as long as no sibling completed; otherwise
// those changes cannot be told apart and are left in place.
func rollbackPaths(task models.Task, siblings []models.Task, results []Result, changed []string) []string {
	paths := append([]string(nil), task.Scope...)
	if len(changed) == 0 {
		return paths
	}

	if len(siblings) == 1 {
		return mergePaths(paths, changed)
	}

	for i, s := range siblings {
		if s.ID != task.ID && !results[i].Failed() {
			var own []string
			for _, f := range changed {
				if inScope(f, task.Scope) {
					own = append(own, f)
				}
			}
			if len(own) < len(changed) {
				log.Printf("[dispatch] warning: %s shared its batch with completed tasks; undeclared changes left in place", task.ID)
			}
			return mergePaths(paths, own)
		}
	}

	var unclaimed []string
	for _, f := range changed {
		claimed := false
		for _, s := range siblings {
			if s.ID != task.ID && inScope(f, s.Scope) {
				claimed = true
				break
			}
		}
		if !claimed {
			unclaimed = append(unclaimed, f)
		}
	}
	return mergePaths(paths, unclaimed)
}

// inScope reports whether path equals or sits under one of the scope entries.
func inScope(path string, scope []string) bool {
	for _, s := range scope {
		s = strings.TrimSuffix(filepath.ToSlash(filepath.Clean(s)), "/")
		if path == s || strings.HasPrefix(path, s+"/") {
			return true
		}
	}
	return false
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, p := range append(append([]string(nil), a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// rollbackTask discards the working-tree changes under paths. With nothing
// attributable to the task, nothing is touched.
func (d *Dispatcher) rollbackTask(ctx context.Context, task models.Task, paths []string) string {
	if d.rollback == nil || len(paths) == 0 {
		log.Printf("[dispatch] warning: %s failed with no changes attributable to it, nothing rolled back", task.ID)
		return RollbackSkipped
	}
	d.debugLog("[dispatch] rolling back %s: %v", task.ID, paths)
	if err := d.rollback.RestorePaths(ctx, paths...); err != nil {
		log.Printf("[dispatch] warning: restore %s: %v", task.ID, err)
		return RollbackError
	}
	if err := d.rollback.CleanPaths(ctx, paths...); err != nil {
		log.Printf("[dispatch] warning: clean %s: %v", task.ID, err)
		return RollbackError
	}
	return RollbackDone
}

func (d *Dispatcher) recordFailure(task models.Task, res Result) {
	reason := "failed"
	if res.Err != nil {
		reason = res.Err.Error()
	}
	rec := ledger.Record{
		TaskID: task.ID,
		Status: models.TaskStatusFailed,
		Meta: map[string]string{
			ledger.KeyReason:   reason,
			ledger.KeyRollback: res.Rollback,
			ledger.KeyEvidence: res.Evidence,
		},
	}
	if err := d.ledger.Append(rec); err != nil {
		log.Printf("[dispatch] warning: record %s failure: %v", task.ID, err)
	}
}

// recordCompletion makes sure the ledger holds a completion record for the
// task. A record the worker appended itself is left as is.
func (d *Dispatcher) recordCompletion(ctx context.Context, task models.Task, res *Result) error {
	latest, err := d.ledger.Latest()
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	if rec, ok := latest[task.ID]; ok && rec.Status == models.TaskStatusCompleted {
		if res.Evidence == "" {
			res.Evidence = rec.Get(ledger.KeyEvidence)
		}
		if res.Commit == "" {
			res.Commit = rec.Get(ledger.KeyCommit)
		}
		return nil
	}

	if res.Commit == "" && d.inspect != nil {
		if commit, err := d.inspect.HeadCommit(ctx); err == nil {
			res.Commit = commit
		}
	}
	rec := ledger.Record{
		TaskID: task.ID,
		Status: models.TaskStatusCompleted,
		Meta: map[string]string{
			ledger.KeyEvidence: res.Evidence,
			ledger.KeyCoverage: res.Coverage,
			ledger.KeyCommit:   res.Commit,
		},
	}
	if err := d.ledger.Append(rec); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// blockedBy returns the failed tasks id's chain waits on.
func blockedBy(g *graph.ChainGraph, id string, failed []string) []string {
	var out []string
	for _, f := range failed {
		for _, dep := range g.Dependents(f) {
			if dep == id {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
