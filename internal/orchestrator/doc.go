// Package orchestrator drives one feature through its delivery pipeline.
//
// Each invocation loads the feature's WorkflowState, asks the resume engine
// for the next action and applies it until the pipeline is done, suspends on
// a manual gate, or a phase fails:
//
//	RunPhase     start the phase, run its command and checks, complete it
//	ResumeBatch  dispatch pending implement tasks batch by batch
//	AwaitGate    return (or, with a waiter, block until approve/reject)
//	RetryPhase   re-enter a phase that failed in an earlier invocation
//	Advance      move past a completed phase
//
// The state is only mutated on the goroutine calling Run; workers report
// back through results and the completion ledger.
//
// Example usage:
//
//	orch := orchestrator.New(orchestrator.RequiredConfig{
//		RepoPath: root,
//		Store:    store,
//		Pipeline: def,
//		Worker:   dispatch.NewCommandWorker(exec.NewRunner(), root, ledgerPath),
//	}, orchestrator.WithStrategies(cfg.Workers))
//	outcome, err := orch.Run(ctx, "upload")
package orchestrator
