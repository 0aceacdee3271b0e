package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/shipline/internal/dispatch"
	iexec "github.com/ShayCichocki/shipline/internal/exec"
	"github.com/ShayCichocki/shipline/internal/orchestrator"
	"github.com/ShayCichocki/shipline/internal/signals"
	"github.com/ShayCichocki/shipline/pkg/models"
)

var (
	runTasksPath string
	runWait      bool
	runTUI       bool
	runModel     string
)

var runCmd = &cobra.Command{
	Use:   "run <feature>",
	Short: "Advance a feature's pipeline as far as it can go",
	Long: `Run the pipeline for a feature, resuming from its persisted state.

Each phase runs its configured command and quality gates, then completes
and advances to the next. The implement phase batches the feature's task
list and dispatches every batch to workers; tasks already recorded as
completed in the ledger are skipped.

A phase that failed in an earlier run is retried once. A manual gate stops
the run with exit code 0 until "shipline approve" (or "reject"); with --wait
the run blocks until the decision arrives instead.

Set SHIPLINE_DEBUG=1 to write a debug log to .shipline/logs.

Examples:
  shipline run 001-upload
  shipline run 001-upload --wait
  shipline run 001-upload --tasks docs/tasks.md --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runFeature,
}

func init() {
	runCmd.Flags().StringVar(&runTasksPath, "tasks", "", "Task list path (default specs/<feature>/tasks.md)")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "Block on manual gates until approved or rejected")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the interactive terminal UI")
	runCmd.Flags().StringVar(&runModel, "model", "", "Deployment model override: staging-prod, direct-prod, local-only")
}

func runFeature(cmd *cobra.Command, args []string) error {
	featureID := args[0]

	proj, err := openProject(runModel)
	if err != nil {
		return err
	}
	defer proj.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping after the current batch...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Close ends the event stream; each path below calls it once Run returns.
	orch := newOrchestrator(proj, featureID)

	var out orchestrator.Outcome
	if runTUI {
		out, err = runWithTUI(ctx, cancel, orch, featureID, phaseNames(proj))
	} else {
		done := make(chan struct{})
		go func() {
			printEvents(os.Stdout, orch.Events())
			close(done)
		}()
		out, err = orch.Run(ctx, featureID)
		orch.Close()
		<-done
	}

	printOutcome(os.Stdout, out)
	if err != nil {
		if errors.Is(err, orchestrator.ErrPhaseFailed) {
			// Already reported by printOutcome.
			return errSilentFailure
		}
		return err
	}
	return nil
}

// newOrchestrator wires the configured worker, batcher, and paths.
func newOrchestrator(proj *project, featureID string) *orchestrator.Orchestrator {
	runner := iexec.NewRunner()
	worker := &featureWorker{proj: proj, runner: runner}

	opts := []orchestrator.Option{
		orchestrator.WithBatcher(proj.batcher()),
		orchestrator.WithStrategies(proj.cfg.Strategies()),
		orchestrator.WithExecRunner(runner),
		orchestrator.WithTasksPath(proj.tasksPath),
		orchestrator.WithLedgerPath(proj.ledgerPath),
		orchestrator.WithPhaseTimeout(proj.cfg.Timeouts.Phase),
		orchestrator.WithCheckTimeout(proj.cfg.Timeouts.Check),
	}
	if os.Getenv("SHIPLINE_DEBUG") != "" {
		opts = append(opts, orchestrator.WithLogger(orchestrator.NewDebugLoggerForFeature(proj.root, featureID)))
	}
	if runWait {
		opts = append(opts, orchestrator.WithGateWaiter(signals.NewWatcher(proj.root)))
	}

	return orchestrator.New(orchestrator.RequiredConfig{
		RepoPath: proj.root,
		Store:    proj.store,
		Pipeline: proj.def,
		Worker:   worker,
	}, opts...)
}

// featureWorker runs each task through a CommandWorker bound to the
// feature's ledger.
type featureWorker struct {
	proj   *project
	runner iexec.CommandRunner
}

func (w *featureWorker) Invoke(ctx context.Context, task models.Task, ictx dispatch.InvokeContext) dispatch.Result {
	cw := dispatch.NewCommandWorker(w.runner, w.proj.root, w.proj.ledgerPath(ictx.FeatureID))
	cw.SetTimeout(w.proj.cfg.Timeouts.Task)
	return cw.Invoke(ctx, task, ictx)
}

func phaseNames(proj *project) []string {
	phases := proj.def.Pipeline()
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return names
}
