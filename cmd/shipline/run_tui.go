package main

import (
	"context"
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/shipline/internal/orchestrator"
	"github.com/ShayCichocki/shipline/internal/tui"
)

// runWithTUI runs the orchestrator with the interactive TUI. The TUI stays
// open after the run returns so the result can be read; q exits.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, featureID string, phases []string) (out orchestrator.Outcome, retErr error) {
	// Suppress log output while TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	program, _ := tui.NewProgram(featureID, phases)

	forwarded := make(chan struct{})
	go func() {
		forwardEventsToTUI(program, orch.Events())
		close(forwarded)
	}()

	type result struct {
		out orchestrator.Outcome
		err error
	}
	orchDone := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				orchDone <- result{err: fmt.Errorf("PANIC in orchestrator: %v", r)}
			}
		}()
		o, err := orch.Run(ctx, featureID)
		orchDone <- result{out: o, err: err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case r := <-orchDone:
		orch.Close()
		<-forwarded
		program.Send(tui.DoneMsg{Success: r.err == nil, Message: outcomeSummary(r.out, r.err)})
		// Wait for user to quit TUI (press q) so they can see the result
		if err := <-tuiDone; err != nil && r.err == nil {
			return r.out, err
		}
		return r.out, r.err

	case err := <-tuiDone:
		// The user quit while the run was in progress; stop it and wait.
		cancel()
		r := <-orchDone
		orch.Close()
		<-forwarded
		if err != nil {
			return r.out, err
		}
		return r.out, r.err
	}
}

// forwardEventsToTUI converts orchestrator events to TUI messages.
func forwardEventsToTUI(program *tea.Program, events <-chan orchestrator.OrchestratorEvent) {
	for event := range events {
		errStr := ""
		if event.Error != nil {
			errStr = event.Error.Error()
		}
		program.Send(tui.EventMsg{
			Type:      string(event.Type),
			Phase:     string(event.Phase),
			TaskID:    event.TaskID,
			TaskTitle: event.TaskTitle,
			Domain:    string(event.Domain),
			Batch:     event.Batch,
			Batches:   event.Batches,
			Gate:      event.Gate,
			Message:   event.Message,
			Error:     errStr,
			Timestamp: event.Timestamp,
			Duration:  event.Duration,
		})
	}
}

func outcomeSummary(out orchestrator.Outcome, err error) string {
	switch {
	case err != nil && out.Reason != "":
		return fmt.Sprintf("%s failed: %s", out.Phase, out.Reason)
	case err != nil:
		return err.Error()
	case out.Kind == orchestrator.OutcomeAwaitingGate && out.Gate != nil:
		return fmt.Sprintf("paused at %s: shipline approve %s %s", out.Phase, out.FeatureID, out.Gate.Name)
	default:
		return "all phases completed"
	}
}
