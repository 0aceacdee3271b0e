package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/shipline/internal/dispatch"
	"github.com/ShayCichocki/shipline/internal/orchestrator"
	"github.com/ShayCichocki/shipline/pkg/models"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgCyan)
	dimColor  = color.New(color.Faint)
	boldColor = color.New(color.Bold)
)

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// printEvents renders orchestrator events as console lines until the
// channel closes.
func printEvents(w io.Writer, events <-chan orchestrator.OrchestratorEvent) {
	for ev := range events {
		if line := formatEvent(ev); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func formatEvent(ev orchestrator.OrchestratorEvent) string {
	switch ev.Type {
	case orchestrator.EventPhaseStarted:
		line := infoColor.Sprint("▶ ") + boldColor.Sprint(ev.Phase)
		if ev.Message != "" {
			line += dimColor.Sprint(" (" + ev.Message + ")")
		}
		return line
	case orchestrator.EventPhaseCompleted:
		return fmt.Sprintf("%s %s %s", okColor.Sprint("✓"), ev.Phase, dimColor.Sprint(ev.Duration.Round(1e6)))
	case orchestrator.EventPhaseFailed:
		return fmt.Sprintf("%s %s: %s", failColor.Sprint("✗"), ev.Phase, ev.Message)
	case orchestrator.EventCheckCompleted:
		c := okColor
		if ev.Message != "pass" {
			c = failColor
		}
		return fmt.Sprintf("  %s check %s: %s", c.Sprint("•"), ev.Gate, c.Sprint(ev.Message))
	case orchestrator.EventBatchStarted:
		return fmt.Sprintf("  %s %s",
			infoColor.Sprintf("batch %d/%d [%s]", ev.Batch, ev.Batches, ev.Domain),
			ev.Message)
	case orchestrator.EventTaskStarted:
		return dimColor.Sprintf("    → %s %s", ev.TaskID, ev.TaskTitle)
	case orchestrator.EventTaskCompleted:
		line := fmt.Sprintf("    %s %s", okColor.Sprint("✓"), ev.TaskID)
		if ev.Message != "" {
			line += dimColor.Sprint(" " + firstLine(ev.Message))
		}
		return line
	case orchestrator.EventTaskFailed:
		line := fmt.Sprintf("    %s %s", failColor.Sprint("✗"), ev.TaskID)
		if ev.Error != nil {
			line += ": " + firstLine(ev.Error.Error())
		}
		if ev.Message != "" {
			line += dimColor.Sprint(" (" + ev.Message + ")")
		}
		return line
	case orchestrator.EventTaskBlocked:
		return fmt.Sprintf("    %s %s %s", warnColor.Sprint("⊘"), ev.TaskID, ev.Message)
	case orchestrator.EventTaskListWarning:
		return fmt.Sprintf("  %s tasks.md: %s", warnColor.Sprint("!"), ev.Message)
	case orchestrator.EventGateAwaiting:
		return fmt.Sprintf("%s %s awaiting approval of gate %s", warnColor.Sprint("⏸"), ev.Phase, boldColor.Sprint(ev.Gate))
	case orchestrator.EventRunDone:
		return okColor.Sprint("✓ ") + ev.Message
	}
	return ""
}

// printOutcome prints where the invocation stopped and the evidence
// available for it.
func printOutcome(w io.Writer, out orchestrator.Outcome) {
	fmt.Fprintln(w)
	switch out.Kind {
	case orchestrator.OutcomeDone:
		fmt.Fprintf(w, "%s %s: all phases completed\n", okColor.Sprint("✓"), out.FeatureID)

	case orchestrator.OutcomeAwaitingGate:
		fmt.Fprintf(w, "%s %s paused at %s\n", warnColor.Sprint("⏸"), out.FeatureID, boldColor.Sprint(out.Phase))
		if out.Gate != nil {
			fmt.Fprintf(w, "  gate %s requested %s\n", out.Gate.Name, out.Gate.RequestedAt.Local().Format("2006-01-02 15:04"))
			fmt.Fprintf(w, "  approve: shipline approve %s %s\n", out.FeatureID, out.Gate.Name)
			fmt.Fprintf(w, "  reject:  shipline reject %s %s --reason \"...\"\n", out.FeatureID, out.Gate.Name)
		}

	case orchestrator.OutcomeFailed:
		phase := out.Phase
		fmt.Fprintf(w, "%s %s failed at %s\n", failColor.Sprint("✗"), out.FeatureID, boldColor.Sprint(phase))
		if out.Reason != "" {
			fmt.Fprintf(w, "  reason: %s\n", out.Reason)
		}
		if out.State != nil {
			printQualityGates(w, out.State, phase, true)
		}
		if out.Report != nil {
			printReport(w, out.Report)
		}
		fmt.Fprintf(w, "  fix the cause and run: shipline run %s\n", out.FeatureID)
	}
}

// printQualityGates lists the recorded quality gates of a phase. With
// failedOnly, passing gates are skipped.
func printQualityGates(w io.Writer, st *models.WorkflowState, phase models.Phase, failedOnly bool) {
	keys := make([]string, 0, len(st.QualityGates))
	for k, qg := range st.QualityGates {
		if qg.Phase == phase && (!failedOnly || !qg.Passed) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		qg := st.QualityGates[k]
		mark := okColor.Sprint("pass")
		if !qg.Passed {
			mark = failColor.Sprint("fail")
		}
		fmt.Fprintf(w, "  quality gate %s: %s\n", qg.Name, mark)
		if qg.Detail != "" {
			for _, line := range strings.Split(strings.TrimRight(qg.Detail, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", dimColor.Sprint(line))
			}
		}
	}
}

// printReport lists failed and blocked tasks of a dispatch.
func printReport(w io.Writer, r *dispatch.Report) {
	for _, res := range r.Results {
		if !res.Failed() {
			continue
		}
		fmt.Fprintf(w, "  task %s: %s", res.TaskID, failColor.Sprint("failed"))
		if res.Rollback != "" {
			fmt.Fprintf(w, " (rollback %s)", res.Rollback)
		}
		fmt.Fprintln(w)
		if res.Err != nil {
			fmt.Fprintf(w, "    %s\n", res.Err)
		}
		if res.Evidence != "" {
			fmt.Fprintf(w, "    evidence: %s\n", dimColor.Sprint(res.Evidence))
		}
	}
	if len(r.Blocked) > 0 {
		fmt.Fprintf(w, "  blocked: %s\n", strings.Join(r.Blocked, " "))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
