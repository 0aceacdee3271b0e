package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/shipline/internal/exec"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// workerReport is the JSON line a worker command may print last.
type workerReport struct {
	Status   string `json:"status"`
	Evidence string `json:"evidence"`
	Coverage string `json:"coverage"`
	Commit   string `json:"commit"`
	Reason   string `json:"reason"`
}

// CommandWorker runs the domain strategy's shell command for each task.
//
// The task is described to the command through SHIPLINE_* environment
// variables. If the last JSON object line of its output decodes to a report,
// that report decides the result; otherwise the exit status does.
type CommandWorker struct {
	cmd        exec.CommandRunner
	workDir    string
	ledgerPath string
	timeout    time.Duration
}

// NewCommandWorker creates a worker running commands in workDir.
func NewCommandWorker(cmd exec.CommandRunner, workDir, ledgerPath string) *CommandWorker {
	return &CommandWorker{
		cmd:        cmd,
		workDir:    workDir,
		ledgerPath: ledgerPath,
	}
}

// SetTimeout bounds each invocation. Zero or less means no deadline, which
// is the default: a hung worker is left running for someone to inspect.
func (w *CommandWorker) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	w.timeout = d
}

// Invoke runs one task.
func (w *CommandWorker) Invoke(ctx context.Context, task models.Task, ictx InvokeContext) Result {
	res := Result{TaskID: task.ID, Status: models.TaskStatusFailed}
	if ictx.Strategy.Command == "" {
		res.Err = fmt.Errorf("no worker command for domain %s", task.Domain)
		return res
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	out, err := w.cmd.RunShell(ctx, w.workDir, ictx.Strategy.Command, w.env(task, ictx)...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Err = fmt.Errorf("worker timed out after %s", w.timeout)
		return res
	}

	if rep, ok := lastReport(out); ok {
		res.Evidence = rep.Evidence
		res.Coverage = rep.Coverage
		res.Commit = rep.Commit
		if rep.Status == string(models.TaskStatusCompleted) && err == nil {
			res.Status = models.TaskStatusCompleted
			return res
		}
		reason := rep.Reason
		if reason == "" && err != nil {
			reason = err.Error()
		}
		if reason == "" {
			reason = "worker reported " + rep.Status
		}
		res.Err = errors.New(reason)
		return res
	}

	if err != nil {
		res.Err = fmt.Errorf("worker exited with status %d: %s", exec.ExitCode(err), tail(out, 5))
		return res
	}
	res.Status = models.TaskStatusCompleted
	res.Evidence = tail(out, 1)
	return res
}

func (w *CommandWorker) env(task models.Task, ictx InvokeContext) []string {
	return []string{
		"SHIPLINE_FEATURE=" + ictx.FeatureID,
		"SHIPLINE_TASK_ID=" + task.ID,
		"SHIPLINE_TASK_DESCRIPTION=" + task.Description,
		"SHIPLINE_TASK_DOMAIN=" + string(task.Domain),
		"SHIPLINE_TDD_PHASE=" + string(task.TDDPhase),
		"SHIPLINE_TASK_REF=" + task.Ref,
		"SHIPLINE_SCOPE=" + strings.Join(task.Scope, ","),
		"SHIPLINE_REUSE=" + strings.Join(ictx.Reuse, ","),
		"SHIPLINE_PATTERNS=" + strings.Join(ictx.PatternHints, "\n"),
		"SHIPLINE_AGENT=" + ictx.Strategy.Agent,
		"SHIPLINE_LEDGER=" + w.ledgerPath,
	}
}

// lastReport finds the last line of out that decodes as a worker report.
func lastReport(out []byte) (workerReport, bool) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var rep workerReport
		if err := json.Unmarshal(line, &rep); err == nil && rep.Status != "" {
			return rep, true
		}
	}
	return workerReport{}, false
}

// tail returns the last n non-empty lines of out.
func tail(out []byte, n int) string {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

var _ Worker = (*CommandWorker)(nil)
