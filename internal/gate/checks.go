package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/shipline/internal/exec"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// CheckResult represents the outcome of a quality gate command.
type CheckResult int

const (
	// CheckPass indicates the command exited 0.
	CheckPass CheckResult = iota
	// CheckFail indicates the command ran and exited non-zero.
	CheckFail
	// CheckError indicates the command could not run or timed out.
	CheckError
)

// String returns the string representation of a CheckResult.
func (r CheckResult) String() string {
	switch r {
	case CheckPass:
		return "pass"
	case CheckFail:
		return "fail"
	case CheckError:
		return "error"
	default:
		return "unknown"
	}
}

// CheckOutput contains the result of running a single quality gate.
type CheckOutput struct {
	// Gate is the name of the quality gate.
	Gate string
	// Result indicates whether the gate passed, failed or errored.
	Result CheckResult
	// Output contains combined stdout/stderr from the gate command.
	Output string
	// Duration is how long the gate took to run.
	Duration time.Duration
}

// QualityGate converts the output to a persisted gate record.
func (o CheckOutput) QualityGate(phase models.Phase, at time.Time) models.QualityGate {
	return models.QualityGate{
		Name:      o.Gate,
		Phase:     phase,
		Passed:    o.Result == CheckPass,
		Timestamp: at,
		Detail:    summarize(o),
	}
}

// maxDetailLines bounds the output tail kept in a gate's detail.
const maxDetailLines = 20

// summarize keeps the result and the tail of the output.
func summarize(o CheckOutput) string {
	lines := strings.Split(strings.TrimSpace(o.Output), "\n")
	if len(lines) > maxDetailLines {
		lines = append([]string{fmt.Sprintf("... (%d lines omitted)", len(lines)-maxDetailLines)}, lines[len(lines)-maxDetailLines:]...)
	}
	detail := fmt.Sprintf("%s in %s", o.Result, o.Duration.Round(time.Millisecond))
	if tail := strings.TrimSpace(strings.Join(lines, "\n")); tail != "" {
		detail += "\n" + tail
	}
	return detail
}

// Checks runs the command-backed quality gates of a phase.
type Checks struct {
	cmd     exec.CommandRunner
	workDir string
	timeout time.Duration
}

// NewChecks creates a runner for the given work directory.
func NewChecks(cmd exec.CommandRunner, workDir string) *Checks {
	return &Checks{
		cmd:     cmd,
		workDir: workDir,
		timeout: 10 * time.Minute,
	}
}

// SetTimeout sets the timeout for each individual gate.
func (c *Checks) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Run runs every check in order. All checks run even after a failure so the
// report shows every problem at once.
func (c *Checks) Run(ctx context.Context, checks []pipeline.Check) []CheckOutput {
	outputs := make([]CheckOutput, 0, len(checks))
	for _, check := range checks {
		outputs = append(outputs, c.runOne(ctx, check))
	}
	return outputs
}

// runOne executes a check's command and classifies the result.
func (c *Checks) runOne(ctx context.Context, check pipeline.Check) CheckOutput {
	output := CheckOutput{Gate: check.Name}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.cmd.RunShell(ctx, c.workDir, check.Command)
	output.Duration = time.Since(start)
	output.Output = string(out)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		output.Result = CheckError
		output.Output = "Command timed out: " + output.Output
	case err == nil:
		output.Result = CheckPass
	case exec.ExitCode(err) > 0:
		output.Result = CheckFail
	default:
		output.Result = CheckError
		output.Output = "Error running command: " + err.Error() + "\n" + output.Output
	}
	return output
}
