// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
// Workers, quality checks and git all go through it so tests can substitute a fake.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "sh -c" with extra
	// environment entries ("KEY=value") appended to the process environment.
	RunShell(ctx context.Context, workDir string, command string, env ...string) (output []byte, err error)
}
