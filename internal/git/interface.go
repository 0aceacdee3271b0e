// Package git provides an interface for the git operations the orchestrator needs.
package git

import "context"

// RollbackOperations discards a task's working-tree changes.
type RollbackOperations interface {
	// RestorePaths resets tracked files under paths to HEAD.
	RestorePaths(ctx context.Context, paths ...string) error
	// CleanPaths removes untracked files under paths.
	CleanPaths(ctx context.Context, paths ...string) error
}

// InspectOperations reads repository state.
type InspectOperations interface {
	// HeadCommit returns the abbreviated hash of HEAD.
	HeadCommit(ctx context.Context) (string, error)
	// Status returns the output of git status --porcelain, untracked files listed individually.
	Status(ctx context.Context) (string, error)
	// ChangedFiles returns tracked and untracked paths that differ from HEAD.
	ChangedFiles(ctx context.Context) ([]string, error)
}

// Runner defines the complete interface for git operations.
// Consumers should prefer the focused interfaces when possible.
type Runner interface {
	RollbackOperations
	InspectOperations
	// Run executes an arbitrary git command with the given arguments.
	Run(ctx context.Context, args ...string) (string, error)
}
