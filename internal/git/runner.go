package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/shipline/internal/exec"
)

// ExecRunner implements Runner on top of an exec.CommandRunner.
type ExecRunner struct {
	repoPath string
	cmd      exec.CommandRunner
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return NewRunnerWith(repoPath, exec.NewRunner())
}

// NewRunnerWith creates a git runner that executes through cmd.
func NewRunnerWith(repoPath string, cmd exec.CommandRunner) *ExecRunner {
	return &ExecRunner{repoPath: repoPath, cmd: cmd}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.cmd.Run(ctx, r.repoPath, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, args...)
}

// RestorePaths resets tracked files under paths to HEAD, both index and
// working tree. Paths git does not know about are skipped.
func (r *ExecRunner) RestorePaths(ctx context.Context, paths ...string) error {
	tracked, err := r.tracked(ctx, paths)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		return nil
	}
	args := append([]string{"checkout", "HEAD", "--"}, tracked...)
	_, err = r.run(ctx, args...)
	return err
}

// CleanPaths removes untracked files and directories under paths.
func (r *ExecRunner) CleanPaths(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"clean", "-fd", "--"}, paths...)
	_, err := r.run(ctx, args...)
	return err
}

// tracked filters paths down to those present in HEAD.
func (r *ExecRunner) tracked(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := append([]string{"ls-tree", "-r", "--name-only", "HEAD", "--"}, paths...)
	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// HeadCommit returns the abbreviated hash of HEAD.
func (r *ExecRunner) HeadCommit(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--short", "HEAD")
}

// Status returns the output of git status --porcelain, listing untracked
// files individually rather than by directory. Leading spaces are
// significant in porcelain output, so only trailing newlines are trimmed.
func (r *ExecRunner) Status(ctx context.Context) (string, error) {
	out, err := r.cmd.Run(ctx, r.repoPath, "git", "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return "", fmt.Errorf("git status: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// ChangedFiles returns paths with uncommitted changes, tracked or not.
func (r *ExecRunner) ChangedFiles(ctx context.Context) ([]string, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range splitLines(status) {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		// Renames are reported as "old -> new".
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, path)
	}
	return files, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
