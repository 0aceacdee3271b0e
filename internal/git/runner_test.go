package git

import (
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

func initRepo(t *testing.T) (string, *ExecRunner) {
	t.Helper()
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	r := NewRunner(dir)
	ctx := context.Background()

	steps := [][]string{
		{"init", "-q"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	}
	for _, args := range steps {
		if _, err := r.Run(ctx, args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	writeFile(t, filepath.Join(dir, "src", "app.go"), "package app\n")
	writeFile(t, filepath.Join(dir, "README.md"), "readme\n")
	if _, err := r.Run(ctx, "add", "."); err != nil {
		t.Fatalf("git add: %v", err)
	}
	if _, err := r.Run(ctx, "commit", "-q", "-m", "init"); err != nil {
		t.Fatalf("git commit: %v", err)
	}
	return dir, r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRestoreAndCleanPaths(t *testing.T) {
	dir, r := initRepo(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(dir, "src", "app.go"), "package app\n// broken\n")
	writeFile(t, filepath.Join(dir, "src", "new.go"), "package app\n")
	writeFile(t, filepath.Join(dir, "README.md"), "sibling change\n")

	if err := r.RestorePaths(ctx, "src/app.go", "src/new.go"); err != nil {
		t.Fatalf("RestorePaths: %v", err)
	}
	if err := r.CleanPaths(ctx, "src/app.go", "src/new.go"); err != nil {
		t.Fatalf("CleanPaths: %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(dir, "src", "app.go"))
	if string(got) != "package app\n" {
		t.Errorf("app.go = %q, want restored content", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "src", "new.go")); !os.IsNotExist(err) {
		t.Error("new.go should have been removed")
	}

	changed, err := r.ChangedFiles(ctx)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if !reflect.DeepEqual(changed, []string{"README.md"}) {
		t.Errorf("ChangedFiles = %v, want only the sibling's README.md", changed)
	}
}

func TestHeadCommit(t *testing.T) {
	_, r := initRepo(t)
	commit, err := r.HeadCommit(context.Background())
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if len(commit) < 7 {
		t.Errorf("HeadCommit = %q, want abbreviated hash", commit)
	}
}

func TestChangedFiles_ListsUntrackedFilesIndividually(t *testing.T) {
	dir, r := initRepo(t)
	writeFile(t, filepath.Join(dir, "src", "feature", "a.go"), "package feature\n")
	writeFile(t, filepath.Join(dir, "src", "feature", "b.go"), "package feature\n")

	changed, err := r.ChangedFiles(context.Background())
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	want := []string{"src/feature/a.go", "src/feature/b.go"}
	if !reflect.DeepEqual(changed, want) {
		t.Errorf("ChangedFiles = %v, want %v", changed, want)
	}
}
