package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/shipline/internal/config"
)

func TestUpdateGitignore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(path, []byte("node_modules/\n.shipline/logs/"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := updateGitignore(dir); err != nil {
		t.Fatalf("updateGitignore: %v", err)
	}
	first, _ := os.ReadFile(path)
	got := string(first)
	if !strings.HasPrefix(got, "node_modules/\n.shipline/logs/\n") {
		t.Errorf("existing content not preserved:\n%s", got)
	}
	if strings.Count(got, ".shipline/logs/") != 1 {
		t.Errorf("duplicated entry:\n%s", got)
	}
	for _, want := range []string{".shipline/state.db*", ".shipline/signals/"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q:\n%s", want, got)
		}
	}

	if err := updateGitignore(dir); err != nil {
		t.Fatalf("second updateGitignore: %v", err)
	}
	second, _ := os.ReadFile(path)
	if string(second) != got {
		t.Errorf("second call changed the file:\n%s", second)
	}
}

func TestCreateProjectConfig(t *testing.T) {
	dir := t.TempDir()

	created, err := createProjectConfig(dir)
	if err != nil || !created {
		t.Fatalf("createProjectConfig() = %v, %v; want true, nil", created, err)
	}
	// The template is all comments, so it must load as defaults.
	cfg, err := config.LoadFromPath(filepath.Join(dir, config.ProjectConfigName))
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Batch.MaxSize != config.Default().Batch.MaxSize {
		t.Errorf("MaxSize = %d, want default", cfg.Batch.MaxSize)
	}

	created, err = createProjectConfig(dir)
	if err != nil || created {
		t.Errorf("second createProjectConfig() = %v, %v; want false, nil", created, err)
	}
}
