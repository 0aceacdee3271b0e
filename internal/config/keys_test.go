package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		KeyBatchMaxSize:    "SHIPLINE_BATCH_MAX_SIZE",
		KeyPipelineClarify: "SHIPLINE_PIPELINE_CLARIFY",
		KeyTimeoutsCheck:   "SHIPLINE_TIMEOUTS_CHECK",
	}
	for key, want := range tests {
		if got := EnvName(key); got != want {
			t.Errorf("EnvName(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestValue(t *testing.T) {
	cfg := Default()
	cfg.Phases = map[string]PhaseConfig{"plan": {Command: "make plan"}}

	tests := []struct {
		key  string
		want string
	}{
		{KeyBatchMaxSize, "3"},
		{KeyStateDriver, "sqlite"},
		{KeyTimeoutsPhase, "30m0s"},
		{KeyPipelineClarify, ""},
		{"phases.plan.command", "make plan"},
		{"BATCH.MAX_SIZE", "3"},
	}
	for _, tt := range tests {
		got, err := Value(cfg, tt.key)
		if err != nil {
			t.Errorf("Value(%q): %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Value(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	if _, err := Value(cfg, "anthropic.api_key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(Values(Default()))
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ProjectConfigName)

	if err := Set(path, KeyBatchMaxSize, "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set(path, "phases.optimize.command", "make bench"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Batch.MaxSize != 2 {
		t.Errorf("max size = %d, want 2", cfg.Batch.MaxSize)
	}
	if cfg.Phases["optimize"].Command != "make bench" {
		t.Errorf("optimize command = %q", cfg.Phases["optimize"].Command)
	}

	err = Set(path, KeyStateDriver, "postgres")
	if err == nil || !strings.Contains(err.Error(), KeyStateDriver) {
		t.Errorf("Set(invalid) error = %v", err)
	}
	cfg, err = LoadFromPath(path)
	if err != nil || cfg.State.Driver != "sqlite" {
		t.Errorf("invalid value was written: %v %+v", err, cfg)
	}
}
