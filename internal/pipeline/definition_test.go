package pipeline

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/shipline/pkg/models"
)

func TestDefault(t *testing.T) {
	def := Default()

	if def.DeploymentModel != models.DeployStagingProd || def.Clarify {
		t.Errorf("Default = %s clarify=%v", def.DeploymentModel, def.Clarify)
	}
	if got := def.RequiredQualityGates(models.PhaseImplement); !reflect.DeepEqual(got, []string{TasksCompleteGate}) {
		t.Errorf("implement gates = %v", got)
	}
	if len(def.Checks(models.PhaseImplement)) != 0 {
		t.Error("builtin gate should not be a runnable check")
	}
	want := []models.Phase{models.PhasePreview, models.PhaseValidateStaging}
	if got := def.ManualPhases(); !reflect.DeepEqual(got, want) {
		t.Errorf("ManualPhases = %v, want %v", got, want)
	}
	if def.RequiresApproval(models.PhasePlan) {
		t.Error("plan should not be manual")
	}
}

func TestLoad_MissingFileIsDefault(t *testing.T) {
	def, err := Load(filepath.Join(t.TempDir(), "pipeline.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(def, Default()) {
		t.Errorf("Load(missing) = %+v, want Default", def)
	}
}

func TestLoad_Overlay(t *testing.T) {
	path := ProjectPath(t.TempDir())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := `
deployment_model: direct-prod
clarify: true
phases:
  optimize:
    command: make bench
    quality_gates:
      - name: lint
        command: golangci-lint run
      - name: perf
        command: ./scripts/perf.sh
        required: false
  preview:
    manual: false
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if def.DeploymentModel != models.DeployDirectProd || !def.Clarify {
		t.Errorf("top-level settings not applied: %+v", def)
	}
	if got := def.RequiredQualityGates(models.PhaseOptimize); !reflect.DeepEqual(got, []string{"lint"}) {
		t.Errorf("optimize required = %v", got)
	}
	if len(def.Checks(models.PhaseOptimize)) != 2 {
		t.Errorf("optimize checks = %v", def.Checks(models.PhaseOptimize))
	}
	if def.Phase(models.PhaseOptimize).Command != "make bench" {
		t.Errorf("optimize command = %q", def.Phase(models.PhaseOptimize).Command)
	}
	if !def.RequiresApproval(models.PhasePreview) {
		t.Error("preview must stay manual")
	}
	if got := def.RequiredQualityGates(models.PhaseImplement); !reflect.DeepEqual(got, []string{TasksCompleteGate}) {
		t.Errorf("default implement gate lost: %v", got)
	}

	pipe := def.Pipeline()
	if pipe[1] != models.PhaseClarify {
		t.Errorf("pipeline = %v, want clarify second", pipe)
	}
	for _, p := range pipe {
		if p == models.PhaseDeployStaging || p == models.PhaseValidateStaging {
			t.Errorf("direct-prod pipeline contains %s", p)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad model", "deployment_model: canary\n", "deployment model"},
		{"bad phase", "phases:\n  review: {}\n", "unknown phase"},
		{"gate without command", "phases:\n  optimize:\n    quality_gates:\n      - name: lint\n", "needs a command"},
		{"duplicate gate", "phases:\n  optimize:\n    quality_gates:\n      - {name: a, command: x}\n      - {name: a, command: y}\n", "duplicate"},
		{"unnamed gate", "phases:\n  optimize:\n    quality_gates:\n      - {command: x}\n", "without a name"},
		{"not yaml", "phases: [", "parse pipeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	def := Default()
	clarify := true
	out, err := def.Apply(Overrides{
		DeploymentModel: models.DeployLocalOnly,
		Clarify:         &clarify,
		Commands:        map[models.Phase]string{models.PhaseSpec: "make spec"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.DeploymentModel != models.DeployLocalOnly || !out.Clarify {
		t.Errorf("Apply = %+v", out)
	}
	if out.Phase(models.PhaseSpec).Command != "make spec" {
		t.Errorf("spec command = %q", out.Phase(models.PhaseSpec).Command)
	}
	if def.Phase(models.PhaseSpec).Command != "" || def.DeploymentModel != models.DeployStagingProd {
		t.Error("Apply mutated the receiver")
	}
	if _, err := def.Apply(Overrides{DeploymentModel: "canary"}); err == nil {
		t.Error("expected error for unknown deployment model")
	}
}
