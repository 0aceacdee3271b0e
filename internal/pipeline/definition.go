// Package pipeline loads the phase definition: which phases run, which are
// manual, which quality gates guard them and which commands do their work.
package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// TasksCompleteGate is the built-in implement gate the orchestrator records
// after dispatch: it passes only when every task completed.
const TasksCompleteGate = "tasks-complete"

//go:embed default.yaml
var defaultYAML []byte

// manualPhases are manual by vocabulary and cannot be made automatic.
var manualPhases = map[models.Phase]bool{
	models.PhasePreview:         true,
	models.PhaseValidateStaging: true,
}

// Check is one quality gate of a phase.
type Check struct {
	// Name identifies the gate within its phase.
	Name string `yaml:"name"`
	// Command is run through the shell; exit status 0 passes.
	Command string `yaml:"command,omitempty"`
	// Required gates must be recorded before the phase can complete.
	// Defaults to true.
	Required *bool `yaml:"required,omitempty"`
	// Builtin gates are recorded by the engine rather than run.
	Builtin bool `yaml:"builtin,omitempty"`
}

// IsRequired reports whether the gate must be present for completion.
func (c Check) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// PhaseSpec describes one phase.
type PhaseSpec struct {
	// Command performs the phase's work. Empty means the work happens
	// outside the engine and the phase only runs its checks.
	Command string `yaml:"command,omitempty"`
	// Manual phases wait for approve/reject.
	Manual bool `yaml:"manual,omitempty"`
	// QualityGates are ANDed to decide completion.
	QualityGates []Check `yaml:"quality_gates,omitempty"`
}

// Definition is a complete pipeline definition.
type Definition struct {
	DeploymentModel models.DeploymentModel     `yaml:"deployment_model"`
	Clarify         bool                       `yaml:"clarify"`
	Phases          map[models.Phase]PhaseSpec `yaml:"phases"`
}

// ProjectPath returns the pipeline file location for a project.
func ProjectPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".shipline", "pipeline.yaml")
}

// Default returns the built-in definition.
func Default() *Definition {
	def, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("pipeline: invalid built-in definition: %v", err))
	}
	return def
}

// Parse decodes a definition document without merging defaults.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	if def.Phases == nil {
		def.Phases = make(map[models.Phase]PhaseSpec)
	}
	if err := def.normalize(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads the definition at path and overlays it on Default. A missing
// file yields Default.
func Load(path string) (*Definition, error) {
	def := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	user, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.overlay(user)
	if err := def.normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// overlay replaces top-level settings and whole phase entries present in o.
func (d *Definition) overlay(o *Definition) {
	if o.DeploymentModel != "" {
		d.DeploymentModel = o.DeploymentModel
	}
	if o.Clarify {
		d.Clarify = true
	}
	for p, spec := range o.Phases {
		d.Phases[p] = spec
	}
}

// normalize validates the definition and applies vocabulary rules.
func (d *Definition) normalize() error {
	if d.DeploymentModel == "" {
		d.DeploymentModel = models.DeployStagingProd
	}
	if !d.DeploymentModel.Valid() {
		return fmt.Errorf("unknown deployment model %q", d.DeploymentModel)
	}
	for p, spec := range d.Phases {
		if !p.Valid() {
			return fmt.Errorf("unknown phase %q", p)
		}
		seen := make(map[string]bool)
		for _, c := range spec.QualityGates {
			if c.Name == "" {
				return fmt.Errorf("phase %s: quality gate without a name", p)
			}
			if seen[c.Name] {
				return fmt.Errorf("phase %s: duplicate quality gate %q", p, c.Name)
			}
			seen[c.Name] = true
			if !c.Builtin && c.Command == "" {
				return fmt.Errorf("phase %s: quality gate %q needs a command", p, c.Name)
			}
		}
		if manualPhases[p] {
			spec.Manual = true
			d.Phases[p] = spec
		}
	}
	for p := range manualPhases {
		if _, ok := d.Phases[p]; !ok {
			d.Phases[p] = PhaseSpec{Manual: true}
		}
	}
	return nil
}

// Overrides are settings taken from configuration rather than the pipeline file.
type Overrides struct {
	DeploymentModel models.DeploymentModel
	Clarify         *bool
	Commands        map[models.Phase]string
}

// Apply returns a copy of d with the overrides applied.
func (d *Definition) Apply(o Overrides) (*Definition, error) {
	c := &Definition{
		DeploymentModel: d.DeploymentModel,
		Clarify:         d.Clarify,
		Phases:          make(map[models.Phase]PhaseSpec, len(d.Phases)),
	}
	for p, spec := range d.Phases {
		spec.QualityGates = append([]Check(nil), spec.QualityGates...)
		c.Phases[p] = spec
	}
	if o.DeploymentModel != "" {
		c.DeploymentModel = o.DeploymentModel
	}
	if o.Clarify != nil {
		c.Clarify = *o.Clarify
	}
	for p, cmd := range o.Commands {
		spec := c.Phases[p]
		spec.Command = cmd
		c.Phases[p] = spec
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Pipeline returns the ordered phases for the definition's deployment model.
func (d *Definition) Pipeline() []models.Phase {
	return models.PipelinePhases(d.DeploymentModel, d.Clarify)
}

// Phase returns the spec for p; phases not listed have no command and no gates.
func (d *Definition) Phase(p models.Phase) PhaseSpec {
	return d.Phases[p]
}

// Checks returns the command-backed quality gates for p.
func (d *Definition) Checks(p models.Phase) []Check {
	var out []Check
	for _, c := range d.Phases[p].QualityGates {
		if !c.Builtin {
			out = append(out, c)
		}
	}
	return out
}

// RequiredQualityGates lists gates that must be recorded before p completes.
func (d *Definition) RequiredQualityGates(p models.Phase) []string {
	var names []string
	for _, c := range d.Phases[p].QualityGates {
		if c.IsRequired() {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}

// RequiresApproval reports whether p is a manual phase.
func (d *Definition) RequiresApproval(p models.Phase) bool {
	return d.Phases[p].Manual
}

// ManualPhases returns the manual phases of the pipeline in order.
func (d *Definition) ManualPhases() []models.Phase {
	var out []models.Phase
	for _, p := range d.Pipeline() {
		if d.RequiresApproval(p) {
			out = append(out, p)
		}
	}
	return out
}
