// Package config handles configuration loading and management for shipline.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/dispatch"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/internal/state"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// ProjectConfigName is the project-level config file, searched upward from cwd.
const ProjectConfigName = ".shipline.yaml"

// Config holds all configuration for shipline.
type Config struct {
	Batch    BatchConfig             `mapstructure:"batch"`
	Pipeline PipelineConfig          `mapstructure:"pipeline"`
	Phases   map[string]PhaseConfig  `mapstructure:"phases"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	State    StateConfig             `mapstructure:"state"`
	Paths    PathsConfig             `mapstructure:"paths"`
	Timeouts TimeoutsConfig          `mapstructure:"timeouts"`
	TUI      TUIConfig               `mapstructure:"tui"`
}

// BatchConfig holds batching settings.
type BatchConfig struct {
	// MaxSize caps the tasks in one batch.
	MaxSize int `mapstructure:"max_size"`
}

// PipelineConfig holds pipeline shape settings. They override the pipeline file.
type PipelineConfig struct {
	DeploymentModel string `mapstructure:"deployment_model"`
	Clarify         *bool  `mapstructure:"clarify"`
	// File is the pipeline definition, relative to the project root.
	File string `mapstructure:"file"`
}

// PhaseConfig holds per-phase settings.
type PhaseConfig struct {
	Command string `mapstructure:"command"`
}

// WorkerConfig holds the worker strategy for one domain.
type WorkerConfig struct {
	Agent   string `mapstructure:"agent"`
	Command string `mapstructure:"command"`
}

// StateConfig holds state database settings.
type StateConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	// Path overrides .shipline/state.db.
	Path string `mapstructure:"path"`
}

// PathsConfig holds feature file locations.
type PathsConfig struct {
	// SpecsDir holds one directory per feature.
	SpecsDir string `mapstructure:"specs_dir"`
	// TasksFile is the task list name inside a feature directory.
	TasksFile string `mapstructure:"tasks_file"`
	// LedgerFile is the completion ledger name inside a feature directory.
	LedgerFile string `mapstructure:"ledger_file"`
}

// TimeoutsConfig holds timeouts for external commands. Task is opt-in:
// zero leaves worker invocations without a deadline.
type TimeoutsConfig struct {
	Task  time.Duration `mapstructure:"task"`
	Phase time.Duration `mapstructure:"phase"`
	Check time.Duration `mapstructure:"check"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (SHIPLINE_BATCH_MAX_SIZE, ...)
// 2. Project config (.shipline.yaml in current directory or parent)
// 3. User config (~/.config/shipline/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SHIPLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	_ = v.BindEnv(KeyPipelineClarify)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	for name, w := range cfg.Workers {
		w.Command = os.ExpandEnv(w.Command)
		cfg.Workers[name] = w
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBatchMaxSize, batch.DefaultMaxSize)

	v.SetDefault(KeyPipelineFile, filepath.Join(".shipline", "pipeline.yaml"))
	v.SetDefault(KeyPipelineDeploymentModel, "")

	v.SetDefault(KeyStateDriver, state.DriverModernc)
	v.SetDefault(KeyStatePath, "")

	v.SetDefault(KeyPathsSpecsDir, "specs")
	v.SetDefault(KeyPathsTasksFile, "tasks.md")
	v.SetDefault(KeyPathsLedgerFile, ".ledger")

	v.SetDefault(KeyTimeoutsTask, "0s")
	v.SetDefault(KeyTimeoutsPhase, "30m")
	v.SetDefault(KeyTimeoutsCheck, "10m")

	v.SetDefault(KeyTUIRefreshRate, "100ms")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Batch: BatchConfig{MaxSize: batch.DefaultMaxSize},
		Pipeline: PipelineConfig{
			File: filepath.Join(".shipline", "pipeline.yaml"),
		},
		State: StateConfig{Driver: state.DriverModernc},
		Paths: PathsConfig{
			SpecsDir:   "specs",
			TasksFile:  "tasks.md",
			LedgerFile: ".ledger",
		},
		Timeouts: TimeoutsConfig{
			Task:  0,
			Phase: 30 * time.Minute,
			Check: 10 * time.Minute,
		},
		TUI: TUIConfig{RefreshRate: 100 * time.Millisecond},
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Batch.MaxSize < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyBatchMaxSize, c.Batch.MaxSize)
	}
	switch c.State.Driver {
	case state.DriverModernc, state.DriverMattn:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeyStateDriver, state.DriverModernc, state.DriverMattn, c.State.Driver)
	}
	if m := c.Pipeline.DeploymentModel; m != "" && !models.DeploymentModel(m).Valid() {
		return fmt.Errorf("%s: unknown deployment model %q", KeyPipelineDeploymentModel, m)
	}
	if c.Timeouts.Task < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyTimeoutsTask, c.Timeouts.Task)
	}
	for name := range c.Phases {
		if _, err := models.ParsePhase(name); err != nil {
			return fmt.Errorf("phases.%s: %w", name, err)
		}
	}
	for name := range c.Workers {
		if !models.Domain(name).Valid() {
			return fmt.Errorf("workers.%s: unknown domain", name)
		}
	}
	return nil
}

// Strategies returns the worker strategy table: built-in agent names with
// configured agents and commands laid over them.
func (c *Config) Strategies() dispatch.Strategies {
	s := dispatch.DefaultStrategies()
	for name, w := range c.Workers {
		d := models.Domain(name)
		st := s[d]
		if w.Agent != "" {
			st.Agent = w.Agent
		}
		if w.Command != "" {
			st.Command = w.Command
		}
		s[d] = st
	}
	return s
}

// LoadPipeline reads the project's pipeline file and applies the configured
// overrides.
func (c *Config) LoadPipeline(projectRoot string) (*pipeline.Definition, error) {
	path := c.Pipeline.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot, path)
	}
	def, err := pipeline.Load(path)
	if err != nil {
		return nil, err
	}

	o := pipeline.Overrides{
		DeploymentModel: models.DeploymentModel(c.Pipeline.DeploymentModel),
		Clarify:         c.Pipeline.Clarify,
		Commands:        make(map[models.Phase]string),
	}
	names := make([]string, 0, len(c.Phases))
	for name := range c.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if cmd := c.Phases[name].Command; cmd != "" {
			o.Commands[models.Phase(name)] = cmd
		}
	}
	return def.Apply(o)
}

// StatePath returns the state database location for a project.
func (c *Config) StatePath(projectRoot string) string {
	if c.State.Path == "" {
		return state.ProjectDBPath(projectRoot)
	}
	if filepath.IsAbs(c.State.Path) {
		return c.State.Path
	}
	return filepath.Join(projectRoot, c.State.Path)
}

// FeatureDir returns the directory holding a feature's documents.
func (c *Config) FeatureDir(projectRoot, featureID string) string {
	dir := c.Paths.SpecsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectRoot, dir)
	}
	return filepath.Join(dir, featureID)
}

// TasksPath returns a feature's task list location.
func (c *Config) TasksPath(projectRoot, featureID string) string {
	return filepath.Join(c.FeatureDir(projectRoot, featureID), c.Paths.TasksFile)
}

// LedgerPath returns a feature's completion ledger location.
func (c *Config) LedgerPath(projectRoot, featureID string) string {
	return filepath.Join(c.FeatureDir(projectRoot, featureID), c.Paths.LedgerFile)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// ProjectRoot returns the directory holding the project config, or the
// current directory when there is none.
func ProjectRoot() (string, error) {
	if p := findProjectConfig(); p != "" {
		return filepath.Dir(p), nil
	}
	return os.Getwd()
}

// getUserConfigDir returns the XDG config directory for shipline.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "shipline")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "shipline")
	}
	return filepath.Join(home, ".config", "shipline")
}

// findProjectConfig searches for .shipline.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
