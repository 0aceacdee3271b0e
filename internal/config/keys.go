package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Configuration keys in dot notation, as used in YAML files and by
// "shipline config". Each maps to a SHIPLINE_ environment variable with dots
// replaced by underscores.
const (
	KeyBatchMaxSize            = "batch.max_size"
	KeyPipelineFile            = "pipeline.file"
	KeyPipelineDeploymentModel = "pipeline.deployment_model"
	KeyPipelineClarify         = "pipeline.clarify"
	KeyStateDriver             = "state.driver"
	KeyStatePath               = "state.path"
	KeyPathsSpecsDir           = "paths.specs_dir"
	KeyPathsTasksFile          = "paths.tasks_file"
	KeyPathsLedgerFile         = "paths.ledger_file"
	KeyTimeoutsTask            = "timeouts.task"
	KeyTimeoutsPhase           = "timeouts.phase"
	KeyTimeoutsCheck           = "timeouts.check"
	KeyTUIRefreshRate          = "tui.refresh_rate"
)

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return "SHIPLINE_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
}

// Values returns every setting as key/value strings, including per-phase
// commands and per-domain workers, sorted by key.
func Values(cfg *Config) map[string]string {
	out := map[string]string{
		KeyBatchMaxSize:            strconv.Itoa(cfg.Batch.MaxSize),
		KeyPipelineFile:            cfg.Pipeline.File,
		KeyPipelineDeploymentModel: cfg.Pipeline.DeploymentModel,
		KeyPipelineClarify:         "",
		KeyStateDriver:             cfg.State.Driver,
		KeyStatePath:               cfg.State.Path,
		KeyPathsSpecsDir:           cfg.Paths.SpecsDir,
		KeyPathsTasksFile:          cfg.Paths.TasksFile,
		KeyPathsLedgerFile:         cfg.Paths.LedgerFile,
		KeyTimeoutsTask:            cfg.Timeouts.Task.String(),
		KeyTimeoutsPhase:           cfg.Timeouts.Phase.String(),
		KeyTimeoutsCheck:           cfg.Timeouts.Check.String(),
		KeyTUIRefreshRate:          cfg.TUI.RefreshRate.String(),
	}
	if cfg.Pipeline.Clarify != nil {
		out[KeyPipelineClarify] = strconv.FormatBool(*cfg.Pipeline.Clarify)
	}
	for name, p := range cfg.Phases {
		out["phases."+name+".command"] = p.Command
	}
	for name, w := range cfg.Workers {
		out["workers."+name+".agent"] = w.Agent
		out["workers."+name+".command"] = w.Command
	}
	return out
}

// Value returns one setting by dot-notation key.
func Value(cfg *Config, key string) (string, error) {
	v, ok := Values(cfg)[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return v, nil
}

// SortedKeys returns the keys of values in order.
func SortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set writes one setting to the config file at path, keeping its other
// settings. The file is created when missing.
func Set(path, key, value string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	v.Set(strings.ToLower(key), value)

	// Validate the merged result before writing it.
	check := newViper()
	if err := check.MergeConfigMap(v.AllSettings()); err != nil {
		return err
	}
	if _, err := unmarshal(check); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return v.WriteConfigAs(path)
}
