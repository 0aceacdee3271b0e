package main

import (
	"fmt"
	"os"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/config"
	"github.com/ShayCichocki/shipline/internal/gate"
	"github.com/ShayCichocki/shipline/internal/pipeline"
	"github.com/ShayCichocki/shipline/internal/resume"
	"github.com/ShayCichocki/shipline/internal/state"
	"github.com/ShayCichocki/shipline/pkg/models"
)

// project bundles what every feature command needs: configuration, the
// pipeline definition, and an open state store.
type project struct {
	root  string
	cfg   *config.Config
	def   *pipeline.Definition
	store *state.Store
}

// openProject loads configuration from the working directory upward and
// opens the state database. modelOverride replaces the configured
// deployment model when set.
func openProject(modelOverride string) (*project, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modelOverride != "" {
		if !models.DeploymentModel(modelOverride).Valid() {
			return nil, fmt.Errorf("unknown deployment model %q (want staging-prod, direct-prod or local-only)", modelOverride)
		}
		cfg.Pipeline.DeploymentModel = modelOverride
	}

	root, err := config.ProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	def, err := cfg.LoadPipeline(root)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}

	db, err := state.OpenDriver(cfg.State.Driver, cfg.StatePath(root))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store := state.NewStore(db, def,
		state.WithDeploymentModel(def.DeploymentModel),
		state.WithClarify(def.Clarify),
	)
	return &project{root: root, cfg: cfg, def: def, store: store}, nil
}

func (p *project) Close() error {
	return p.store.Close()
}

func (p *project) controller() *gate.Controller {
	return gate.NewController(p.store, p.def)
}

func (p *project) batcher() *batch.Batcher {
	return batch.New(batch.Config{MaxSize: p.cfg.Batch.MaxSize})
}

func (p *project) tasksPath(featureID string) string {
	if runTasksPath != "" {
		return runTasksPath
	}
	return p.cfg.TasksPath(p.root, featureID)
}

func (p *project) ledgerPath(featureID string) string {
	return p.cfg.LedgerPath(p.root, featureID)
}

func (p *project) engine() *resume.Engine {
	inputs := resume.FileInputs{TasksPath: p.tasksPath, LedgerPath: p.ledgerPath}
	return resume.New(inputs, p.batcher(), p.def)
}

// currentUser names the approver of a gate decision.
func currentUser() string {
	for _, key := range []string{"SHIPLINE_USER", "USER", "USERNAME"} {
		if u := os.Getenv(key); u != "" {
			return u
		}
	}
	return "unknown"
}
