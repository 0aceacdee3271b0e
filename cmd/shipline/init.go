package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/shipline/internal/config"
	"github.com/ShayCichocki/shipline/internal/state"
)

var (
	initForce bool
	initModel string
)

var initCmd = &cobra.Command{
	Use:   "init <feature>",
	Short: "Create pipeline state for a feature",
	Long: `Create a fresh pipeline state for a feature, with every phase not started.

The deployment model decides which deploy phases the pipeline has:
  staging-prod   deploy-staging, validate-staging and deploy-prod (default)
  direct-prod    deploy-prod only
  local-only     no deploy phases

The first init in a project also writes a commented .shipline.yaml and adds
shipline's local files to .gitignore.

Examples:
  shipline init 001-upload
  shipline init 001-upload --model local-only
  shipline init 001-upload --force   # discard existing state and history`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Replace existing state and history")
	initCmd.Flags().StringVar(&initModel, "model", "", "Deployment model: staging-prod, direct-prod, local-only")
}

func runInit(cmd *cobra.Command, args []string) error {
	featureID := args[0]

	proj, err := openProject(initModel)
	if err != nil {
		return err
	}
	defer proj.Close()

	st, err := proj.store.Init(featureID, initForce)
	if errors.Is(err, state.ErrExists) {
		printStatus("✗", fmt.Sprintf("%s already has pipeline state. Use --force to reinitialize.", featureID), color.FgRed)
		return errSilentFailure
	}
	if err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Created state for %s (%s, %d phases)", featureID, st.DeploymentModel, len(st.Pipeline)), color.FgGreen)

	featureDir := proj.cfg.FeatureDir(proj.root, featureID)
	if err := os.MkdirAll(featureDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", featureDir, err)
	}
	tasksPath := proj.cfg.TasksPath(proj.root, featureID)
	if _, err := os.Stat(tasksPath); os.IsNotExist(err) {
		printStatus("⚠", fmt.Sprintf("No task list yet at %s", relPath(proj.root, tasksPath)), color.FgYellow)
	}

	if created, err := createProjectConfig(proj.root); err != nil {
		printStatus("⚠", fmt.Sprintf("Could not write %s: %v", config.ProjectConfigName, err), color.FgYellow)
	} else if created {
		printStatus("✓", "Created "+config.ProjectConfigName+" template", color.FgGreen)
	}
	if err := updateGitignore(proj.root); err != nil {
		printStatus("⚠", fmt.Sprintf("Could not update .gitignore: %v", err), color.FgYellow)
	}

	fmt.Printf("\nNext: shipline run %s\n", featureID)
	return nil
}

// updateGitignore appends shipline's local state files to .gitignore.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	entries := []string{
		".shipline/state.db*",
		".shipline/logs/",
		".shipline/signals/",
	}

	var missing []string
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# shipline\n")
	for _, entry := range missing {
		newContent.WriteString(entry + "\n")
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// createProjectConfig writes a commented project config unless one exists.
func createProjectConfig(repoPath string) (bool, error) {
	configPath := filepath.Join(repoPath, config.ProjectConfigName)
	if _, err := os.Stat(configPath); err == nil {
		return false, nil
	}

	template := `# shipline project configuration
# Overrides ~/.config/shipline/config.yaml; SHIPLINE_* variables override both.

# batch:
#   max_size: 3

# pipeline:
#   deployment_model: staging-prod   # or direct-prod, local-only
#   clarify: false
#   file: .shipline/pipeline.yaml

# phases:
#   plan:
#     command: make plan
#   deploy-staging:
#     command: ./scripts/deploy.sh staging

# workers:
#   backend:
#     agent: backend-dev
#     command: ./scripts/worker.sh

# timeouts:
#   task: 0s      # per worker call; 0 means no deadline
#   phase: 30m
#   check: 10m
`
	if err := os.WriteFile(configPath, []byte(template), 0644); err != nil {
		return false, err
	}
	return true, nil
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
