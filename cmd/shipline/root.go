package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shipline",
	Short: "Workflow orchestration for spec-driven feature delivery",
	Long: `shipline drives a feature through its delivery pipeline:

  specify → [clarify] → plan → tasks → implement → optimize → preview →
  deploy-staging → validate-staging → deploy-prod → finalize

During implement it parses the feature's task list, batches tasks by TDD
chain and domain, and dispatches each batch to workers in parallel. Progress
is persisted, so an interrupted run resumes where it stopped: completed tasks
are never re-run. Manual gates (preview, validate-staging) pause the run
until "shipline approve".

Configuration is read from ~/.config/shipline/config.yaml and .shipline.yaml,
with SHIPLINE_* environment overrides.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errSilentFailure exits 1 without a message, for failures the command has
// already reported.
var errSilentFailure = errors.New("failed")

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilentFailure) {
			fmt.Fprintf(os.Stderr, "%s %v\n", failColor.Sprint("Error:"), err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(batchesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
