package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/config"
	"github.com/ShayCichocki/shipline/internal/ledger"
	"github.com/ShayCichocki/shipline/internal/tasklist"
	"github.com/ShayCichocki/shipline/pkg/models"
)

var (
	batchesMaxSize int
	batchesLedger  string
)

var batchesCmd = &cobra.Command{
	Use:   "batches <tasks.md>",
	Short: "Show the batch plan for a task list without running it",
	Long: `Parse a task list and print the batches implement would dispatch, in
order. Tasks in one batch run in parallel; batches run one after another.

With --ledger, tasks recorded as completed are marked and the batch a
resumed run would start from is shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatches,
}

func init() {
	batchesCmd.Flags().IntVar(&batchesMaxSize, "max-size", 0, "Maximum tasks per batch (default batch.max_size)")
	batchesCmd.Flags().StringVar(&batchesLedger, "ledger", "", "Completion ledger to mark progress from")
}

func runBatches(cmd *cobra.Command, args []string) error {
	maxSize := batchesMaxSize
	if maxSize == 0 {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		maxSize = cfg.Batch.MaxSize
	}

	doc, err := tasklist.ParseFile(args[0])
	if err != nil {
		return err
	}
	for _, w := range doc.Warnings {
		printStatus("⚠", w, color.FgYellow)
	}

	completed := map[string]bool{}
	if batchesLedger != "" {
		if completed, err = ledger.Open(batchesLedger).Completed(); err != nil {
			return err
		}
	}

	tasks := tasklist.MarkCompleted(doc.Tasks, completed)
	batches, err := batch.New(batch.Config{MaxSize: maxSize}).Batch(tasks, doc.Format)
	if err != nil {
		return err
	}

	fmt.Printf("%d tasks, %d batches (%s, max %d per batch)\n\n", len(doc.Tasks), len(batches), doc.Format, maxSize)
	start := batch.FirstIncomplete(batches, completed)
	for _, b := range batches {
		header := fmt.Sprintf("Batch %d [%s]", b.Index+1, b.Domain())
		if b.Sequential() {
			header += " sequential"
		}
		if batchesLedger != "" && b.Index == start {
			header += warnColor.Sprint("  ← resume here")
		}
		fmt.Println(boldColor.Sprint(header))
		for _, t := range b.Tasks {
			fmt.Println(formatTask(t, t.Status == models.TaskStatusCompleted))
		}
	}
	return nil
}

func formatTask(t models.Task, done bool) string {
	mark := dimColor.Sprint("○")
	if done {
		mark = okColor.Sprint("✓")
	}
	var tags []string
	if t.TDDPhase != models.TDDNone {
		tag := string(t.TDDPhase)
		if t.Ref != "" {
			tag += "→" + t.Ref
		}
		tags = append(tags, tag)
	}
	if t.Priority > 0 {
		tags = append(tags, fmt.Sprintf("P%d", t.Priority))
	}
	if t.Story > 0 {
		tags = append(tags, fmt.Sprintf("US%d", t.Story))
	}
	line := fmt.Sprintf("  %s %s", mark, t.ID)
	if len(tags) > 0 {
		line += " " + infoColor.Sprint("["+strings.Join(tags, "][")+"]")
	}
	return line + " " + t.Description
}
