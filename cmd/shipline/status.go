package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/shipline/internal/batch"
	"github.com/ShayCichocki/shipline/internal/gate"
	"github.com/ShayCichocki/shipline/internal/ledger"
	"github.com/ShayCichocki/shipline/pkg/models"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status [feature]",
	Short: "Show pipeline state",
	Long: `Without arguments, list every feature with its current phase.

With a feature, show each phase's status, manual and quality gates, task
progress from the completion ledger, and the action the next
"shipline run" would take.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 5, "Number of recent transitions to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	proj, err := openProject("")
	if err != nil {
		return err
	}
	defer proj.Close()

	if len(args) == 0 {
		return listFeatures(proj)
	}
	return showFeature(proj, args[0])
}

func listFeatures(proj *project) error {
	summaries, err := proj.store.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No features yet. Run 'shipline init <feature>' or 'shipline run <feature>' to start.")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("  %-28s %-18s %s  %s\n",
			s.FeatureID,
			s.CurrentPhase,
			statusText(s.Status),
			dimColor.Sprint(formatAgo(s.UpdatedAt)))
	}
	return nil
}

func showFeature(proj *project, featureID string) error {
	exists, err := proj.store.Exists(featureID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no state for feature %s (run 'shipline init %s')", featureID, featureID)
	}
	st, err := proj.store.Load(featureID)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s  %s\n", boldColor.Sprint("Feature:"), st.FeatureID, dimColor.Sprint("run "+st.RunID))
	fmt.Printf("%s %s\n\n", boldColor.Sprint("Model:"), st.DeploymentModel)

	for _, p := range st.Pipeline {
		marker := "  "
		if p == st.CurrentPhase {
			marker = infoColor.Sprint("→ ")
		}
		line := fmt.Sprintf("%s%-18s %s", marker, p, statusText(st.Status(p)))
		if g, ok := st.GateForPhase(p); ok {
			line += "  " + gateText(g)
		}
		fmt.Println(line)
	}

	if len(st.QualityGates) > 0 {
		fmt.Printf("\n%s\n", boldColor.Sprint("Quality gates:"))
		for _, p := range st.Pipeline {
			printQualityGates(os.Stdout, st, p, false)
		}
	}

	printTaskProgress(proj, featureID)

	engine := proj.engine()
	if action, err := engine.NextAction(st); err != nil {
		fmt.Printf("\n%s %v\n", failColor.Sprint("Next:"), err)
	} else {
		fmt.Printf("\n%s %s\n", boldColor.Sprint("Next:"), action)
	}
	if g, ok := gate.PendingGate(st); ok {
		fmt.Printf("  approve: shipline approve %s %s\n", featureID, g.Name)
	}

	if statusHistory > 0 && len(st.History) > 0 {
		fmt.Printf("\n%s\n", boldColor.Sprint("History:"))
		start := len(st.History) - statusHistory
		if start < 0 {
			start = 0
		}
		for _, rec := range st.History[start:] {
			line := fmt.Sprintf("  %s  %-18s %s → %s",
				rec.At.Local().Format("01-02 15:04:05"), rec.Phase, rec.From, rec.To)
			if rec.Reason != "" {
				line += dimColor.Sprint("  " + rec.Reason)
			}
			fmt.Println(line)
		}
	}
	return nil
}

// printTaskProgress reports ledger progress over the task list, if there is one.
func printTaskProgress(proj *project, featureID string) {
	plan, err := proj.engine().Plan(featureID)
	if err != nil {
		if _, statErr := os.Stat(proj.tasksPath(featureID)); statErr == nil {
			fmt.Printf("\n%s %v\n", failColor.Sprint("Tasks:"), err)
		}
		return
	}
	total := len(plan.Document.Tasks)
	done := 0
	for _, t := range plan.Document.Tasks {
		if plan.Completed[t.ID] {
			done++
		}
	}
	fmt.Printf("\n%s %d/%d completed, %d batches", boldColor.Sprint("Tasks:"), done, total, len(plan.FullPlan))
	if plan.StartBatch >= 0 {
		fmt.Printf(", resuming at batch %d", plan.StartBatch+1)
	}
	fmt.Println()

	latest, err := ledger.Open(proj.ledgerPath(featureID)).Latest()
	if err != nil {
		return
	}
	var failed []string
	for id, rec := range latest {
		if rec.Status == models.TaskStatusFailed {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	for _, id := range failed {
		rec := latest[id]
		fmt.Printf("  %s %s", failColor.Sprint("✗"), id)
		if i, ok := batch.Locate(plan.FullPlan, id); ok {
			fmt.Printf(" %s", dimColor.Sprintf("(batch %d)", i+1))
		}
		if task, ok := plan.Document.Lookup(id); ok {
			fmt.Printf(" %s", task.Description)
		}
		for _, key := range []string{ledger.KeyReason, ledger.KeyEvidence, ledger.KeyRollback} {
			if v := rec.Get(key); v != "" {
				fmt.Printf(" %s", dimColor.Sprintf("%s=%s", key, v))
			}
		}
		fmt.Println()
	}
}

func statusText(s models.PhaseStatus) string {
	switch s {
	case models.PhaseCompleted:
		return okColor.Sprint(s)
	case models.PhaseFailed:
		return failColor.Sprint(s)
	case models.PhaseInProgress:
		return warnColor.Sprint(s)
	default:
		return dimColor.Sprint(s)
	}
}

func gateText(g models.ManualGate) string {
	switch g.Status {
	case models.GateApproved:
		return okColor.Sprintf("gate %s approved by %s", g.Name, g.Approver)
	case models.GateRejected:
		s := fmt.Sprintf("gate %s rejected by %s", g.Name, g.Approver)
		if g.Reason != "" {
			s += ": " + g.Reason
		}
		return failColor.Sprint(s)
	default:
		return warnColor.Sprintf("gate %s pending", g.Name)
	}
}

// formatAgo renders how long ago t was.
func formatAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02")
	}
}
