package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/shipline/internal/signals"
	"github.com/ShayCichocki/shipline/internal/state"
)

var (
	gateApprover string
	rejectReason string
)

var approveCmd = &cobra.Command{
	Use:   "approve <feature> <gate>",
	Short: "Approve a pending manual gate",
	Long: `Approve the pending manual gate of a feature's current phase. The phase
completes and the pipeline advances; the next "shipline run" continues from
there. A run blocked with --wait resumes on its own.

If a required quality gate of the phase has not passed, the approval is
recorded but the phase stays open.`,
	Args: cobra.ExactArgs(2),
	RunE: runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <feature> <gate>",
	Short: "Reject a pending manual gate",
	Long: `Reject the pending manual gate of a feature's current phase. The phase
fails; the next "shipline run" retries it and opens a new gate.`,
	Args: cobra.ExactArgs(2),
	RunE: runReject,
}

func init() {
	for _, c := range []*cobra.Command{approveCmd, rejectCmd} {
		c.Flags().StringVar(&gateApprover, "by", "", "Who made the decision (default $USER)")
	}
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Why the gate was rejected")
}

func runApprove(cmd *cobra.Command, args []string) error {
	return decideGate(args[0], args[1], true)
}

func runReject(cmd *cobra.Command, args []string) error {
	return decideGate(args[0], args[1], false)
}

func decideGate(featureID, gateName string, approve bool) error {
	proj, err := openProject("")
	if err != nil {
		return err
	}
	defer proj.Close()

	st, err := proj.store.Load(featureID)
	if err != nil {
		return err
	}
	approver := gateApprover
	if approver == "" {
		approver = currentUser()
	}

	ctrl := proj.controller()
	decision := "approved"
	if approve {
		err = ctrl.Approve(st, gateName, approver)
	} else {
		decision = "rejected"
		err = ctrl.Reject(st, gateName, approver, rejectReason)
	}

	if errors.Is(err, state.ErrGateNotPassed) {
		printStatus("⚠", fmt.Sprintf("Gate %s approval recorded, but %s cannot complete yet", gateName, st.CurrentPhase), color.FgYellow)
		printQualityGates(os.Stdout, st, st.CurrentPhase, true)
		return err
	}
	if err != nil {
		return err
	}

	// Wake any run waiting on this gate. The state change above is what
	// counts; a missing signal only delays a waiting run to its next poll.
	if serr := signals.Send(proj.root, featureID, gateName, decision); serr != nil {
		printStatus("⚠", fmt.Sprintf("could not signal waiting runs: %v", serr), color.FgYellow)
	}

	if approve {
		printStatus("✓", fmt.Sprintf("Gate %s approved by %s; %s is now at %s", gateName, approver, featureID, st.CurrentPhase), color.FgGreen)
	} else {
		printStatus("✗", fmt.Sprintf("Gate %s rejected by %s; %s will be retried on the next run", gateName, approver, st.CurrentPhase), color.FgRed)
	}
	return nil
}
