package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

var (
	transitionReason string
	transitionActor  string
	advanceForce     bool
	interruptTarget  string
)

func init() {
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(interruptCmd)
	rootCmd.AddCommand(graduateCmd)

	advanceCmd.Flags().StringVar(&transitionReason, "reason", "", "Reason recorded in the audit log (required)")
	advanceCmd.Flags().StringVar(&transitionActor, "actor", "system", "Actor recorded in the audit log")
	advanceCmd.Flags().BoolVar(&advanceForce, "force", false, "Bypass eligibility gating (never adjacency)")
	_ = advanceCmd.MarkFlagRequired("reason")

	interruptCmd.Flags().StringVar(&transitionReason, "reason", "", "Reason recorded in the audit log (required)")
	interruptCmd.Flags().StringVar(&transitionActor, "actor", "system", "Actor recorded in the audit log")
	interruptCmd.Flags().StringVar(&interruptTarget, "regress-to", "", "Explicit target stage label (default one stage back)")
	_ = interruptCmd.MarkFlagRequired("reason")
}

var advanceCmd = &cobra.Command{
	Use:   "advance <user-id>",
	Short: "Advance a user one stage forward",
	Long: `Advance the user exactly one stage, subject to day gating.

Examples:
  # Normal advance after eligibility is met
  journeyd advance user-42 --reason "consent signed" --actor coach-7

  # Administrative override of the day gate
  journeyd advance user-42 --reason "manual correction" --actor admin --force`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvance,
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt <user-id>",
	Short: "Record a life interruption and regress the user",
	Long: `Record an interruption, regressing the user one stage back by
default, or to an explicit earlier stage.

Examples:
  journeyd interrupt user-42 --reason "hospitalization" --actor coach-7
  journeyd interrupt user-42 --reason "long absence" --regress-to observation`,
	Args: cobra.ExactArgs(1),
	RunE: runInterrupt,
}

var graduateCmd = &cobra.Command{
	Use:   "graduate <user-id>",
	Short: "Graduate a user who completed the stability window",
	Long: `Complete the journey for a user in the stability stage whose
stability window is full. Graduating an already graduated user is a
no-op success.

Examples:
  journeyd graduate user-42`,
	Args: cobra.ExactArgs(1),
	RunE: runGraduate,
}

func runAdvance(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.Advance(cmd.Context(), args[0], transitionReason, transitionActor, advanceForce)
	if err != nil {
		return err
	}

	return printResult(rec, func() {
		fmt.Printf("%s advanced to %s\n", rec.UserID, rec.Stage)
	})
}

func runInterrupt(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var regressTo *journey.Stage
	if interruptTarget != "" {
		s, err := journey.ParseStage(interruptTarget)
		if err != nil {
			return err
		}
		regressTo = &s
	}

	rec, err := a.engine.RecordInterruption(cmd.Context(), args[0], transitionReason, transitionActor, regressTo)
	if err != nil {
		return err
	}

	return printResult(rec, func() {
		fmt.Printf("%s regressed to %s (interruption #%d)\n", rec.UserID, rec.Stage, rec.InterruptionCount)
	})
}

func runGraduate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.Graduate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(rec, func() {
		fmt.Printf("%s graduated on %s\n", rec.UserID, rec.GraduatedAt.Format("2006-01-02"))
	})
}
