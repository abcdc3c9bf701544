package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(eligibilityCmd)
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries to return")
}

var progressCmd = &cobra.Command{
	Use:   "progress <user-id>",
	Short: "Show a user's journey progress",
	Long: `Show the user's current stage, days in stage, and stability progress.

A user seen for the first time starts in the authorization stage.

Examples:
  journeyd progress user-42
  journeyd progress user-42 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runProgress,
}

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility <user-id>",
	Short: "Check advance eligibility without transitioning",
	Long: `Evaluate the gating criteria for advancing to the next stage.

Examples:
  journeyd eligibility user-42`,
	Args: cobra.ExactArgs(1),
	RunE: runEligibility,
}

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show a user's transition history",
	Long: `Show the append-only transition log, newest first.

Examples:
  journeyd history user-42 --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func runProgress(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.engine.GetProgress(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(p, func() {
		fmt.Printf("User:          %s\n", p.UserID)
		fmt.Printf("Stage:         %s (S%d)\n", p.Label, int(p.Stage))
		fmt.Printf("Days in stage: %d\n", p.DaysInStage)
		if p.StabilityRequired > 0 {
			fmt.Printf("Stability:     %d/%d days (%.0f%%)\n", p.StabilityDays, p.StabilityRequired, p.StabilityPercent)
		}
		if p.GraduatedAt != nil {
			fmt.Printf("Graduated:     %s\n", p.GraduatedAt.Format("2006-01-02"))
		}
	})
}

func runEligibility(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	elig, err := a.engine.CheckAdvanceEligibility(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(elig, func() {
		if elig.Terminal {
			fmt.Printf("%s is in the terminal stage\n", elig.UserID)
			return
		}
		fmt.Printf("User: %s (stage %s)\n", elig.UserID, elig.Stage)
		for _, c := range elig.Checks {
			mark := "✗"
			if c.Met {
				mark = "✓"
			}
			fmt.Printf("  %s %s: %.0f/%.0f\n", mark, c.Name, c.Current, c.Required)
		}
		if elig.Eligible {
			fmt.Println("Eligible to advance")
		} else {
			fmt.Println("Not eligible to advance")
		}
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	transitions, err := a.store.Transitions(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}

	return printResult(transitions, func() {
		if len(transitions) == 0 {
			fmt.Println("No transitions recorded")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tKIND\tFROM\tTO\tACTOR\tREASON")
		for _, t := range transitions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.CreatedAt.Format("2006-01-02 15:04"), t.Kind, t.From, t.To, t.Actor, t.Reason)
		}
		w.Flush()
	})
}
