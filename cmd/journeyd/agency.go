package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

var (
	agencySignalFlags []string
	agencyTextFlags   []string
)

func init() {
	rootCmd.AddCommand(agencyCmd)
	agencyCmd.AddCommand(agencyScoreCmd)
	agencyCmd.AddCommand(agencyOverrideCmd)
	agencyCmd.AddCommand(agencyClearOverrideCmd)

	agencyScoreCmd.Flags().StringArrayVar(&agencySignalFlags, "signal", nil, "Signal as name=value, repeatable")
	agencyScoreCmd.Flags().StringArrayVar(&agencyTextFlags, "text", nil, "Recent activity text for depth extraction, repeatable")
}

var agencyCmd = &cobra.Command{
	Use:   "agency",
	Short: "Agency scoring and coach overrides",
	Long: `Compute the weighted agency score from behavioral signals, or
manage the coach's categorical override.

Examples:
  # Compute from provided signals
  journeyd agency score user-42 \
    --signal self_initiated_actions=0.8 \
    --signal goal_setting=0.6

  # Derive expression depth from recent activity text
  journeyd agency score user-42 \
    --text "I realized I skip workouts when I plan them too late"

  # Force the passive mode regardless of computed signals
  journeyd agency override user-42 passive

  # Return to computed scoring
  journeyd agency clear-override user-42`,
}

var agencyScoreCmd = &cobra.Command{
	Use:   "score <user-id>",
	Short: "Compute and persist the agency score",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgencyScore,
}

var agencyOverrideCmd = &cobra.Command{
	Use:   "override <user-id> <passive|transitional|active>",
	Short: "Set the coach agency override",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgencyOverride,
}

var agencyClearOverrideCmd = &cobra.Command{
	Use:   "clear-override <user-id>",
	Short: "Clear the coach agency override",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgencyClearOverride,
}

func runAgencyScore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	values, err := parseSignalFlags(agencySignalFlags)
	if err != nil {
		return err
	}
	a.provider.Set(args[0], values)
	if len(agencyTextFlags) > 0 {
		a.source.SetText(args[0], agencyTextFlags)
	}

	result, err := a.agency.Compute(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(result, func() {
		fmt.Printf("User:  %s\n", result.UserID)
		fmt.Printf("Score: %.3f\n", result.Score)
		fmt.Printf("Mode:  %s", result.Mode)
		if result.Overridden {
			fmt.Print(" (coach override)")
		}
		fmt.Println()
	})
}

func runAgencyOverride(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.agency.SetOverride(cmd.Context(), args[0], journey.AgencyMode(args[1]))
	if err != nil {
		return err
	}

	return printResult(rec, func() {
		fmt.Printf("%s overridden to %s (score %.2f)\n", rec.UserID, rec.AgencyMode, rec.AgencyScore)
	})
}

func runAgencyClearOverride(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.agency.ClearOverride(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(rec, func() {
		fmt.Printf("%s override cleared, computed mode %s (score %.2f)\n", rec.UserID, rec.AgencyMode, rec.AgencyScore)
	})
}
