package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stabilityCmd)
	stabilityCmd.AddCommand(stabilityCountCmd)
	stabilityCmd.AddCommand(stabilityRunCmd)
}

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Stability day counting",
	Long: `Count qualifying stability days for users in the stability stage.

Examples:
  # Count one day for a single user (interactive check-in path)
  journeyd stability count user-42

  # Run the batch job for all tracked users (idempotent per day)
  journeyd stability run`,
}

var stabilityCountCmd = &cobra.Command{
	Use:   "count <user-id>",
	Short: "Count one stability day for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runStabilityCount,
}

var stabilityRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stability batch job",
	Args:  cobra.NoArgs,
	RunE:  runStabilityBatch,
}

func runStabilityCount(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.UpdateStability(cmd.Context(), args[0], 1)
	if err != nil {
		return err
	}

	return printResult(result, func() {
		if !result.Counted {
			fmt.Printf("%s is not in the stability stage, nothing counted\n", result.UserID)
			return
		}
		fmt.Printf("%s: %d/%d stability days\n", result.UserID, result.StabilityDays, result.StabilityRequired)
	})
}

func runStabilityBatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.sched.RunStability(cmd.Context())
	if err != nil {
		return err
	}

	return printResult(result, func() {
		if !result.Claimed {
			fmt.Printf("Window %s already processed\n", result.Window)
			return
		}
		fmt.Printf("Window %s: %d counted, %d skipped, %d errors\n",
			result.Window, result.Processed, result.Skipped, result.Errors)
	})
}
