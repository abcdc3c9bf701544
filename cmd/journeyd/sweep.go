package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepUser string

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepUser, "user", "", "Check a single user instead of sweeping everyone")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reconcile cache snapshots against journey records",
	Long: `Walk tracked users, compare each cache snapshot against the
authoritative record, and rewrite stale snapshots. The record always
wins.

Examples:
  # Full sweep
  journeyd sweep

  # Single user
  journeyd sweep --user user-42`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if sweepUser != "" {
		result, err := a.guard.Check(cmd.Context(), sweepUser)
		if err != nil {
			return err
		}
		return printResult(result, func() {
			if result.Consistent {
				fmt.Printf("%s: snapshot consistent\n", result.UserID)
				return
			}
			fmt.Printf("%s: drift in %v, repaired\n", result.UserID, result.Drifted)
		})
	}

	result, err := a.guard.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(result, func() {
		fmt.Printf("Checked %d users: %d inconsistent, %d repaired, %d errors\n",
			result.Checked, result.Inconsistent, result.Repaired, result.Errors)
	})
}
