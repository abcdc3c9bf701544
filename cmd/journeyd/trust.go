package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/journeyd/internal/trust"
)

var (
	trustSignalFlags []string
	dialogCount      int
	conversionSource string
)

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustScoreCmd)
	trustCmd.AddCommand(trustActivationCmd)

	trustScoreCmd.Flags().StringArrayVar(&trustSignalFlags, "signal", nil, "Signal as name=value, repeatable")

	trustActivationCmd.Flags().IntVar(&dialogCount, "dialog-count", 0, "Completed dialog count")
	trustActivationCmd.Flags().StringVar(&conversionSource, "source", "", "Conversion source (e.g. coach_referred)")
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Trust scoring and activation eligibility",
	Long: `Compute the weighted trust score from relational signals, or
evaluate the Observer→Grower activation paths.

Examples:
  # Compute from provided signals
  journeyd trust score user-42 \
    --signal dialog_continuity=0.7 \
    --signal self_disclosure=0.5

  # Evaluate activation eligibility
  journeyd trust activation user-42 --dialog-count 4 --source coach_referred`,
}

var trustScoreCmd = &cobra.Command{
	Use:   "score <user-id>",
	Short: "Compute and persist the trust score",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustScore,
}

var trustActivationCmd = &cobra.Command{
	Use:   "activation <user-id>",
	Short: "Evaluate activation path eligibility",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustActivation,
}

func runTrustScore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	values, err := parseSignalFlags(trustSignalFlags)
	if err != nil {
		return err
	}
	a.provider.Set(args[0], values)

	result, err := a.trust.Compute(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(result, func() {
		fmt.Printf("User:  %s\n", result.UserID)
		fmt.Printf("Score: %.3f\n", result.Score)
		fmt.Printf("Level: %s\n", result.Level)
		fmt.Printf("Assessment allowed:        %v\n", result.Permissions.AllowAssessment)
		fmt.Printf("Deep intervention allowed: %v\n", result.Permissions.AllowDeepIntervention)
	})
}

func runTrustActivation(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.trust.EvaluateActivation(cmd.Context(), args[0], trust.ActivationInput{
		DialogCount:      dialogCount,
		ConversionSource: conversionSource,
	})
	if err != nil {
		return err
	}

	return printResult(result, func() {
		for _, p := range result.Paths {
			mark := "✗"
			if p.Met {
				mark = "✓"
			}
			fmt.Printf("  %s %s: %.2f (target %.2f)\n", mark, p.Path, p.Current, p.Target)
		}
		if result.Eligible {
			fmt.Printf("%s is eligible for activation\n", result.UserID)
		} else {
			fmt.Printf("%s is not eligible for activation\n", result.UserID)
		}
	})
}
