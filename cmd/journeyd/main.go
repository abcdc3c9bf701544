// Package main implements the journeyd CLI for operating the journey
// tracking store: stage transitions, scoring, batch jobs, and the
// background daemon.
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML config file location.
	configPath string
	// outputJSON switches command output to JSON.
	outputJSON bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "journeyd",
	Short: "Behavior-change journey tracking",
	Long: `journeyd tracks users through a six-stage behavior-change lifecycle:
authorization, observation, activation, practice, stability, graduation.

It maintains the authoritative journey record per user, computes agency
and trust scores from behavioral signals, keeps an append-only audit
log of every transition, and reconciles the denormalized cache that
serves external fast paths.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/journeyd/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult emits v as JSON when --json is set, otherwise calls human.
func printResult(v any, human func()) error {
	if outputJSON {
		return printJSON(v)
	}
	human()
	return nil
}
