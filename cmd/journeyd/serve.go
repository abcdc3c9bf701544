package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background batch scheduler",
	Long: `Run the batch scheduler in the foreground until interrupted.

Each scheduled run counts stability days and reconciles cache
snapshots; daily windows are claimed in the store, so overlapping
instances do not double-process.

Examples:
  journeyd serve
  JOURNEYD_SCHEDULER_INTERVAL=1h journeyd serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sched.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	a.logger.Info("shutting down", zap.String("signal", sig.String()))
	return a.sched.Stop()
}
