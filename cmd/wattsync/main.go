package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	serveFlags := &ServeFlags{}
	statusFlags := &StatusFlags{}
	controlFlags := &ControlFlags{}
	syncLogFlags := &SyncLogFlags{}
	validateFlags := &ValidateFlags{}

	root := createRootCommand()
	root.AddCommand(
		createServeCommand(serveFlags),
		createStatusCommand(statusFlags),
		createBackfillCommand(controlFlags),
		createReseedCommand(controlFlags),
		createSyncLogCommand(syncLogFlags),
		createValidateCommand(validateFlags),
	)
	return root
}

func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wattsync",
		Short: "Energy consumption recorder and reconciliation daemon",
		Long: `Wattsync records live energy readings from a home-automation hub,
reconciles aggregated statistics on a schedule, and recovers from
silent event-stream stalls.

Examples:
  wattsync serve --config=wattsync.toml   # Start daemon
  wattsync status                          # Engine snapshot
  wattsync backfill                        # Run one reconciliation now
  wattsync synclog --limit=10              # Recent sync audit entries`,
	}
}
