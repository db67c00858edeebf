package main // Entry point package

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command.  Without a subcommand it serves HTTP.
func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "session-auth",
		Short:        "Credential and session lifecycle service",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(
		serve,
		newWorkerCmd(),
		newMigrateCmd(),
	)
	return root
}
