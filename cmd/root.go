package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the gerritevents command line. It is called by main.main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the gerritevents command with its subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gerritevents",
		Short:        "Receive Gerrit events and route them to message brokers",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDecodeCmd())
	return cmd
}
