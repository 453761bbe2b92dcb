package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the current version of btcwatcher
const Version = "0.3.0"

// GitCommit will be set by build flags
var GitCommit = "dev"

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version information for btcwatcher.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "btcwatcher version: %s\n", Version)
			fmt.Fprintf(out, "git commit: %s\n", GitCommit)
		},
	}

	return cmd
}
