// Package cli implements the trafficroute command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trafficroute/trafficroute/internal/trip"
)

// Builder creates the orchestrator for one invocation. An empty locale
// keeps the configured one.
type Builder func(locale string) (*trip.Orchestrator, error)

// NewRootCommand assembles the trafficroute command tree.
func NewRootCommand(version string, build Builder) *cobra.Command {
	root := &cobra.Command{
		Use:   "trafficroute",
		Short: "Driving routes with predicted traffic",
		Long: `trafficroute looks up a driving route, asks the prediction service for
the expected traffic level and prints the traffic-adjusted travel time.`,
		SilenceUsage: true,
	}

	root.AddCommand(newPredictCommand(build))
	root.AddCommand(newVersionCommand(version))
	return root
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trafficroute version %s\n", version)
		},
	}
}
