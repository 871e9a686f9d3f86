// Package cli assembles the resmon command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/config"
	"github.com/coral-mesh/resmon/internal/cli/duckdb"
	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/cli/record"
	"github.com/coral-mesh/resmon/internal/cli/report"
	"github.com/coral-mesh/resmon/pkg/version"
)

// NewRootCmd builds the command tree with its own global flags.
func NewRootCmd() *cobra.Command {
	g := &helpers.GlobalFlags{}

	rootCmd := &cobra.Command{
		Use:   "resmon",
		Short: "resmon - process-tree resource monitor with hardware telemetry",
		Long: `Record the memory, CPU, threads and swap of a process and all of its
descendants, merged with host-wide GPU and Neural Engine telemetry, and label
the timeline with annotations typed while the workload runs.

Typical workflow:
  sudo resmon record --name Phocus -d 600   # record; type labels, Enter to annotate
  resmon report phocus_monitor_*.duckdb      # summary and chart afterwards
  resmon db shell phocus_monitor_*.duckdb    # ad-hoc SQL over the samples`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	g.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(record.NewRecordCmd(g))
	rootCmd.AddCommand(report.NewReportCmd(g))
	rootCmd.AddCommand(duckdb.NewDBCmd(g))
	rootCmd.AddCommand(config.NewConfigCmd(g))
	rootCmd.AddCommand(newStatusCmd(g))
	rootCmd.AddCommand(newSysinfoCmd(g))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.String())
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
