package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/cli/status"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/sysinfo"
	"github.com/coral-mesh/resmon/pkg/version"
)

// newStatusCmd creates the readiness check command.
func newStatusCmd(g *helpers.GlobalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check that this machine is ready to record",
		Long: `Check privileges, the telemetry tool, the output directory and the
configuration, and print the detected hardware.

Exits non-zero when a check fails. Warnings (for example running without sudo)
still allow recording with reduced telemetry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := helpers.Logger(cfg)
			if err != nil {
				return err
			}
			defer rerrors.DeferClose(logger, closer, "failed to close log file")

			provider := status.NewProvider(cfg, g.Loader().Path(), sysinfo.NewDetector(logger))
			r := provider.Collect(cmd.Context(), version.Version)

			out := cmd.OutOrStdout()
			if format == string(helpers.FormatJSON) {
				err = status.OutputJSON(out, r)
			} else {
				err = status.OutputTable(out, r)
			}
			if err != nil {
				return err
			}
			if !r.Ready() {
				return fmt.Errorf("environment is not ready to record")
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, []helpers.OutputFormat{
		helpers.FormatTable,
		helpers.FormatJSON,
	})

	return cmd
}
