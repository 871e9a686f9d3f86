package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/sysinfo"
)

// newSysinfoCmd creates the command printing the capability descriptor.
func newSysinfoCmd(g *helpers.GlobalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "sysinfo",
		Short: "Show the detected hardware",
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

			desc := sysinfo.NewDetector(logger).Detect(cmd.Context())
			out := cmd.OutOrStdout()

			if format == string(helpers.FormatTable) {
				fmt.Fprintln(out, desc.String())
				return nil
			}
			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(desc, out)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, []helpers.OutputFormat{
		helpers.FormatTable,
		helpers.FormatJSON,
		helpers.FormatYAML,
	})

	return cmd
}
