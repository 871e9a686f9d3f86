// Package report implements the 'resmon report' command, which reads
// sessions back from a DuckDB file written by 'resmon record'.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/export"
	"github.com/coral-mesh/resmon/internal/report"
	"github.com/coral-mesh/resmon/internal/session"
)

// sessionListing is one row of --list output.
type sessionListing struct {
	ID        string `header:"SESSION" json:"id" yaml:"id"`
	Target    string `header:"TARGET" json:"target" yaml:"target"`
	PID       int32  `header:"PID" json:"pid" yaml:"pid"`
	StartedAt string `header:"STARTED" json:"started_at" yaml:"started_at"`
	Duration  string `header:"DURATION" json:"duration" yaml:"duration"`
	Samples   int    `header:"SAMPLES" json:"samples" yaml:"samples"`
	Reason    string `header:"REASON" json:"reason" yaml:"reason"`
	Telemetry string `header:"TELEMETRY" json:"telemetry" yaml:"telemetry"`
}

var listFormats = []helpers.OutputFormat{
	helpers.FormatTable,
	helpers.FormatJSON,
	helpers.FormatYAML,
	helpers.FormatCSV,
}

// NewReportCmd creates the report command.
func NewReportCmd(g *helpers.GlobalFlags) *cobra.Command {
	var (
		sessionID string
		list      bool
		format    string
		csvPath   string
		otlpPath  string
		width     int
		height    int
		noChart   bool
	)

	cmd := &cobra.Command{
		Use:   "report <file.duckdb>",
		Short: "Summarize and chart a recorded session",
		Long: `Reads a session back from a DuckDB file written by 'resmon record', prints
its summary and chart, and optionally re-exports it.

Examples:
  # Summary and chart of the most recent session in the file
  resmon report phocus_monitor_20250314_092653.duckdb

  # List every session in the file as JSON
  resmon report sessions.duckdb --list -f json

  # Re-export a session to CSV
  resmon report sessions.duckdb --session 3f1c... --csv export.csv`,
		Args: cobra.ExactArgs(1),
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

			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}

			ctx := cmd.Context()
			store, err := export.OpenDuckDB(ctx, path, logger)
			if err != nil {
				return err
			}
			defer rerrors.DeferClose(logger, store, "failed to close database")

			out := cmd.OutOrStdout()
			if list {
				if err := helpers.ValidateFormat(format, listFormats); err != nil {
					return err
				}
				return listSessions(ctx, store, helpers.OutputFormat(format), out)
			}

			stored, err := store.LoadSession(ctx, sessionID)
			if err != nil {
				return err
			}
			printSession(out, stored, report.ChartOptions{Width: width, Height: height}, !noChart)

			if csvPath != "" {
				if err := export.SaveCSV(csvPath, stored.Dataset, stored.Meta, logger); err != nil {
					return err
				}
				fmt.Fprintf(out, "Data saved to: %s\n", csvPath)
			}
			if otlpPath != "" {
				if err := export.SaveOTLP(otlpPath, stored.Dataset, stored.Meta, logger); err != nil {
					return err
				}
				fmt.Fprintf(out, "Data saved to: %s\n", otlpPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (default: most recent)")
	cmd.Flags().BoolVar(&list, "list", false, "List the sessions in the file")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, listFormats)
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write the session as CSV to this path")
	cmd.Flags().StringVar(&otlpPath, "otlp", "", "Write the session as OTLP JSON to this path")
	cmd.Flags().IntVar(&width, "width", 0, "Chart width in columns")
	cmd.Flags().IntVar(&height, "height", 0, "Chart panel height in rows")
	cmd.Flags().BoolVar(&noChart, "no-chart", false, "Do not print the chart")

	return cmd
}

func listSessions(ctx context.Context, store *export.DuckDBStore, format helpers.OutputFormat, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	rows := make([]sessionListing, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, sessionListing{
			ID:        s.SessionID,
			Target:    s.TargetName,
			PID:       s.TargetPID,
			StartedAt: s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			Duration:  s.EndedAt.Sub(s.StartedAt).Round(time.Second).String(),
			Samples:   s.Samples,
			Reason:    s.Reason,
			Telemetry: s.TelemetryStatus,
		})
	}

	if len(rows) == 0 && format == helpers.FormatTable {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}
	return formatter.Format(rows, out)
}

func printSession(out io.Writer, stored *export.StoredSession, chart report.ChartOptions, withChart bool) {
	meta := stored.Meta
	fmt.Fprintf(out, "Session %s: %s (PID %d)\n", meta.SessionID, meta.TargetName, meta.TargetPID)
	if sys := meta.System.String(); sys != "" {
		fmt.Fprintf(out, "System: %s\n", sys)
	}
	fmt.Fprintf(out, "Recorded: %s, interval %s, telemetry %s\n\n",
		stored.Dataset.StartedAt.Local().Format("2006-01-02 15:04:05"), meta.Interval, meta.TelemetryStatus)

	fmt.Fprint(out, report.Summary(stored.Dataset, session.Reason(meta.Reason).Describe()))
	if withChart && len(stored.Dataset.Samples) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, report.Chart(stored.Dataset, chart))
	}
}
