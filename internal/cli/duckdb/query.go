package duckdb

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
)

var queryFormats = []helpers.OutputFormat{
	helpers.FormatTable,
	helpers.FormatCSV,
	helpers.FormatJSON,
}

// NewQueryCmd creates the query subcommand for one-shot SQL queries.
func NewQueryCmd(g *helpers.GlobalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "query <file.duckdb> <sql>",
		Short: "Execute a one-shot SQL query against a session database",
		Long: `Executes a SQL query against a session database and prints the results
as a table, CSV or JSON.

Examples:
  # Samples of the latest session
  resmon db query runs.duckdb "SELECT * FROM samples WHERE session_id = (SELECT id FROM sessions ORDER BY started_at DESC LIMIT 1)"

  # Annotations as JSON
  resmon db query runs.duckdb "SELECT seq, label, timestamp FROM annotations" -f json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, queryFormats); err != nil {
				return err
			}
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := helpers.Logger(cfg)
			if err != nil {
				return err
			}
			defer rerrors.DeferClose(logger, closer, "failed to close log file")

			ctx := cmd.Context()
			db, err := openFile(ctx, args[0])
			if err != nil {
				return err
			}
			defer rerrors.DeferClose(logger, db, "failed to close database")

			logger.Debug().Str("query", args[1]).Msg("Executing query")
			rows, err := db.QueryContext(ctx, args[1])
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			defer rerrors.DeferClose(logger, rows, "failed to close rows")

			out := cmd.OutOrStdout()
			switch helpers.OutputFormat(format) {
			case helpers.FormatCSV:
				return printResultsAsCSV(rows, out)
			case helpers.FormatJSON:
				return printResultsAsJSON(rows, out)
			default:
				n, err := printResultsAsTable(rows, out)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n(%d rows)\n", n)
				return nil
			}
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, queryFormats)

	return cmd
}

// scanRows calls fn with the values of every row.
func scanRows(rows *sql.Rows, fn func(values []any) error) error {
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to get columns: %w", err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// printResultsAsTable prints query results in a formatted table and
// returns the row count.
func printResultsAsTable(rows *sql.Rows, out io.Writer) (int, error) {
	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to get columns: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	writeCells(w, columns)
	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	writeCells(w, sep)

	count := 0
	err = scanRows(rows, func(values []any) error {
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		writeCells(w, cells)
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, w.Flush()
}

func writeCells(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

// printResultsAsCSV prints query results in CSV format.
func printResultsAsCSV(rows *sql.Rows, out io.Writer) error {
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to get columns: %w", err)
	}

	w := csv.NewWriter(out)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	err = scanRows(rows, func(values []any) error {
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		return w.Write(record)
	})
	if err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// printResultsAsJSON prints query results as a JSON array of objects.
func printResultsAsJSON(rows *sql.Rows, out io.Writer) error {
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to get columns: %w", err)
	}

	results := []map[string]any{}
	err = scanRows(rows, func(values []any) error {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = jsonValue(values[i])
		}
		results = append(results, row)
		return nil
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// formatValue formats a value for display in table or CSV output.
func formatValue(val any) string {
	if val == nil {
		return "NULL"
	}

	switch v := val.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func jsonValue(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
