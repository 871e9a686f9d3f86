// Package duckdb provides the 'resmon db' commands for querying session
// databases directly with SQL.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/duckdb"
)

// NewDBCmd creates the db command.
func NewDBCmd(g *helpers.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Query session databases with SQL",
		Long: `Query DuckDB files written by 'resmon record' using SQL.

Session data lives in three tables: sessions, samples and annotations.

Examples:
  # Peak memory per session
  resmon db query runs.duckdb "SELECT session_id, max(memory_bytes) FROM samples GROUP BY session_id"

  # Query with CSV output
  resmon db query runs.duckdb "SELECT * FROM annotations" -f csv

  # Interactive shell
  resmon db shell runs.duckdb`,
	}

	cmd.AddCommand(NewQueryCmd(g))
	cmd.AddCommand(NewShellCmd(g))

	return cmd
}

// openFile opens an existing database file. DuckDB would otherwise create
// an empty database for a mistyped path.
func openFile(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return duckdb.Open(ctx, path)
}
