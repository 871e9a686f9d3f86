package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	duckdbDriver "github.com/marcboeker/go-duckdb"

	"github.com/coral-mesh/resmon/internal/retry"
)

// bootQueries run on every pooled connection.
var bootQueries = []string{
	"SET TimeZone = 'UTC'",
}

// Open opens the DuckDB database at path ("" for in-memory) and waits for
// the file lock, which another resmon process may hold briefly.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	connector, err := duckdbDriver.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, query := range bootQueries {
			// Non-fatal: the ICU extension providing time zones may be missing.
			_, _ = execer.ExecContext(context.Background(), query, nil)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create duckdb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	err = retry.Do(ctx, retry.StorageConfig(), func() error {
		return db.PingContext(ctx)
	}, isLockConflict)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open duckdb database %q: %w", path, err)
	}
	return db, nil
}

func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Could not set lock") || strings.Contains(msg, "Conflicting lock")
}
