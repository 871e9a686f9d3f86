// Package duckdb provides the small DuckDB layer resmon stores sessions in: a
// reflection-based table wrapper and a SELECT builder.
//
// # Tables
//
// Table maps a struct with `duckdb` tags onto a table. Primary key columns are
// tagged "pk"; upserts update every other column:
//
//	type sampleRow struct {
//	    SessionID string  `duckdb:"session_id,pk"`
//	    Seq       int32   `duckdb:"seq,pk"`
//	    CPU       float64 `duckdb:"cpu_percent"`
//	}
//
//	samples := duckdb.NewTable[sampleRow](tx, "samples")
//	err := samples.BatchUpsert(ctx, rows)
//
// Writes retry DuckDB transaction conflicts with retry.StorageConfig, which
// happen when `resmon report` reads a file while a recording is saved to it.
//
// # Query Builder
//
//	q, args, err := duckdb.NewQueryBuilder("sessions").
//	    Select("id", "started_at").
//	    Eq("target_name", name).
//	    OrderBy("-started_at").
//	    Limit(10).
//	    Build()
//
// The builder only generates SQL; empty string filters are skipped.
package duckdb
