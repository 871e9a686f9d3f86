package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/coral-mesh/resmon/internal/retry"
)

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// column maps one `duckdb:"name[,pk][,immutable]"` tagged field.
type column struct {
	name      string
	field     int
	pk        bool
	immutable bool
}

// Table maps struct type T onto a table. Columns are the tagged fields in
// declaration order; immutable columns keep their first written value on
// upsert.
type Table[T any] struct {
	db      Execer
	name    string
	columns []column
	upsert  string
}

// NewTable creates a Table for T, which must be a struct with `duckdb` tags.
// db may be a transaction, in which case writes join it.
func NewTable[T any](db Execer, tableName string) *Table[T] {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("duckdb.Table: %s is not a struct", t))
	}

	table := &Table[T]{db: db, name: tableName}
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("duckdb")
		if tag == "" || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		col := column{name: strings.TrimSpace(name), field: i}
		for _, opt := range strings.Split(opts, ",") {
			switch strings.TrimSpace(opt) {
			case "pk":
				col.pk = true
			case "immutable":
				col.immutable = true
			}
		}
		table.columns = append(table.columns, col)
	}
	table.upsert = table.buildUpsert()
	return table
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Columns returns the mapped column names in struct order.
func (t *Table[T]) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

func (t *Table[T]) primaryKey() []string {
	var pk []string
	for _, c := range t.columns {
		if c.pk {
			pk = append(pk, c.name)
		}
	}
	return pk
}

func (t *Table[T]) lookup(name string) (column, bool) {
	for _, c := range t.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (t *Table[T]) upsertQuery() string {
	return t.upsert
}

// buildUpsert renders INSERT ... ON CONFLICT DO UPDATE over the mutable
// columns, or DO NOTHING when every column is a key or immutable.
func (t *Table[T]) buildUpsert() string {
	names := t.Columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	// #nosec G201 - identifiers come from struct tags, never from input
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(names, ", "), placeholders)

	pk := t.primaryKey()
	if len(pk) == 0 {
		return query
	}

	var sets []string
	for _, c := range t.columns {
		if !c.pk && !c.immutable {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.name, c.name))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) %s", query, strings.Join(pk, ", "), action)
}

func (t *Table[T]) values(item *T) []any {
	val := reflect.ValueOf(item).Elem()
	values := make([]any, len(t.columns))
	for i, c := range t.columns {
		values[i] = val.Field(c.field).Interface()
	}
	return values
}

// Upsert writes one row, retrying on write-write conflicts.
func (t *Table[T]) Upsert(ctx context.Context, item *T) error {
	values := t.values(item)
	return retry.Do(ctx, retry.StorageConfig(), func() error {
		_, err := t.db.ExecContext(ctx, t.upsert, values...)
		return err
	}, isTransactionConflict)
}

// BatchUpsert writes items through one prepared statement. On a *sql.Tx the
// caller owns commit and rollback; on a *sql.DB the batch runs in its own
// transaction.
func (t *Table[T]) BatchUpsert(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}

	switch d := t.db.(type) {
	case *sql.Tx:
		return t.batch(ctx, d, items)
	case *sql.DB:
		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := t.batch(ctx, tx, items); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported Execer type for BatchUpsert: %T", t.db)
	}
}

func (t *Table[T]) batch(ctx context.Context, tx *sql.Tx, items []*T) error {
	stmt, err := tx.PrepareContext(ctx, t.upsert)
	if err != nil {
		return fmt.Errorf("prepare %s upsert: %w", t.name, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, item := range items {
		if _, err := stmt.ExecContext(ctx, t.values(item)...); err != nil {
			return fmt.Errorf("upsert %s row %d: %w", t.name, i, err)
		}
	}
	return nil
}

// Get returns the row whose first key column equals id, or sql.ErrNoRows.
func (t *Table[T]) Get(ctx context.Context, id any) (*T, error) {
	pk := t.primaryKey()
	if len(pk) == 0 {
		return nil, errors.New("no primary key defined for table")
	}

	// #nosec G201 - identifiers come from struct tags, never from input
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(t.Columns(), ", "), t.name, pk[0])
	return t.scan(t.db.QueryRowContext(ctx, query, id))
}

// Delete removes every row whose column equals value.
func (t *Table[T]) Delete(ctx context.Context, columnName string, value any) error {
	if _, ok := t.lookup(columnName); !ok {
		return fmt.Errorf("column %s does not exist in table %s", columnName, t.name)
	}

	// #nosec G201 - column was checked against the struct tags
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, columnName)
	return retry.Do(ctx, retry.StorageConfig(), func() error {
		_, err := t.db.ExecContext(ctx, query, value)
		return err
	}, isTransactionConflict)
}

// Query selects the table's columns through b and scans every row into T.
func (t *Table[T]) Query(ctx context.Context, b *Builder) ([]*T, error) {
	query, args, err := b.Select(t.Columns()...).Build()
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var items []*T
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *Table[T]) scan(row scanner) (*T, error) {
	var item T
	val := reflect.ValueOf(&item).Elem()
	dest := make([]any, len(t.columns))
	for i, c := range t.columns {
		dest[i] = val.Field(c.field).Addr().Interface()
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &item, nil
}

// isTransactionConflict matches DuckDB's optimistic concurrency failures.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"Conflict on update", "conflict", "TransactionContext Error", "serialization"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
