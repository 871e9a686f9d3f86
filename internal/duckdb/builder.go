package duckdb

import (
	"errors"
	"fmt"
	"strings"
)

// Builder renders a single-table SELECT. It never executes anything.
type Builder struct {
	table   string
	columns []string
	filters []string
	args    []any
	order   []string
	limit   int
}

// NewQueryBuilder starts a SELECT over table.
func NewQueryBuilder(table string) *Builder {
	return &Builder{table: table}
}

// Select appends result columns or expressions.
//
//	Select("id", "started_at")
//	Select("session_id", "count(*) AS n")
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// Where adds a filter expression. Filters are joined with AND.
func (b *Builder) Where(expr string, args ...any) *Builder {
	b.filters = append(b.filters, expr)
	b.args = append(b.args, args...)
	return b
}

// Eq filters on column = value. An empty string value matches everything.
func (b *Builder) Eq(column string, value any) *Builder {
	if s, ok := value.(string); ok && s == "" {
		return b
	}
	return b.Where(column+" = ?", value)
}

// OrderBy appends sort keys; a "-" prefix sorts descending.
//
//	OrderBy("-started_at")       // newest first
//	OrderBy("session_id", "seq") // both ascending
func (b *Builder) OrderBy(columns ...string) *Builder {
	for _, col := range columns {
		if name, desc := strings.CutPrefix(col, "-"); desc {
			b.order = append(b.order, name+" DESC")
		} else {
			b.order = append(b.order, col)
		}
	}
	return b
}

// Limit caps the number of rows; zero means no limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build returns the query and its positional arguments. It can be called
// repeatedly with the same result.
func (b *Builder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errors.New("table name is required")
	}

	cols := "*"
	if len(b.columns) > 0 {
		cols = strings.Join(b.columns, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, b.table)
	args := append([]any(nil), b.args...)

	if len(b.filters) > 0 {
		sb.WriteString(" WHERE " + strings.Join(b.filters, " AND "))
	}
	if len(b.order) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(b.order, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args, nil
}
