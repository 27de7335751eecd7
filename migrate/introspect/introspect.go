// Package introspect reads live table, column and index metadata.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier runs queries; *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableDefinition is a live base table.
type TableDefinition struct {
	Schema string
	Name   string
}

// ColumnDefinition is a live column. Type is the SQL type text as the
// database reports it, such as "varchar(255)".
type ColumnDefinition struct {
	Schema        string
	Table         string
	Name          string
	Type          string
	Nullable      bool
	Default       *string
	AutoIncrement bool
	PrimaryKey    bool
}

// IndexDefinition is a live secondary index.
type IndexDefinition struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// Introspector reads metadata of one database. An empty schema means the
// connection's current schema.
type Introspector interface {
	Tables(ctx context.Context) ([]TableDefinition, error)
	Columns(ctx context.Context, schema, table string) ([]ColumnDefinition, error)
	Indexes(ctx context.Context, schema, table string) ([]IndexDefinition, error)
}

// New returns the introspector for provider.
func New(q Querier, provider string) (Introspector, error) {
	switch provider {
	case "postgresql", "postgres":
		return &PostgresIntrospector{q: q}, nil
	case "mysql":
		return &MySQLIntrospector{q: q}, nil
	case "sqlite", "sqlite3":
		return &SQLiteIntrospector{q: q}, nil
	case "sqlserver", "mssql":
		return &SQLServerIntrospector{q: q}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

// FindColumn returns the column named name, case-insensitively.
func FindColumn(cols []ColumnDefinition, name string) (ColumnDefinition, bool) {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

func scanTables(rows *sql.Rows) ([]TableDefinition, error) {
	defer rows.Close()
	var tables []TableDefinition
	for rows.Next() {
		var t TableDefinition
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// groupIndexes folds (index, column, non-unique) rows ordered by index and
// column position.
func groupIndexes(rows *sql.Rows) ([]IndexDefinition, error) {
	defer rows.Close()
	var out []IndexDefinition
	for rows.Next() {
		var name, column string
		var nonUnique bool
		if err := rows.Scan(&name, &column, &nonUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].Name == name {
			out[n-1].Columns = append(out[n-1].Columns, column)
			continue
		}
		out = append(out, IndexDefinition{Name: name, Columns: []string{column}, IsUnique: !nonUnique})
	}
	return out, rows.Err()
}
