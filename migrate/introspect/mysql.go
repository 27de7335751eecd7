package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MySQLIntrospector reads information_schema of the current database.
type MySQLIntrospector struct {
	q Querier
}

func (i *MySQLIntrospector) Tables(ctx context.Context) ([]TableDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return scanTables(rows)
}

func (i *MySQLIntrospector) Columns(ctx context.Context, schema, table string) ([]ColumnDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT
			table_schema,
			column_name,
			column_type,
			is_nullable,
			column_default,
			extra,
			column_key
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name = ?
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnDefinition
	for rows.Next() {
		col := ColumnDefinition{Table: table}
		var isNullable, extra, key string
		var defaultValue sql.NullString
		if err := rows.Scan(&col.Schema, &col.Name, &col.Type, &isNullable, &defaultValue, &extra, &key); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		col.PrimaryKey = key == "PRI"
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (i *MySQLIntrospector) Indexes(ctx context.Context, schema, table string) ([]IndexDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT index_name, column_name, non_unique
		FROM information_schema.statistics
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_name = ?
		  AND index_name != 'PRIMARY'
		ORDER BY index_name, seq_in_index
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	return groupIndexes(rows)
}
