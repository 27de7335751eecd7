package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresIntrospector reads information_schema and pg_catalog.
type PostgresIntrospector struct {
	q Querier
}

func (i *PostgresIntrospector) Tables(ctx context.Context) ([]TableDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return scanTables(rows)
}

func (i *PostgresIntrospector) Columns(ctx context.Context, schema, table string) ([]ColumnDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT
			c.table_schema,
			c.column_name,
			c.data_type,
			c.character_maximum_length,
			c.is_nullable,
			c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
				  ON tc.constraint_name = kcu.constraint_name
				 AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
				  AND tc.table_schema = c.table_schema
				  AND tc.table_name = c.table_name
				  AND kcu.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnDefinition
	for rows.Next() {
		col := ColumnDefinition{Table: table}
		var dataType, isNullable string
		var maxLength sql.NullInt64
		var defaultValue sql.NullString
		if err := rows.Scan(&col.Schema, &col.Name, &dataType, &maxLength, &isNullable, &defaultValue, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Type = dataType
		if maxLength.Valid {
			col.Type = fmt.Sprintf("%s(%d)", dataType, maxLength.Int64)
		}
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid {
			col.Default = &defaultValue.String
			col.AutoIncrement = strings.HasPrefix(defaultValue.String, "nextval(")
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (i *PostgresIntrospector) Indexes(ctx context.Context, schema, table string) ([]IndexDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT ic.relname, a.attname, NOT ix.indisunique
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = COALESCE(NULLIF($1, ''), current_schema())
		  AND t.relname = $2
		  AND NOT ix.indisprimary
		ORDER BY ic.relname, k.ord
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	return groupIndexes(rows)
}
