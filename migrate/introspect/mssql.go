package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLServerIntrospector reads INFORMATION_SCHEMA and sys catalog views.
type SQLServerIntrospector struct {
	q Querier
}

func (i *SQLServerIntrospector) Tables(ctx context.Context) ([]TableDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return scanTables(rows)
}

func (i *SQLServerIntrospector) Columns(ctx context.Context, schema, table string) ([]ColumnDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT
			c.TABLE_SCHEMA,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity'),
			CASE WHEN EXISTS (
				SELECT 1
				FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
				JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
				  ON tc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
				WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
				  AND k.TABLE_SCHEMA = c.TABLE_SCHEMA
				  AND k.TABLE_NAME = c.TABLE_NAME
				  AND k.COLUMN_NAME = c.COLUMN_NAME
			) THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME())
		  AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnDefinition
	for rows.Next() {
		col := ColumnDefinition{Table: table}
		var dataType, isNullable string
		var maxLength, identity sql.NullInt64
		var defaultValue sql.NullString
		var pk int
		if err := rows.Scan(&col.Schema, &col.Name, &dataType, &maxLength, &isNullable, &defaultValue, &identity, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Type = dataType
		switch {
		case maxLength.Valid && maxLength.Int64 == -1:
			col.Type = dataType + "(max)"
		case maxLength.Valid && !strings.Contains(dataType, "text"):
			col.Type = fmt.Sprintf("%s(%d)", dataType, maxLength.Int64)
		}
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		col.AutoIncrement = identity.Valid && identity.Int64 == 1
		col.PrimaryKey = pk == 1
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (i *SQLServerIntrospector) Indexes(ctx context.Context, schema, table string) ([]IndexDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT i.name, c.name, CAST(CASE WHEN i.is_unique = 1 THEN 0 ELSE 1 END AS bit)
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE i.object_id = OBJECT_ID(COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) + '.' + @p2)
		  AND i.is_primary_key = 0
		  AND i.name IS NOT NULL
		ORDER BY i.name, ic.key_ordinal
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	return groupIndexes(rows)
}
