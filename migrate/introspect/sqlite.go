package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteIntrospector reads sqlite_master and table pragmas.
type SQLiteIntrospector struct {
	q Querier
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (i *SQLiteIntrospector) Tables(ctx context.Context) ([]TableDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT 'main', name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return scanTables(rows)
}

func (i *SQLiteIntrospector) Columns(ctx context.Context, _, table string) ([]ColumnDefinition, error) {
	rows, err := i.q.QueryContext(ctx, "PRAGMA table_info("+quoteSQLite(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnDefinition
	for rows.Next() {
		col := ColumnDefinition{Schema: "main", Table: table}
		var cid, notNull, pk int
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.PrimaryKey = pk > 0
		col.Nullable = notNull == 0 && !col.PrimaryKey
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		col.AutoIncrement = col.PrimaryKey && strings.EqualFold(col.Type, "INTEGER")
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (i *SQLiteIntrospector) Indexes(ctx context.Context, _, table string) ([]IndexDefinition, error) {
	rows, err := i.q.QueryContext(ctx, `
		SELECT il.name, ii.name, il."unique" = 0
		FROM pragma_index_list(?) AS il
		JOIN pragma_index_info(il.name) AS ii
		WHERE il.origin = 'c'
		ORDER BY il.name, ii.seqno
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	return groupIndexes(rows)
}
