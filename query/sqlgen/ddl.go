package sqlgen

import (
	"strings"
)

// ColumnSpec describes a column in DDL.
type ColumnSpec struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Automatic  bool
	// Default is inline SQL text, empty for none.
	Default string
}

// ForeignKeySpec describes a foreign-key constraint.
type ForeignKeySpec struct {
	Name      string
	Column    string
	RefSchema string
	RefTable  string
	RefColumn string
	OnDelete  string
	OnUpdate  string
}

// IndexSpec describes a non-unique index.
type IndexSpec struct {
	Name    string
	Columns []string
}

// ColumnDef renders a column definition.
func ColumnDef(d Dialect, c ColumnSpec) string {
	if c.PrimaryKey {
		return d.Quote(c.Name) + " " + d.KeyColumn(c.SQLType, c.Automatic)
	}
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(c.SQLType)
	b.WriteString(" ")
	b.WriteString(nullability(c.Nullable))
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

// ForeignKeyClause renders CONSTRAINT ... FOREIGN KEY ... REFERENCES ...
func ForeignKeyClause(d Dialect, fk ForeignKeySpec) string {
	var b strings.Builder
	if fk.Name != "" {
		b.WriteString("CONSTRAINT ")
		b.WriteString(d.Quote(fk.Name))
		b.WriteString(" ")
	}
	b.WriteString("FOREIGN KEY (")
	b.WriteString(d.Quote(fk.Column))
	b.WriteString(") REFERENCES ")
	b.WriteString(QuoteQualified(d, fk.RefSchema, fk.RefTable))
	b.WriteString(" (")
	b.WriteString(d.Quote(fk.RefColumn))
	b.WriteString(")")
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE ")
		b.WriteString(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(fk.OnUpdate)
	}
	return b.String()
}

func quoteAll(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// CreateTable renders CREATE TABLE with columns, foreign keys and, where
// the dialect allows it, inline indexes.
func CreateTable(d Dialect, schema, table string, cols []ColumnSpec, fks []ForeignKeySpec, indexes []IndexSpec) string {
	var parts []string
	for _, c := range cols {
		parts = append(parts, ColumnDef(d, c))
	}
	for _, ix := range indexes {
		parts = append(parts, "INDEX "+d.Quote(ix.Name)+" ("+quoteAll(d, ix.Columns)+")")
	}
	for _, fk := range fks {
		parts = append(parts, ForeignKeyClause(d, fk))
	}
	return "CREATE TABLE " + QuoteQualified(d, schema, table) + " (" + strings.Join(parts, ", ") + ")"
}

// CreateIndex renders a standalone CREATE INDEX.
func CreateIndex(d Dialect, schema, table string, ix IndexSpec) string {
	return "CREATE INDEX " + d.Quote(ix.Name) + " ON " + QuoteQualified(d, schema, table) + " (" + quoteAll(d, ix.Columns) + ")"
}

// AlterTable renders ALTER TABLE with comma separated actions.
func AlterTable(d Dialect, schema, table string, actions ...string) string {
	return "ALTER TABLE " + QuoteQualified(d, schema, table) + " " + strings.Join(actions, ", ")
}

// AddForeignKey renders ALTER TABLE ... ADD CONSTRAINT.
func AddForeignKey(d Dialect, schema, table string, fk ForeignKeySpec) string {
	return AlterTable(d, schema, table, "ADD "+ForeignKeyClause(d, fk))
}

// DropTable renders DROP TABLE IF EXISTS.
func DropTable(d Dialect, schema, table string) string {
	return "DROP TABLE IF EXISTS " + QuoteQualified(d, schema, table)
}
