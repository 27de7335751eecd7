package driver

import (
	"fmt"

	"github.com/folkelib/elm/mapping"
)

// typeTable is the column type of each kind for one backend.
type typeTable struct {
	kinds map[mapping.Kind]string
	// sized formats a string column with a maximum length.
	sized func(n int) string
	// keyString is the type of an unsized string used as a key or foreign
	// key, where unbounded types cannot be indexed.
	keyString string
}

func (t typeTable) sqlType(p *mapping.PropertyMapping, isForeignKey bool) string {
	if p.IsReference() {
		if p.Reference.Key == nil {
			return t.kinds[mapping.KindInt64]
		}
		return t.sqlType(p.Reference.Key, true)
	}
	kind := p.Kind
	if p.IsJSON {
		kind = mapping.KindJSON
	}
	switch kind {
	case mapping.KindString, mapping.KindText:
		if p.MaxLength > 0 {
			return t.sized(p.MaxLength)
		}
		if (p.IsKey || isForeignKey || p.Index != "") && t.keyString != "" {
			return t.keyString
		}
	}
	if s, ok := t.kinds[kind]; ok {
		return s
	}
	return t.kinds[mapping.KindString]
}

func varchar(n int) string  { return fmt.Sprintf("VARCHAR(%d)", n) }
func nvarchar(n int) string { return fmt.Sprintf("NVARCHAR(%d)", n) }

var mysqlTypes = typeTable{
	kinds: map[mapping.Kind]string{
		mapping.KindBool:    "TINYINT(1)",
		mapping.KindInt8:    "TINYINT",
		mapping.KindInt16:   "SMALLINT",
		mapping.KindInt32:   "INT",
		mapping.KindInt64:   "BIGINT",
		mapping.KindFloat32: "FLOAT",
		mapping.KindFloat64: "DOUBLE",
		mapping.KindString:  "VARCHAR(255)",
		mapping.KindText:    "VARCHAR(255)",
		mapping.KindTime:    "DATETIME(6)",
		mapping.KindUUID:    "CHAR(36)",
		mapping.KindBytes:   "LONGBLOB",
		mapping.KindJSON:    "JSON",
	},
	sized: varchar,
}

var postgresTypes = typeTable{
	kinds: map[mapping.Kind]string{
		mapping.KindBool:    "BOOLEAN",
		mapping.KindInt8:    "SMALLINT",
		mapping.KindInt16:   "SMALLINT",
		mapping.KindInt32:   "INTEGER",
		mapping.KindInt64:   "BIGINT",
		mapping.KindFloat32: "REAL",
		mapping.KindFloat64: "DOUBLE PRECISION",
		mapping.KindString:  "TEXT",
		mapping.KindText:    "TEXT",
		mapping.KindTime:    "TIMESTAMP",
		mapping.KindUUID:    "UUID",
		mapping.KindBytes:   "BYTEA",
		mapping.KindJSON:    "JSONB",
	},
	sized: varchar,
}

var sqlServerTypes = typeTable{
	kinds: map[mapping.Kind]string{
		mapping.KindBool:    "BIT",
		mapping.KindInt8:    "SMALLINT",
		mapping.KindInt16:   "SMALLINT",
		mapping.KindInt32:   "INT",
		mapping.KindInt64:   "BIGINT",
		mapping.KindFloat32: "REAL",
		mapping.KindFloat64: "FLOAT",
		mapping.KindString:  "NVARCHAR(MAX)",
		mapping.KindText:    "NVARCHAR(MAX)",
		mapping.KindTime:    "DATETIME2",
		mapping.KindUUID:    "UNIQUEIDENTIFIER",
		mapping.KindBytes:   "VARBINARY(MAX)",
		mapping.KindJSON:    "NVARCHAR(MAX)",
	},
	sized:     nvarchar,
	keyString: "NVARCHAR(450)",
}

var sqliteTypes = typeTable{
	kinds: map[mapping.Kind]string{
		mapping.KindBool:    "INTEGER",
		mapping.KindInt8:    "INTEGER",
		mapping.KindInt16:   "INTEGER",
		mapping.KindInt32:   "INTEGER",
		mapping.KindInt64:   "INTEGER",
		mapping.KindFloat32: "REAL",
		mapping.KindFloat64: "REAL",
		mapping.KindString:  "TEXT",
		mapping.KindText:    "TEXT",
		mapping.KindTime:    "DATETIME",
		mapping.KindUUID:    "TEXT",
		mapping.KindBytes:   "BLOB",
		mapping.KindJSON:    "TEXT",
	},
	sized: varchar,
}
