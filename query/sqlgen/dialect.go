// Package sqlgen renders SQL syntax trees as dialect-specific text.
package sqlgen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// ErrNotSupportedByDialect is returned for statements a backend cannot express.
var ErrNotSupportedByDialect = errors.New("elm: not supported by this dialect")

// InsertIDMode is how a dialect reads back a generated key.
type InsertIDMode int

const (
	// InsertIDResult reads sql.Result.LastInsertId.
	InsertIDResult InsertIDMode = iota
	// InsertIDReturning appends RETURNING <key> and scans the row.
	InsertIDReturning
	// InsertIDOutput adds OUTPUT INSERTED.<key> and scans the row.
	InsertIDOutput
)

// Dialect carries the syntax that differs between backends.
type Dialect interface {
	Name() string
	Quote(ident string) string

	// Placeholder returns the marker of the zero-based parameter index.
	Placeholder(index int) string
	// Positional reports that arguments bind by emission order.
	Positional() bool

	BooleanLiteral(v bool) string

	// Pagination returns the clause ending a SELECT. take < 0 means no limit.
	Pagination(skip, take int, ordered bool) string

	// KeyColumn returns the column type text of a primary key.
	KeyColumn(sqlType string, automatic bool) string
	InsertID() InsertIDMode
	DefaultValues() string

	AddColumn(columnDef string) string
	AlterColumn(column, sqlType string, nullable bool) (string, error)
}

// ForName returns the dialect registered under name.
func ForName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlserver", "mssql":
		return SQLServer{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("elm: unknown dialect %q", name)
}

// QuoteQualified quotes schema.name, or name alone without a schema.
func QuoteQualified(d Dialect, schema, name string) string {
	if schema == "" {
		return d.Quote(name)
	}
	return d.Quote(schema) + "." + d.Quote(name)
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

// MySQL quotes with backticks and binds positional ? parameters.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }
func (MySQL) Positional() bool       { return true }

func (MySQL) BooleanLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (MySQL) Pagination(skip, take int, _ bool) string {
	if take < 0 {
		return "LIMIT 18446744073709551615 OFFSET " + strconv.Itoa(skip)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", take, skip)
}

func (MySQL) KeyColumn(sqlType string, automatic bool) string {
	if automatic {
		return sqlType + " NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}
	return sqlType + " NOT NULL PRIMARY KEY"
}

func (MySQL) InsertID() InsertIDMode { return InsertIDResult }
func (MySQL) DefaultValues() string  { return "() VALUES ()" }

func (MySQL) AddColumn(columnDef string) string { return "ADD COLUMN " + columnDef }

func (d MySQL) AlterColumn(column, sqlType string, nullable bool) (string, error) {
	return fmt.Sprintf("MODIFY COLUMN %s %s %s", d.Quote(column), sqlType, nullability(nullable)), nil
}

// Postgres quotes with double quotes and binds $n parameters.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (Postgres) Placeholder(i int) string { return "$" + strconv.Itoa(i+1) }
func (Postgres) Positional() bool         { return false }

func (Postgres) BooleanLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (Postgres) Pagination(skip, take int, _ bool) string {
	if take < 0 {
		return "OFFSET " + strconv.Itoa(skip)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", take, skip)
}

func (Postgres) KeyColumn(sqlType string, automatic bool) string {
	if automatic {
		switch strings.ToUpper(sqlType) {
		case "SMALLINT":
			return "SMALLSERIAL PRIMARY KEY"
		case "INTEGER", "INT":
			return "SERIAL PRIMARY KEY"
		default:
			return "BIGSERIAL PRIMARY KEY"
		}
	}
	return sqlType + " NOT NULL PRIMARY KEY"
}

func (Postgres) InsertID() InsertIDMode { return InsertIDReturning }
func (Postgres) DefaultValues() string  { return "DEFAULT VALUES" }

func (Postgres) AddColumn(columnDef string) string { return "ADD COLUMN " + columnDef }

func (d Postgres) AlterColumn(column, sqlType string, nullable bool) (string, error) {
	c := d.Quote(column)
	null := "DROP NOT NULL"
	if !nullable {
		null = "SET NOT NULL"
	}
	return fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s, ALTER COLUMN %s %s", c, sqlType, c, sqlType, c, null), nil
}

// SQLServer quotes with brackets and binds named @ItemN parameters.
type SQLServer struct{}

func (SQLServer) Name() string { return "sqlserver" }

func (SQLServer) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (SQLServer) Placeholder(i int) string { return "@Item" + strconv.Itoa(i) }
func (SQLServer) Positional() bool         { return false }

func (SQLServer) BooleanLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (SQLServer) Pagination(skip, take int, ordered bool) string {
	var b strings.Builder
	if !ordered {
		b.WriteString("ORDER BY (SELECT NULL) ")
	}
	fmt.Fprintf(&b, "OFFSET %d ROWS", skip)
	if take >= 0 {
		fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", take)
	}
	return b.String()
}

func (SQLServer) KeyColumn(sqlType string, automatic bool) string {
	if automatic {
		return sqlType + " IDENTITY(1,1) NOT NULL PRIMARY KEY"
	}
	return sqlType + " NOT NULL PRIMARY KEY"
}

func (SQLServer) InsertID() InsertIDMode { return InsertIDOutput }
func (SQLServer) DefaultValues() string  { return "DEFAULT VALUES" }

func (SQLServer) AddColumn(columnDef string) string { return "ADD " + columnDef }

func (d SQLServer) AlterColumn(column, sqlType string, nullable bool) (string, error) {
	return fmt.Sprintf("ALTER COLUMN %s %s %s", d.Quote(column), sqlType, nullability(nullable)), nil
}

// SQLite quotes with double quotes and binds named @ItemN parameters.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Placeholder(i int) string { return "@Item" + strconv.Itoa(i) }
func (SQLite) Positional() bool         { return false }

func (SQLite) BooleanLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (SQLite) Pagination(skip, take int, _ bool) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", take, skip)
}

func (SQLite) KeyColumn(sqlType string, automatic bool) string {
	if automatic {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return sqlType + " NOT NULL PRIMARY KEY"
}

func (SQLite) InsertID() InsertIDMode { return InsertIDResult }
func (SQLite) DefaultValues() string  { return "DEFAULT VALUES" }

func (SQLite) AddColumn(columnDef string) string { return "ADD COLUMN " + columnDef }

func (SQLite) AlterColumn(column, _ string, _ bool) (string, error) {
	return "", fmt.Errorf("alter column %s: %w", column, ErrNotSupportedByDialect)
}
