package driver

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/folkelib/elm/query/sqlgen"
)

// SQLite is the SQLite driver.
type SQLite struct {
	base
}

func NewSQLite() *SQLite {
	return &SQLite{base: base{dialect: sqlgen.SQLite{}, sqlDriver: "sqlite3", types: sqliteTypes}}
}

// Open opens dsn. An in-memory database lives in its connection, so the
// pool is limited to a single connection for it.
func (d *SQLite) Open(dsn string) (*sql.DB, error) {
	db, err := d.base.Open(dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func (d *SQLite) Parameters(args []any) []any {
	return namedParameters(d.dialect, args)
}

// EquivalentTypes compares type affinities; SQLite stores any value in any
// column of the same affinity.
func (d *SQLite) EquivalentTypes(live, desired string) bool {
	return Affinity(live) == Affinity(desired)
}

// Affinity returns the SQLite type affinity of a declared type.
func Affinity(t string) string {
	u := strings.ToUpper(t)
	switch {
	case strings.Contains(u, "INT"):
		return "INTEGER"
	case strings.Contains(u, "CHAR"), strings.Contains(u, "CLOB"), strings.Contains(u, "TEXT"):
		return "TEXT"
	case u == "" || strings.Contains(u, "BLOB"):
		return "BLOB"
	case strings.Contains(u, "REAL"), strings.Contains(u, "FLOA"), strings.Contains(u, "DOUB"):
		return "REAL"
	}
	return "NUMERIC"
}
