package driver

import (
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/folkelib/elm/query/sqlgen"
)

// Postgres is the PostgreSQL driver.
type Postgres struct {
	base
}

func NewPostgres() *Postgres {
	return &Postgres{base: base{dialect: sqlgen.Postgres{}, sqlDriver: "postgres", types: postgresTypes}}
}

func (d *Postgres) HasBooleanType() bool                   { return true }
func (d *Postgres) CanDoMultipleActionsInAlterTable() bool { return true }

var postgresAliases = map[string]string{
	"int":                         "integer",
	"int4":                        "integer",
	"int8":                        "bigint",
	"int2":                        "smallint",
	"bool":                        "boolean",
	"float8":                      "double precision",
	"float4":                      "real",
	"character varying":           "varchar",
	"timestamp without time zone": "timestamp",
	"timestamptz":                 "timestamp with time zone",
	"serial":                      "integer",
	"bigserial":                   "bigint",
	"smallserial":                 "smallint",
}

// EquivalentTypes compares types after resolving the information_schema
// spellings to the names used in DDL.
func (d *Postgres) EquivalentTypes(live, desired string) bool {
	return postgresCanonical(live) == postgresCanonical(desired)
}

func postgresCanonical(t string) string {
	t = normalizeType(t)
	name, args := t, ""
	if i := strings.IndexByte(t, '('); i >= 0 {
		name, args = t[:i], t[i:]
	}
	if a, ok := postgresAliases[name]; ok {
		name = a
	}
	return name + args
}
