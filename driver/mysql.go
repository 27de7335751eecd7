package driver

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-version"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/sqlgen"
)

// jsonSince is the first MySQL release with a native JSON type.
var jsonSince = version.Must(version.NewVersion("5.7.8"))

// MySQL is the MySQL and MariaDB driver.
type MySQL struct {
	base
	server *version.Version
}

func NewMySQL() *MySQL {
	return &MySQL{base: base{dialect: sqlgen.MySQL{}, sqlDriver: "mysql", types: mysqlTypes}}
}

// Open parses dsn and enables parseTime so DATETIME columns scan as time.Time.
func (d *MySQL) Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return d.base.Open(cfg.FormatDSN())
}

// SetServerVersion records the server version, gating version-dependent
// column types. Unparseable versions are ignored.
func (d *MySQL) SetServerVersion(v string) {
	if parsed, err := version.NewVersion(serverVersionPrefix(v)); err == nil {
		d.server = parsed
	}
}

// DetectServerVersion reads SELECT VERSION() through q.
func (d *MySQL) DetectServerVersion(ctx context.Context, q Executor) error {
	var v string
	if err := q.QueryRowContext(ctx, "SELECT VERSION()").Scan(&v); err != nil {
		return fmt.Errorf("failed to read server version: %w", err)
	}
	d.SetServerVersion(v)
	return nil
}

var versionPrefix = regexp.MustCompile(`^\d+(\.\d+)*`)

func serverVersionPrefix(v string) string {
	if m := versionPrefix.FindString(v); m != "" {
		return m
	}
	return v
}

// SupportsJSON reports whether JSON columns use the native JSON type.
// An unknown server is assumed to be recent.
func (d *MySQL) SupportsJSON() bool {
	return d.server == nil || d.server.GreaterThanOrEqual(jsonSince)
}

func (d *MySQL) SQLType(p *mapping.PropertyMapping, isForeignKey bool) string {
	t := d.types.sqlType(p, isForeignKey)
	if t == "JSON" && !d.SupportsJSON() {
		return "LONGTEXT"
	}
	return t
}

func (d *MySQL) CanAddIndexInCreateTable() bool         { return true }
func (d *MySQL) CanDoMultipleActionsInAlterTable() bool { return true }

var mysqlIntWidth = regexp.MustCompile(`^(tinyint|smallint|mediumint|int|bigint)\(\d+\)`)

// EquivalentTypes ignores integer display widths, except TINYINT(1) which
// is the boolean type, and treats the JSON alias LONGTEXT as JSON.
func (d *MySQL) EquivalentTypes(live, desired string) bool {
	l, w := mysqlCanonical(live), mysqlCanonical(desired)
	if l == w {
		return true
	}
	return (l == "json" && w == "longtext") || (l == "longtext" && w == "json")
}

func mysqlCanonical(t string) string {
	t = normalizeType(t)
	t = strings.TrimSuffix(t, " unsigned")
	switch t {
	case "tinyint(1)", "bool", "boolean":
		return "tinyint(1)"
	case "integer":
		return "int"
	}
	return mysqlIntWidth.ReplaceAllString(t, "$1")
}
