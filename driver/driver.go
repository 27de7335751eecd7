// Package driver adapts each supported database to the mapping and query
// layers: connections, column types, value conversion and live schema.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/migrate/introspect"
	"github.com/folkelib/elm/query/executor"
	"github.com/folkelib/elm/query/sqlgen"
)

// Executor runs statements; *sql.DB and *sql.Tx satisfy it.
type Executor = executor.Querier

// Driver is the capability surface of one backend.
type Driver interface {
	Name() string

	// Open creates a connection pool for dsn.
	Open(dsn string) (*sql.DB, error)

	Dialect() sqlgen.Dialect
	NewBuilder() *sqlgen.Builder

	// SQLType returns the column type of p. A foreign-key column takes the
	// type of the referenced key.
	SQLType(p *mapping.PropertyMapping, isForeignKey bool) string

	// ConvertValueToParameter converts a Go value before it is bound.
	ConvertValueToParameter(v any) (any, error)
	// Parameters wraps converted values the way the placeholders expect.
	Parameters(args []any) []any
	// ConvertReaderValue converts a scanned value to the Go type of p.
	ConvertReaderValue(raw any, p *mapping.PropertyMapping) (any, error)

	// EquivalentTypes reports whether a live column type satisfies the
	// desired one.
	EquivalentTypes(live, desired string) bool

	TableDefinitions(ctx context.Context, q introspect.Querier) ([]introspect.TableDefinition, error)
	ColumnDefinitions(ctx context.Context, q introspect.Querier, schema, table string) ([]introspect.ColumnDefinition, error)
	IndexDefinitions(ctx context.Context, q introspect.Querier, schema, table string) ([]introspect.IndexDefinition, error)

	HasBooleanType() bool
	CanAddIndexInCreateTable() bool
	CanDoMultipleActionsInAlterTable() bool
}

// ForName returns the driver registered under name.
func ForName(name string) (Driver, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return NewMySQL(), nil
	case "postgres", "postgresql":
		return NewPostgres(), nil
	case "sqlserver", "mssql":
		return NewSQLServer(), nil
	case "sqlite", "sqlite3":
		return NewSQLite(), nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", name)
}

// PropertyParameter returns the bound value of property p held by entity v,
// a pointer to or value of the owning struct.
func PropertyParameter(d Driver, p *mapping.PropertyMapping, v any) (any, error) {
	return parameterOf(d, p, p.Get(reflectValue(v)))
}

// base holds what every driver shares. Dialect-specific drivers embed it
// and override the differing parts.
type base struct {
	dialect   sqlgen.Dialect
	sqlDriver string
	types     typeTable
}

func (b *base) Dialect() sqlgen.Dialect     { return b.dialect }
func (b *base) NewBuilder() *sqlgen.Builder { return sqlgen.NewBuilder(b.dialect) }
func (b *base) Name() string                { return b.dialect.Name() }

func (b *base) HasBooleanType() bool                   { return false }
func (b *base) CanAddIndexInCreateTable() bool         { return false }
func (b *base) CanDoMultipleActionsInAlterTable() bool { return false }

func (b *base) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(b.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", b.Name(), err)
	}
	return db, nil
}

func (b *base) SQLType(p *mapping.PropertyMapping, isForeignKey bool) string {
	return b.types.sqlType(p, isForeignKey)
}

func (b *base) ConvertValueToParameter(v any) (any, error) {
	return convertParameter(v)
}

func (b *base) Parameters(args []any) []any { return args }

// namedParameters binds args as sql.Named values matching @ItemN placeholders.
func namedParameters(d sqlgen.Dialect, args []any) []any {
	named := make([]any, len(args))
	for i, a := range args {
		named[i] = sql.Named(strings.TrimPrefix(d.Placeholder(i), "@"), a)
	}
	return named
}

func (b *base) ConvertReaderValue(raw any, p *mapping.PropertyMapping) (any, error) {
	return convertReader(raw, p, nil)
}

func (b *base) EquivalentTypes(live, desired string) bool {
	return normalizeType(live) == normalizeType(desired)
}

func (b *base) TableDefinitions(ctx context.Context, q introspect.Querier) ([]introspect.TableDefinition, error) {
	i, err := introspect.New(q, b.Name())
	if err != nil {
		return nil, err
	}
	return i.Tables(ctx)
}

func (b *base) ColumnDefinitions(ctx context.Context, q introspect.Querier, schema, table string) ([]introspect.ColumnDefinition, error) {
	i, err := introspect.New(q, b.Name())
	if err != nil {
		return nil, err
	}
	return i.Columns(ctx, schema, table)
}

func (b *base) IndexDefinitions(ctx context.Context, q introspect.Querier, schema, table string) ([]introspect.IndexDefinition, error) {
	i, err := introspect.New(q, b.Name())
	if err != nil {
		return nil, err
	}
	return i.Indexes(ctx, schema, table)
}

// normalizeType lowercases a type and removes insignificant blanks.
func normalizeType(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	s = strings.ReplaceAll(s, " (", "(")
	s = strings.ReplaceAll(s, ", ", ",")
	return s
}
