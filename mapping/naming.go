package mapping

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// Naming derives table and column names from Go names when no explicit
// hint is given.
type Naming interface {
	TableName(typeName string) string
	ColumnName(field string) string
	ForeignKeyName(field string) string
	ComplexColumnName(outer, inner string) string
}

// DefaultNaming keeps Go names as they are. Reference columns are named
// <Property>_id and complex members <Outer>_<Inner>.
type DefaultNaming struct{}

func (DefaultNaming) TableName(typeName string) string   { return typeName }
func (DefaultNaming) ColumnName(field string) string     { return field }
func (DefaultNaming) ForeignKeyName(field string) string { return field + "_id" }

func (DefaultNaming) ComplexColumnName(outer, inner string) string {
	return outer + "_" + inner
}

// SnakePluralNaming uses snake_case columns and pluralized snake_case tables.
type SnakePluralNaming struct{}

func (SnakePluralNaming) TableName(typeName string) string {
	return inflect.Pluralize(inflect.Underscore(typeName))
}

func (SnakePluralNaming) ColumnName(field string) string {
	return inflect.Underscore(field)
}

func (SnakePluralNaming) ForeignKeyName(field string) string {
	return inflect.Underscore(field) + "_id"
}

func (SnakePluralNaming) ComplexColumnName(outer, inner string) string {
	return inflect.Underscore(outer) + "_" + inflect.Underscore(inner)
}

// NamingByName returns the naming strategy registered under name.
func NamingByName(name string) (Naming, error) {
	switch name {
	case "", "default":
		return DefaultNaming{}, nil
	case "snake_plural":
		return SnakePluralNaming{}, nil
	}
	return nil, fmt.Errorf("elm: unknown naming strategy %q", name)
}
