package builder

import (
	"context"
	"fmt"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/expr"
	"github.com/folkelib/elm/query/sqlgen"
)

// statement holds what UPDATE and DELETE share: one unaliased table and
// its conditions. Conditions cannot walk references.
type statement struct {
	runner Runner
	root   *expr.Param
	wheres []expr.Expr
	err    error
}

func newStatement[T any](r Runner) statement {
	st := statement{runner: r, root: expr.Table[T]("t")}
	if tm, err := mapping.Of[T](r.Mapper()); err != nil {
		st.err = err
	} else {
		st.root = expr.TableOf(tm, "t")
	}
	return st
}

func (s *statement) prepare() (*Compiler, *SelectedTable, ast.Node, error) {
	if s.err != nil {
		return nil, nil, nil, s.err
	}
	c := NewCompiler(newUnqualifiedRegistry(s.runner.Mapper()))
	table, err := c.Registry().RegisterTable(s.root, "")
	if err != nil {
		return nil, nil, nil, err
	}
	where, err := conjunction(c, s.wheres)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, table, where, nil
}

func (s *statement) exec(ctx context.Context, q *sqlgen.Query, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	res, err := s.runner.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type assignment struct {
	name  string
	value any
}

// Update is an UPDATE of the table of T.
type Update[T any] struct {
	statement
	sets []assignment
}

// NewUpdate starts an UPDATE of T.
func NewUpdate[T any](r Runner) *Update[T] {
	return &Update[T]{statement: newStatement[T](r)}
}

// Set assigns value to the property name. value is either a plain value, an
// entity for reference properties, or an expression over the row.
func (u *Update[T]) Set(name string, value any) *Update[T] {
	u.sets = append(u.sets, assignment{name: name, value: value})
	return u
}

// SetExpr assigns a value computed from the row, for example x.Count + 1.
func (u *Update[T]) SetExpr(name string, fn func(x *expr.Param) expr.Expr) *Update[T] {
	return u.Set(name, fn(u.root))
}

func (u *Update[T]) Where(fn func(x *expr.Param) expr.Expr) *Update[T] {
	u.wheres = append(u.wheres, fn(u.root))
	return u
}

// SQL renders the statement.
func (u *Update[T]) SQL() (*sqlgen.Query, error) {
	if len(u.sets) == 0 {
		return nil, fmt.Errorf("elm: update without assignments")
	}
	c, table, where, err := u.prepare()
	if err != nil {
		return nil, err
	}
	n := &ast.Update{Table: table.node(), Where: where}
	for _, a := range u.sets {
		prop, ok := table.Mapping.Column(a.name)
		if !ok {
			return nil, &CompileError{Expr: a.name, Err: fmt.Errorf("%w: %s.%s", mapping.ErrUnknownProperty, table.Mapping.Name, a.name)}
		}
		var value ast.Node
		switch v := a.value.(type) {
		case expr.Expr:
			value, err = c.Value(v)
		default:
			if prop.IsReference() {
				value, err = c.keyOf(expr.Wrap(v), v, prop.Reference)
			} else {
				value = c.constant(v)
			}
		}
		if err != nil {
			return nil, err
		}
		n.Set = append(n.Set, ast.Assignment{Column: prop.ColumnName, Value: value})
	}
	return sqlgen.Render(u.runner.Dialect(), n, c.Params())
}

// Exec runs the statement and returns the number of rows changed.
func (u *Update[T]) Exec(ctx context.Context) (int64, error) {
	q, err := u.SQL()
	return u.exec(ctx, q, err)
}

// Delete is a DELETE from the table of T.
type Delete[T any] struct {
	statement
}

// NewDelete starts a DELETE from T.
func NewDelete[T any](r Runner) *Delete[T] {
	return &Delete[T]{statement: newStatement[T](r)}
}

func (d *Delete[T]) Where(fn func(x *expr.Param) expr.Expr) *Delete[T] {
	d.wheres = append(d.wheres, fn(d.root))
	return d
}

// SQL renders the statement.
func (d *Delete[T]) SQL() (*sqlgen.Query, error) {
	c, table, where, err := d.prepare()
	if err != nil {
		return nil, err
	}
	return sqlgen.Render(d.runner.Dialect(), &ast.Delete{Table: table.node(), Where: where}, c.Params())
}

// Exec runs the statement and returns the number of rows deleted.
func (d *Delete[T]) Exec(ctx context.Context) (int64, error) {
	q, err := d.SQL()
	return d.exec(ctx, q, err)
}
