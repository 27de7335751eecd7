package builder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/executor"
	"github.com/folkelib/elm/query/expr"
	"github.com/folkelib/elm/query/exprparse"
	"github.com/folkelib/elm/query/sqlgen"
)

// ErrNoConnection is returned when a render-only query is executed.
var ErrNoConnection = errors.New("elm: query has no connection")

type staticRunner struct {
	m *mapping.Mapper
	d sqlgen.Dialect
}

// Static returns a Runner that renders statements for d but cannot run
// them.
func Static(m *mapping.Mapper, d sqlgen.Dialect) Runner {
	return staticRunner{m: m, d: d}
}

func (s staticRunner) Mapper() *mapping.Mapper { return s.m }
func (s staticRunner) Dialect() sqlgen.Dialect { return s.d }

func (staticRunner) Fetch(context.Context, *sqlgen.Query, *executor.Plan) ([][]any, error) {
	return nil, ErrNoConnection
}

func (staticRunner) Scalar(context.Context, *sqlgen.Query) (any, error) {
	return nil, ErrNoConnection
}

func (staticRunner) Exec(context.Context, *sqlgen.Query) (sql.Result, error) {
	return nil, ErrNoConnection
}

// Select is a SELECT over the mapped type T.
type Select[T any] struct {
	q *Query
}

// From starts a query over T.
func From[T any](r Runner) *Select[T] {
	tm, err := mapping.Of[T](r.Mapper())
	if err != nil {
		q := &Query{runner: r, root: expr.Table[T]("t"), take: -1}
		q.fail(err)
		return &Select[T]{q: q}
	}
	return &Select[T]{q: NewQuery(r.Mapper(), r.Dialect(), tm, r)}
}

// Root returns the parameter of the T table.
func (s *Select[T]) Root() *expr.Param { return s.q.root }

// Query returns the untyped query behind s.
func (s *Select[T]) Query() *Query { return s.q }

// Where adds a condition built from the root parameter.
func (s *Select[T]) Where(fn func(x *expr.Param) expr.Expr) *Select[T] {
	s.q.Where(fn(s.q.root))
	return s
}

// WhereExpr adds a prebuilt condition.
func (s *Select[T]) WhereExpr(e expr.Expr) *Select[T] {
	s.q.Where(e)
	return s
}

// WhereText adds a condition written in the textual expression form, with
// members resolved against the root table.
func (s *Select[T]) WhereText(src string) *Select[T] {
	e, err := exprparse.Parse(s.q.root, src)
	if err != nil {
		s.q.fail(err)
		return s
	}
	s.q.Where(e)
	return s
}

// WhereExists keeps rows for which sub returns at least one row. sub may
// refer to the root parameter of s.
func (s *Select[T]) WhereExists(sub expr.Subquery) *Select[T] {
	s.q.Where(expr.Exists(sub))
	return s
}

// WhereNotExists keeps rows for which sub returns nothing.
func (s *Select[T]) WhereNotExists(sub expr.Subquery) *Select[T] {
	s.q.Where(expr.NotExists(sub))
	return s
}

// InnerJoin joins the table of p on a condition over the root and p.
func (s *Select[T]) InnerJoin(p *expr.Param, on func(x, y *expr.Param) expr.Expr) *Select[T] {
	s.q.Join(ast.InnerJoin, p, on(s.q.root, p))
	return s
}

// LeftJoin is InnerJoin keeping root rows without a match.
func (s *Select[T]) LeftJoin(p *expr.Param, on func(x, y *expr.Param) expr.Expr) *Select[T] {
	s.q.Join(ast.LeftJoin, p, on(s.q.root, p))
	return s
}

// Include loads the reference at path with each row.
func (s *Select[T]) Include(path ...string) *Select[T] {
	s.q.Include(path...)
	return s
}

func (s *Select[T]) OrderBy(fn func(x *expr.Param) expr.Expr) *Select[T] {
	s.q.OrderBy(fn(s.q.root))
	return s
}

// OrderByName sorts by a member path such as "Author.Name".
func (s *Select[T]) OrderByName(path string) *Select[T] {
	m, err := exprparse.ParseMember(s.q.root, path)
	if err != nil {
		s.q.fail(err)
		return s
	}
	s.q.OrderBy(m)
	return s
}

func (s *Select[T]) Desc() *Select[T] {
	s.q.Desc()
	return s
}

func (s *Select[T]) GroupBy(fn func(x *expr.Param) expr.Expr) *Select[T] {
	s.q.GroupBy(fn(s.q.root))
	return s
}

func (s *Select[T]) Having(fn func(x *expr.Param) expr.Expr) *Select[T] {
	s.q.Having(fn(s.q.root))
	return s
}

func (s *Select[T]) Distinct() *Select[T] {
	s.q.Distinct()
	return s
}

// Limit skips offset rows and returns at most count.
func (s *Select[T]) Limit(offset, count int) *Select[T] {
	s.q.Limit(offset, count)
	return s
}

func (s *Select[T]) Skip(n int) *Select[T] {
	s.q.Skip(n)
	return s
}

func (s *Select[T]) Take(n int) *Select[T] {
	s.q.Take(n)
	return s
}

// SQL renders the statement.
func (s *Select[T]) SQL() (*sqlgen.Query, error) { return s.q.SQL() }

// List runs the query and returns one object per row. Rows that share a
// key share an instance.
func (s *Select[T]) List(ctx context.Context) ([]*T, error) {
	rows, err := s.q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		v, err := first[T](row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func first[T any](row []any) (*T, error) {
	if len(row) == 0 || row[0] == nil {
		return nil, nil
	}
	v, ok := row[0].(*T)
	if !ok {
		return nil, fmt.Errorf("elm: row holds %T, want *%T", row[0], *new(T))
	}
	return v, nil
}

// SingleOrDefault returns the first row, or nil when there is none.
func (s *Select[T]) SingleOrDefault(ctx context.Context) (*T, error) {
	rows, err := s.q.Rows(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return first[T](rows[0])
}

// Single returns the first row and fails with ErrNotFound when there is
// none.
func (s *Select[T]) Single(ctx context.Context) (*T, error) {
	v, err := s.SingleOrDefault(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{Type: s.typeName()}
	}
	return v, nil
}

// FirstOrDefault fetches at most one row.
func (s *Select[T]) FirstOrDefault(ctx context.Context) (*T, error) {
	limited := *s.q
	limited.take, limited.paged = 1, true
	return (&Select[T]{q: &limited}).SingleOrDefault(ctx)
}

func (s *Select[T]) typeName() string {
	if s.q.root.Mapping != nil {
		return s.q.root.Mapping.Name
	}
	return s.q.root.Type.Name()
}

// Scalar selects the single value computed by fn, for example an
// aggregate, and returns it from the first row.
func (s *Select[T]) Scalar(ctx context.Context, fn func(x *expr.Param) expr.Expr) (any, error) {
	projected := *s.q
	projected.columns = []expr.Expr{fn(s.q.root)}
	return projected.Scalar(ctx)
}

// Count returns the number of matching rows.
func (s *Select[T]) Count(ctx context.Context) (int64, error) { return s.q.Count(ctx) }

// SubqueryParam implements expr.Subquery.
func (s *Select[T]) SubqueryParam() *expr.Param { return s.q.root }

func (s *Select[T]) subquerySelect(c *Compiler) (*ast.Select, error) {
	return s.q.subquerySelect(c)
}

// Pair is a row of two mapped tables.
type Pair[T, U any] struct {
	First  *T
	Second *U
}

// ListPairs runs s with the columns of the joined table p and returns both
// objects of each row. Second is nil when a left join found no match.
func ListPairs[T, U any](ctx context.Context, s *Select[T], p *expr.Param) ([]Pair[T, U], error) {
	s.q.SelectJoined(p)
	rows, err := s.q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Pair[T, U], 0, len(rows))
	for _, row := range rows {
		a, err := first[T](row)
		if err != nil {
			return nil, err
		}
		pair := Pair[T, U]{First: a}
		if len(row) > 1 && row[1] != nil {
			b, ok := row[1].(*U)
			if !ok {
				return nil, fmt.Errorf("elm: row holds %T, want *%T", row[1], *new(U))
			}
			pair.Second = b
		}
		out = append(out, pair)
	}
	return out, nil
}
