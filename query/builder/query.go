// Package builder compiles typed expressions into SQL statements and runs
// them: the table alias registry, the expression compiler and the select,
// update and delete builders.
package builder

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/executor"
	"github.com/folkelib/elm/query/expr"
	"github.com/folkelib/elm/query/sqlgen"
)

// Runner executes compiled statements. Sessions implement it.
type Runner interface {
	Mapper() *mapping.Mapper
	Dialect() sqlgen.Dialect
	Fetch(ctx context.Context, q *sqlgen.Query, plan *executor.Plan) ([][]any, error)
	Scalar(ctx context.Context, q *sqlgen.Query) (any, error)
	Exec(ctx context.Context, q *sqlgen.Query) (sql.Result, error)
}

type joinSpec struct {
	param    *expr.Param
	kind     ast.JoinKind
	on       expr.Expr
	selected bool
}

type orderSpec struct {
	e    expr.Expr
	desc bool
}

// Query is the untyped core of a SELECT over one root mapping. Build it
// with the fluent methods, then call a terminal method once.
type Query struct {
	mapper  *mapping.Mapper
	dialect sqlgen.Dialect
	runner  Runner

	root     *expr.Param
	joins    []*joinSpec
	includes [][]string
	wheres   []expr.Expr
	groups   []expr.Expr
	havings  []expr.Expr
	orders   []orderSpec
	columns  []expr.Expr
	distinct bool
	skip     int
	take     int
	paged    bool
	err      error
}

// NewQuery creates a query over tm. r may be nil when the query is only
// rendered; see also Static.
func NewQuery(m *mapping.Mapper, d sqlgen.Dialect, tm *mapping.TypeMapping, r Runner) *Query {
	return &Query{
		mapper:  m,
		dialect: d,
		runner:  r,
		root:    expr.TableOf(tm, "t"),
		take:    -1,
	}
}

// Root returns the parameter of the root table.
func (q *Query) Root() *expr.Param { return q.root }

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Where adds a condition; conditions are combined with AND.
func (q *Query) Where(e expr.Expr) *Query {
	if e != nil {
		q.wheres = append(q.wheres, e)
	}
	return q
}

// Join adds an explicit join of p on condition on.
func (q *Query) Join(kind ast.JoinKind, p *expr.Param, on expr.Expr) *Query {
	q.joins = append(q.joins, &joinSpec{param: p, kind: kind, on: on})
	return q
}

// SelectJoined adds the columns of the joined table p to the result.
func (q *Query) SelectJoined(p *expr.Param) *Query {
	for _, j := range q.joins {
		if j.param == p {
			j.selected = true
			return q
		}
	}
	q.fail(fmt.Errorf("table %q is not joined", p.Name))
	return q
}

// Include loads the reference reached by path together with the root,
// joining its table and selecting its columns.
func (q *Query) Include(path ...string) *Query {
	q.includes = append(q.includes, path)
	return q
}

// OrderBy adds an ascending sort term.
func (q *Query) OrderBy(e expr.Expr) *Query {
	q.orders = append(q.orders, orderSpec{e: e})
	return q
}

// Desc makes the last sort term descending.
func (q *Query) Desc() *Query {
	if len(q.orders) == 0 {
		q.fail(fmt.Errorf("Desc without OrderBy"))
		return q
	}
	q.orders[len(q.orders)-1].desc = true
	return q
}

// GroupBy adds a grouping term.
func (q *Query) GroupBy(e expr.Expr) *Query {
	q.groups = append(q.groups, e)
	return q
}

// Having adds a condition on groups.
func (q *Query) Having(e expr.Expr) *Query {
	q.havings = append(q.havings, e)
	return q
}

// Distinct removes duplicate rows.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// Limit skips offset rows and returns at most count.
func (q *Query) Limit(offset, count int) *Query {
	q.skip, q.take, q.paged = offset, count, true
	return q
}

// Skip skips n rows.
func (q *Query) Skip(n int) *Query {
	q.skip, q.paged = n, true
	return q
}

// Take returns at most n rows.
func (q *Query) Take(n int) *Query {
	q.take, q.paged = n, true
	return q
}

// Columns replaces the entity columns with computed values. The result is
// then read with Scalar.
func (q *Query) Columns(e ...expr.Expr) *Query {
	q.columns = append(q.columns, e...)
	return q
}

// SubqueryParam implements expr.Subquery.
func (q *Query) SubqueryParam() *expr.Param { return q.root }

func (q *Query) subquerySelect(c *Compiler) (*ast.Select, error) {
	sel, _, err := q.build(c)
	if err != nil {
		return nil, err
	}
	sel.Columns = []ast.Node{&ast.Constant{Value: 1}}
	sel.OrderBy, sel.SkipTake = nil, nil
	return sel, nil
}

func conjunction(c *Compiler, conds []expr.Expr) (ast.Node, error) {
	var out ast.Node
	for _, e := range conds {
		n, err := c.Predicate(e)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = n
		} else {
			out = &ast.Binary{Op: ast.OpAnd, Left: out, Right: n}
		}
	}
	return out, nil
}

// build compiles the query into a SELECT and the plan that reads its rows.
func (q *Query) build(c *Compiler) (*ast.Select, *executor.Plan, error) {
	if q.err != nil {
		return nil, nil, q.err
	}
	reg := c.Registry()
	root, err := reg.RegisterTable(q.root, "")
	if err != nil {
		return nil, nil, err
	}
	root.Selected = true

	sel := &ast.Select{Distinct: q.distinct, From: root.node()}

	joined := make([]*SelectedTable, len(q.joins))
	for i, j := range q.joins {
		st, err := reg.RegisterTable(j.param, "")
		if err != nil {
			return nil, nil, err
		}
		st.Selected = j.selected
		joined[i] = st
		join := reg.AddJoin(j.kind, st, nil)
		if join.On, err = c.Predicate(j.on); err != nil {
			return nil, nil, err
		}
	}

	for _, path := range q.includes {
		if err := q.include(reg, root, path); err != nil {
			return nil, nil, err
		}
	}

	if sel.Where, err = conjunction(c, q.wheres); err != nil {
		return nil, nil, err
	}
	for _, g := range q.groups {
		n, err := c.Value(g)
		if err != nil {
			return nil, nil, err
		}
		sel.GroupBy = append(sel.GroupBy, n)
	}
	if sel.Having, err = conjunction(c, q.havings); err != nil {
		return nil, nil, err
	}
	for _, o := range q.orders {
		n, err := c.Value(o.e)
		if err != nil {
			return nil, nil, err
		}
		sel.OrderBy = append(sel.OrderBy, &ast.OrderBy{Expr: n, Desc: o.desc})
	}
	if q.paged {
		sel.SkipTake = &ast.SkipTake{Skip: q.skip, Take: q.take}
	}

	var plan *executor.Plan
	if len(q.columns) > 0 {
		for _, e := range q.columns {
			n, err := c.Value(e)
			if err != nil {
				return nil, nil, err
			}
			sel.Columns = append(sel.Columns, n)
		}
	} else {
		plan = &executor.Plan{}
		roots := append([]*SelectedTable{root}, joined...)
		for _, st := range roots {
			if !st.Selected {
				continue
			}
			plan.Roots = append(plan.Roots, layout(st, &sel.Columns))
		}
	}
	sel.Joins = reg.Joins()
	return sel, plan, nil
}

func (q *Query) include(reg *TableRegistry, st *SelectedTable, path []string) error {
	m := q.root.F(path...)
	for _, name := range m.Path() {
		prop, ok := st.Mapping.Column(name)
		if !ok || !prop.IsReference() {
			return notSupported(m, "%s is not a reference of %s", name, st.Mapping.Name)
		}
		child, err := reg.Child(st, prop)
		if err != nil {
			return err
		}
		child.Selected = true
		st = child
	}
	return nil
}

// layout appends the columns of st and its selected children to cols and
// returns the matching table plan.
func layout(st *SelectedTable, cols *[]ast.Node) *executor.TablePlan {
	tp := &executor.TablePlan{Mapping: st.Mapping, Offset: len(*cols), Columns: st.Mapping.Columns()}
	for _, p := range tp.Columns {
		*cols = append(*cols, st.Column(p))
	}
	for _, p := range tp.Columns {
		child, ok := st.Children[p]
		if !ok || !child.Selected {
			continue
		}
		if tp.Children == nil {
			tp.Children = make(map[*mapping.PropertyMapping]*executor.TablePlan)
		}
		tp.Children[p] = layout(child, cols)
	}
	return tp
}

// Compile renders the query and returns the statement with the plan that
// reads its rows. The plan is nil for Columns queries.
func (q *Query) Compile() (*sqlgen.Query, *executor.Plan, error) {
	c := NewCompiler(NewTableRegistry(q.mapper))
	sel, plan, err := q.build(c)
	if err != nil {
		return nil, nil, err
	}
	out, err := sqlgen.Render(q.dialect, sel, c.Params())
	if err != nil {
		return nil, nil, err
	}
	return out, plan, nil
}

// SQL renders the query without running it.
func (q *Query) SQL() (*sqlgen.Query, error) {
	out, _, err := q.Compile()
	return out, err
}

func (q *Query) run() (Runner, error) {
	if q.runner == nil {
		return nil, ErrNoConnection
	}
	return q.runner, nil
}

// Rows runs the query and returns the materialized objects of each row:
// the root first, then every selected joined table.
func (q *Query) Rows(ctx context.Context) ([][]any, error) {
	r, err := q.run()
	if err != nil {
		return nil, err
	}
	out, plan, err := q.Compile()
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("a Columns query is read with Scalar")
	}
	return r.Fetch(ctx, out, plan)
}

// Scalar runs the query and returns the first column of the first row.
func (q *Query) Scalar(ctx context.Context) (any, error) {
	r, err := q.run()
	if err != nil {
		return nil, err
	}
	out, err := q.SQL()
	if err != nil {
		return nil, err
	}
	return r.Scalar(ctx, out)
}

// Count returns the number of rows the query matches. Ordering and paging
// are ignored. Distinct queries count distinct rows and grouped queries
// count groups.
func (q *Query) Count(ctx context.Context) (int64, error) {
	r, err := q.run()
	if err != nil {
		return 0, err
	}
	out, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	v, err := r.Scalar(ctx, out)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// CountSQL renders the statement run by Count.
func (q *Query) CountSQL() (*sqlgen.Query, error) {
	counted := *q
	counted.orders = nil
	counted.skip, counted.take, counted.paged = 0, -1, false
	if !q.distinct && len(q.groups) == 0 {
		counted.columns = []expr.Expr{expr.Count()}
		return counted.SQL()
	}

	if len(q.groups) > 0 && len(q.columns) == 0 {
		counted.columns = q.groups
	}
	c := NewCompiler(NewTableRegistry(q.mapper))
	inner, _, err := counted.build(c)
	if err != nil {
		return nil, err
	}
	for i, n := range inner.Columns {
		inner.Columns[i] = &ast.Alias{Expr: n, Name: "c" + strconv.Itoa(i)}
	}
	sel := &ast.Select{
		Columns: []ast.Node{&ast.Function{Name: ast.FuncCount}},
		From:    &ast.Table{Query: inner, Alias: "counted"},
	}
	return sqlgen.Render(q.dialect, sel, c.Params())
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		var i int64
		_, err := fmt.Sscan(string(n), &i)
		return i, err
	}
	return 0, fmt.Errorf("unexpected count value %T", v)
}
