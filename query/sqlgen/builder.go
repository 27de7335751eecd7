package sqlgen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/folkelib/elm/query/ast"
)

// Query is rendered SQL with its arguments in binding order.
type Query struct {
	SQL  string
	Args []any
}

// Builder renders AST nodes for one dialect. A Builder renders a single
// statement and is not safe for concurrent use.
type Builder struct {
	d      Dialect
	buf    strings.Builder
	params []any
	args   []any
	err    error
}

// NewBuilder returns a builder for d.
func NewBuilder(d Dialect) *Builder {
	return &Builder{d: d}
}

// Render renders node. params holds the value of each ast.Parameter index.
func Render(d Dialect, node ast.Node, params []any) (*Query, error) {
	return NewBuilder(d).Build(node, params)
}

// Build renders node into SQL text. For positional dialects the arguments
// follow placeholder emission order; otherwise they follow parameter index.
func (b *Builder) Build(node ast.Node, params []any) (*Query, error) {
	b.buf.Reset()
	b.params = params
	b.args = nil
	b.err = nil
	node.Accept(b)
	if b.err != nil {
		return nil, b.err
	}
	args := b.args
	if !b.d.Positional() {
		args = append([]any(nil), params...)
	}
	return &Query{SQL: b.buf.String(), Args: args}, nil
}

// Dialect returns the dialect the builder renders.
func (b *Builder) Dialect() Dialect { return b.d }

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

func (b *Builder) write(s string) { b.buf.WriteString(s) }

func (b *Builder) list(nodes []ast.Node) {
	for i, n := range nodes {
		if i > 0 {
			b.write(", ")
		}
		n.Accept(b)
	}
}

func (b *Builder) VisitColumn(n *ast.Column) {
	if n.Table != "" {
		b.write(b.d.Quote(n.Table))
		b.write(".")
	}
	b.write(b.d.Quote(n.Name))
	if n.As != "" {
		b.write(" AS ")
		b.write(b.d.Quote(n.As))
	}
}

func (b *Builder) VisitAllColumns(n *ast.AllColumns) {
	if n.Table != "" {
		b.write(b.d.Quote(n.Table))
		b.write(".")
	}
	b.write("*")
}

func (b *Builder) VisitBinary(n *ast.Binary) {
	b.write("(")
	n.Left.Accept(b)
	b.write(" ")
	b.write(n.Op.Token())
	b.write(" ")
	n.Right.Accept(b)
	if n.Op == ast.OpLikeEscaped {
		b.write(" ESCAPE '" + string(ast.LikeEscape) + "'")
	}
	b.write(")")
}

func (b *Builder) VisitUnary(n *ast.Unary) {
	switch n.Op {
	case ast.OpNot:
		b.write("NOT ")
		n.Operand.Accept(b)
	case ast.OpNeg:
		b.write("-")
		n.Operand.Accept(b)
	case ast.OpIsNull:
		b.write("(")
		n.Operand.Accept(b)
		b.write(" IS NULL)")
	case ast.OpIsNotNull:
		b.write("(")
		n.Operand.Accept(b)
		b.write(" IS NOT NULL)")
	default:
		b.fail("unknown unary operator %d", n.Op)
	}
}

// VisitConstant writes numbers and booleans inline. Strings are quoted;
// other values must be bound as parameters.
func (b *Builder) VisitConstant(n *ast.Constant) {
	switch v := n.Value.(type) {
	case bool:
		b.write(b.d.BooleanLiteral(v))
	case int:
		b.write(strconv.Itoa(v))
	case int8, int16, int32, int64:
		b.write(fmt.Sprintf("%d", v))
	case uint, uint8, uint16, uint32, uint64:
		b.write(fmt.Sprintf("%d", v))
	case float32:
		b.float(float64(v), 32)
	case float64:
		b.float(v, 64)
	case string:
		b.write("'" + strings.ReplaceAll(v, "'", "''") + "'")
	default:
		b.fail("cannot inline constant of type %T", v)
	}
}

func (b *Builder) float(f float64, bits int) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		b.fail("cannot inline %v", f)
		return
	}
	b.write(strconv.FormatFloat(f, 'g', -1, bits))
}

func (b *Builder) VisitNull(*ast.Null) { b.write("NULL") }

func (b *Builder) VisitParameter(n *ast.Parameter) {
	if n.Index < 0 || n.Index >= len(b.params) {
		b.fail("parameter %d out of range (%d values)", n.Index, len(b.params))
		return
	}
	b.write(b.d.Placeholder(n.Index))
	if b.d.Positional() {
		b.args = append(b.args, b.params[n.Index])
	}
}

func (b *Builder) VisitBetween(n *ast.Between) {
	b.write("(")
	n.Expr.Accept(b)
	b.write(" BETWEEN ")
	n.Low.Accept(b)
	b.write(" AND ")
	n.High.Accept(b)
	b.write(")")
}

func (b *Builder) VisitIn(n *ast.In) {
	if len(n.Values) == 0 {
		b.write("(1 = 0)")
		return
	}
	b.write("(")
	n.Expr.Accept(b)
	b.write(" IN (")
	b.list(n.Values)
	b.write("))")
}

func (b *Builder) VisitTable(n *ast.Table) {
	if n.Query != nil {
		b.write("(")
		n.Query.Accept(b)
		b.write(")")
	} else {
		b.write(QuoteQualified(b.d, n.Schema, n.Name))
	}
	if n.Alias != "" {
		b.write(" AS ")
		b.write(b.d.Quote(n.Alias))
	}
}

func (b *Builder) VisitJoin(n *ast.Join) {
	switch n.Kind {
	case ast.LeftJoin:
		b.write(" LEFT JOIN ")
	default:
		b.write(" INNER JOIN ")
	}
	n.Table.Accept(b)
	b.write(" ON ")
	n.On.Accept(b)
}

func (b *Builder) VisitSelect(n *ast.Select) {
	b.write("SELECT ")
	if n.Distinct {
		b.write("DISTINCT ")
	}
	if len(n.Columns) == 0 {
		b.write("*")
	} else {
		b.list(n.Columns)
	}
	if n.From != nil {
		b.write(" FROM ")
		n.From.Accept(b)
	}
	for _, j := range n.Joins {
		j.Accept(b)
	}
	if n.Where != nil {
		b.write(" WHERE ")
		n.Where.Accept(b)
	}
	if len(n.GroupBy) > 0 {
		b.write(" GROUP BY ")
		b.list(n.GroupBy)
	}
	if n.Having != nil {
		b.write(" HAVING ")
		n.Having.Accept(b)
	}
	if len(n.OrderBy) > 0 {
		b.write(" ORDER BY ")
		for i, o := range n.OrderBy {
			if i > 0 {
				b.write(", ")
			}
			o.Accept(b)
		}
	}
	if n.SkipTake != nil {
		b.write(" ")
		b.write(b.d.Pagination(n.SkipTake.Skip, n.SkipTake.Take, len(n.OrderBy) > 0))
	}
}

func (b *Builder) VisitAlias(n *ast.Alias) {
	n.Expr.Accept(b)
	b.write(" AS ")
	b.write(b.d.Quote(n.Name))
}

func (b *Builder) VisitOrderBy(n *ast.OrderBy) {
	n.Expr.Accept(b)
	if n.Desc {
		b.write(" DESC")
	}
}

func (b *Builder) VisitCase(n *ast.Case) {
	b.write("CASE")
	for _, w := range n.Whens {
		b.write(" WHEN ")
		w.Cond.Accept(b)
		b.write(" THEN ")
		w.Then.Accept(b)
	}
	if n.Else != nil {
		b.write(" ELSE ")
		n.Else.Accept(b)
	}
	b.write(" END")
}

func (b *Builder) VisitFunction(n *ast.Function) {
	b.write(string(n.Name))
	b.write("(")
	if len(n.Args) == 0 && n.Name == ast.FuncCount {
		b.write("*")
	} else {
		b.list(n.Args)
	}
	b.write(")")
}

func (b *Builder) VisitExists(n *ast.Exists) {
	if n.Not {
		b.write("NOT ")
	}
	b.write("EXISTS (")
	n.Query.Accept(b)
	b.write(")")
}

func (b *Builder) VisitInsert(n *ast.Insert) {
	b.write("INSERT INTO ")
	n.Table.Accept(b)
	output := n.ReturnKey != "" && b.d.InsertID() == InsertIDOutput
	if len(n.Columns) == 0 {
		if output {
			b.write(" OUTPUT INSERTED." + b.d.Quote(n.ReturnKey))
		}
		b.write(" " + b.d.DefaultValues())
	} else {
		b.write(" (")
		for i, c := range n.Columns {
			if i > 0 {
				b.write(", ")
			}
			b.write(b.d.Quote(c))
		}
		b.write(")")
		if output {
			b.write(" OUTPUT INSERTED." + b.d.Quote(n.ReturnKey))
		}
		b.write(" VALUES (")
		b.list(n.Values)
		b.write(")")
	}
	if n.ReturnKey != "" && b.d.InsertID() == InsertIDReturning {
		b.write(" RETURNING " + b.d.Quote(n.ReturnKey))
	}
}

func (b *Builder) VisitUpdate(n *ast.Update) {
	b.write("UPDATE ")
	n.Table.Accept(b)
	b.write(" SET ")
	for i, a := range n.Set {
		if i > 0 {
			b.write(", ")
		}
		b.write(b.d.Quote(a.Column))
		b.write(" = ")
		a.Value.Accept(b)
	}
	if n.Where != nil {
		b.write(" WHERE ")
		n.Where.Accept(b)
	}
}

func (b *Builder) VisitDelete(n *ast.Delete) {
	b.write("DELETE FROM ")
	n.Table.Accept(b)
	if n.Where != nil {
		b.write(" WHERE ")
		n.Where.Accept(b)
	}
}
