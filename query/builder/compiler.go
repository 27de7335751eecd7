package builder

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/expr"
)

// Compiler turns expressions into AST nodes against a table registry. It
// collects the parameter values in index order. A compiler belongs to a
// single statement.
type Compiler struct {
	reg    *TableRegistry
	params []any
	vars   map[any]int
}

// NewCompiler creates a compiler resolving tables through reg.
func NewCompiler(reg *TableRegistry) *Compiler {
	return &Compiler{reg: reg, vars: make(map[any]int)}
}

// Registry returns the table registry of the compiler.
func (c *Compiler) Registry() *TableRegistry { return c.reg }

// Params returns the parameter values, indexed by ast.Parameter.Index.
func (c *Compiler) Params() []any { return c.params }

func (c *Compiler) param(v any) *ast.Parameter {
	c.params = append(c.params, v)
	return &ast.Parameter{Index: len(c.params) - 1}
}

func (c *Compiler) scoped(reg *TableRegistry) *Compiler {
	return &Compiler{reg: reg, params: c.params, vars: c.vars}
}

// Predicate compiles a boolean condition. Boolean members and constants are
// compared with TRUE so they form a complete predicate.
func (c *Compiler) Predicate(e expr.Expr) (ast.Node, error) {
	switch n := e.(type) {
	case *expr.Member:
		res, err := c.reg.ExpressionToColumn(n)
		if err != nil {
			return nil, err
		}
		if res.Property.Kind != mapping.KindBool {
			return nil, notSupported(e, "%s is not a boolean", res.Property)
		}
		return &ast.Binary{Op: ast.OpEq, Left: res.Column(), Right: &ast.Constant{Value: true}}, nil
	case *expr.Const:
		if b, ok := n.Value.(bool); ok {
			right := 0
			if b {
				right = 1
			}
			return &ast.Binary{Op: ast.OpEq, Left: &ast.Constant{Value: 1}, Right: &ast.Constant{Value: right}}, nil
		}
	}
	return c.Value(e)
}

// Value compiles an expression producing a value.
func (c *Compiler) Value(e expr.Expr) (ast.Node, error) {
	switch n := e.(type) {
	case nil:
		return &ast.Null{}, nil
	case *expr.Member:
		res, err := c.reg.ExpressionToColumn(n)
		if err != nil {
			return nil, err
		}
		return res.Column(), nil
	case *expr.Param:
		return c.entityKey(n)
	case *expr.Const:
		return c.constant(n.Value), nil
	case *expr.Var:
		if i, ok := c.vars[n.Ptr]; ok {
			return &ast.Parameter{Index: i}, nil
		}
		p := c.param(n.Value())
		c.vars[n.Ptr] = p.Index
		return p, nil
	case *expr.Binary:
		return c.binary(n)
	case *expr.Unary:
		if n.Op == expr.OpNot {
			operand, err := c.Predicate(n.Operand)
			if err != nil {
				return nil, err
			}
			return &ast.Unary{Op: ast.OpNot, Operand: operand}, nil
		}
		operand, err := c.Value(n.Operand)
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: ast.OpNeg, Operand: operand}, nil
	case *expr.Call:
		return c.call(n)
	case *expr.Case:
		return c.caseExpr(n)
	case *expr.ExistsExpr:
		return c.exists(n)
	}
	return nil, notSupported(e, "unknown expression")
}

// constant inlines numbers, booleans and NULL; everything else is bound.
func (c *Compiler) constant(v any) ast.Node {
	if v == nil {
		return &ast.Null{}
	}
	if _, ok := v.(encoding.TextMarshaler); !ok {
		switch v.(type) {
		case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return &ast.Constant{Value: v}
		}
	}
	return c.param(v)
}

func (c *Compiler) entityKey(p *expr.Param) (ast.Node, error) {
	st, ok := c.reg.Lookup(p)
	if !ok {
		return nil, notSupported(p, "table %q is not part of the query", p.Name)
	}
	if st.Mapping.Key == nil {
		return nil, notSupported(p, "%s has no key to compare", st.Mapping.Name)
	}
	return st.Column(st.Mapping.Key), nil
}

var binaryOps = map[expr.Op]ast.BinaryOp{
	expr.OpEq:  ast.OpEq,
	expr.OpNe:  ast.OpNe,
	expr.OpLt:  ast.OpLt,
	expr.OpLe:  ast.OpLe,
	expr.OpGt:  ast.OpGt,
	expr.OpGe:  ast.OpGe,
	expr.OpAnd: ast.OpAnd,
	expr.OpOr:  ast.OpOr,
	expr.OpAdd: ast.OpAdd,
	expr.OpSub: ast.OpSub,
	expr.OpMul: ast.OpMul,
	expr.OpDiv: ast.OpDiv,
	expr.OpMod: ast.OpMod,
}

func isNil(e expr.Expr) bool {
	if e == nil {
		return true
	}
	k, ok := e.(*expr.Const)
	return ok && k.Value == nil
}

func (c *Compiler) binary(n *expr.Binary) (ast.Node, error) {
	op, ok := binaryOps[n.Op]
	if !ok {
		return nil, notSupported(n, "operator %s", n.Op)
	}

	if n.Op == expr.OpEq || n.Op == expr.OpNe {
		left, right := n.Left, n.Right
		if isNil(left) {
			left, right = right, left
		}
		if isNil(right) {
			operand, err := c.Value(left)
			if err != nil {
				return nil, err
			}
			uop := ast.OpIsNull
			if n.Op == expr.OpNe {
				uop = ast.OpIsNotNull
			}
			return &ast.Unary{Op: uop, Operand: operand}, nil
		}
		if target := c.entityTarget(n.Left); target != nil {
			return c.entityComparison(op, n.Left, n.Right, target)
		}
		if target := c.entityTarget(n.Right); target != nil {
			return c.entityComparison(op, n.Right, n.Left, target)
		}
	}

	compile := c.Value
	if n.Op == expr.OpAnd || n.Op == expr.OpOr {
		compile = c.Predicate
	}
	left, err := compile(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := compile(n.Right)
	if err != nil {
		return nil, err
	}
	return &ast.Binary{Op: op, Left: left, Right: right}, nil
}

// entityTarget returns the mapping of an entity-valued expression: a table
// parameter or a member naming a reference. Other expressions yield nil.
func (c *Compiler) entityTarget(e expr.Expr) *mapping.TypeMapping {
	switch n := e.(type) {
	case *expr.Param:
		if st, ok := c.reg.Lookup(n); ok {
			return st.Mapping
		}
	case *expr.Member:
		// Members ending in a reference key resolve to the same column but
		// are compared as scalars.
		res, err := c.reg.ExpressionToColumn(n)
		if err == nil && res.Property.IsReference() && n.Name == res.Property.Name[strings.LastIndex(res.Property.Name, ".")+1:] {
			return res.Property.Reference
		}
	}
	return nil
}

// entityComparison compares an entity with another entity, a table
// parameter or a raw key value by key.
func (c *Compiler) entityComparison(op ast.BinaryOp, entity, other expr.Expr, target *mapping.TypeMapping) (ast.Node, error) {
	left, err := c.Value(entity)
	if err != nil {
		return nil, err
	}
	var right ast.Node
	switch o := other.(type) {
	case *expr.Param:
		right, err = c.entityKey(o)
	case *expr.Const:
		right, err = c.keyOf(o, o.Value, target)
	case *expr.Var:
		right, err = c.keyOf(o, o.Value(), target)
	default:
		right, err = c.Value(other)
	}
	if err != nil {
		return nil, err
	}
	return &ast.Binary{Op: op, Left: left, Right: right}, nil
}

// keyOf binds the key of v when v is an instance of target, or v itself
// when it is a key value.
func (c *Compiler) keyOf(e expr.Expr, v any, target *mapping.TypeMapping) (ast.Node, error) {
	if v == nil {
		return &ast.Null{}, nil
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if target.Type != nil && t == target.Type {
		key, err := target.KeyValue(v)
		if err != nil {
			return nil, &CompileError{Expr: e, Err: err}
		}
		if key == nil {
			return &ast.Null{}, nil
		}
		return c.param(key), nil
	}
	if t.Kind() == reflect.Struct && !isKeyStruct(t) {
		return nil, notSupported(e, "cannot compare %s with %s", target.Name, t)
	}
	return c.constant(v), nil
}

func isKeyStruct(t reflect.Type) bool {
	return t.PkgPath() == "time" || t.PkgPath() == "github.com/google/uuid"
}

var functions = map[string]ast.FuncName{
	"Max":   ast.FuncMax,
	"Min":   ast.FuncMin,
	"Sum":   ast.FuncSum,
	"Avg":   ast.FuncAvg,
	"Count": ast.FuncCount,
	"Abs":   ast.FuncAbs,
	"Sin":   ast.FuncSin,
	"Cos":   ast.FuncCos,
	"Round": ast.FuncRound,
}

func (c *Compiler) call(n *expr.Call) (ast.Node, error) {
	if fn, ok := functions[n.Method]; ok {
		if n.Recv == nil {
			if fn != ast.FuncCount {
				return nil, notSupported(n, "%s needs an argument", n.Method)
			}
			return &ast.Function{Name: fn}, nil
		}
		arg, err := c.Value(n.Recv)
		if err != nil {
			return nil, err
		}
		return &ast.Function{Name: fn, Args: []ast.Node{arg}}, nil
	}

	recv, err := c.Value(n.Recv)
	if err != nil {
		return nil, err
	}
	switch n.Method {
	case "Like", "Equals":
		if len(n.Args) != 1 {
			return nil, notSupported(n, "%s takes one argument", n.Method)
		}
		arg, err := c.Value(n.Args[0])
		if err != nil {
			return nil, err
		}
		op := ast.OpLike
		if n.Method == "Equals" {
			op = ast.OpEq
		}
		return &ast.Binary{Op: op, Left: recv, Right: arg}, nil
	case "StartsWith", "EndsWith", "Contains":
		if len(n.Args) != 1 {
			return nil, notSupported(n, "%s takes one argument", n.Method)
		}
		s, err := stringArg(n.Args[0])
		if err != nil {
			return nil, &CompileError{Expr: n, Err: err}
		}
		s = likeEscaper.Replace(s)
		switch n.Method {
		case "StartsWith":
			s += "%"
		case "EndsWith":
			s = "%" + s
		default:
			s = "%" + s + "%"
		}
		return &ast.Binary{Op: ast.OpLikeEscaped, Left: recv, Right: c.param(s)}, nil
	case "Between":
		if len(n.Args) != 2 {
			return nil, notSupported(n, "Between takes two arguments")
		}
		lo, err := c.Value(n.Args[0])
		if err != nil {
			return nil, err
		}
		hi, err := c.Value(n.Args[1])
		if err != nil {
			return nil, err
		}
		return &ast.Between{Expr: recv, Low: lo, High: hi}, nil
	case "In":
		values, err := c.inValues(n.Args)
		if err != nil {
			return nil, err
		}
		return &ast.In{Expr: recv, Values: values}, nil
	}
	return nil, notSupported(n, "method %s", n.Method)
}

// likeEscaper makes a literal LIKE pattern. '[' is a wildcard on SQL Server.
var likeEscaper = strings.NewReplacer(
	string(ast.LikeEscape), string(ast.LikeEscape)+string(ast.LikeEscape),
	"%", string(ast.LikeEscape)+"%",
	"_", string(ast.LikeEscape)+"_",
	"[", string(ast.LikeEscape)+"[",
)

// stringArg reads the pattern text of StartsWith and friends, which must be
// known when the query compiles.
func stringArg(e expr.Expr) (string, error) {
	var v any
	switch n := e.(type) {
	case *expr.Const:
		v = n.Value
	case *expr.Var:
		v = n.Value()
	default:
		return "", fmt.Errorf("%w: pattern must be a constant or variable", ErrNotSupported)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: pattern must be a string, got %T", ErrNotSupported, v)
	}
	return s, nil
}

// inValues expands a single slice argument into its elements.
func (c *Compiler) inValues(args []expr.Expr) ([]ast.Node, error) {
	if len(args) == 1 {
		var v any
		switch n := args[0].(type) {
		case *expr.Const:
			v = n.Value
		case *expr.Var:
			v = n.Value()
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			out := make([]ast.Node, rv.Len())
			for i := range out {
				out[i] = c.constant(rv.Index(i).Interface())
			}
			return out, nil
		}
	}
	out := make([]ast.Node, 0, len(args))
	for _, a := range args {
		v, err := c.Value(a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Compiler) caseExpr(n *expr.Case) (ast.Node, error) {
	out := &ast.Case{}
	for _, w := range n.Whens {
		cond, err := c.Predicate(w.Cond)
		if err != nil {
			return nil, err
		}
		then, err := c.Value(w.Then)
		if err != nil {
			return nil, err
		}
		out.Whens = append(out.Whens, ast.When{Cond: cond, Then: then})
	}
	if n.Else != nil {
		e, err := c.Value(n.Else)
		if err != nil {
			return nil, err
		}
		out.Else = e
	}
	return out, nil
}

// subquery is implemented by query builders that can be nested in EXISTS.
type subquery interface {
	expr.Subquery
	subquerySelect(c *Compiler) (*ast.Select, error)
}

func (c *Compiler) exists(n *expr.ExistsExpr) (ast.Node, error) {
	sq, ok := n.Query.(subquery)
	if !ok {
		return nil, notSupported(n, "%T cannot be used as a subquery", n.Query)
	}
	inner := c.scoped(c.reg.Scope())
	sel, err := sq.subquerySelect(inner)
	c.params = inner.params
	if err != nil {
		return nil, err
	}
	return &ast.Exists{Query: sel, Not: n.Not}, nil
}

func describe(e any) string {
	switch n := e.(type) {
	case nil:
		return "nil"
	case string:
		return n
	case *expr.Member:
		return strings.Join(n.Path(), ".")
	case *expr.Param:
		return "table " + n.Name
	case *expr.Call:
		return n.Method + "()"
	case *expr.Binary:
		return "operator " + n.Op.String()
	}
	return fmt.Sprintf("%T", e)
}
