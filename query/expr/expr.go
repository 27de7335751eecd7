// Package expr is the typed expression tree queries are written in. A query
// hands registered table parameters to caller closures, which return
// expressions over them:
//
//	q.Where(func(x *expr.Param) expr.Expr {
//		return x.F("Name").Eq("Two")
//	})
package expr

import (
	"reflect"
	"strings"

	"github.com/folkelib/elm/mapping"
)

// Expr is a node of the expression tree.
type Expr interface {
	exprNode()
}

// Param is a table parameter: the x in x.Name == "Two".
type Param struct {
	Name string

	// Type is the mapped Go type. Mapping is set instead for mappings
	// without a Go type.
	Type    reflect.Type
	Mapping *mapping.TypeMapping
}

// Table returns a parameter over T.
func Table[T any](name string) *Param {
	return &Param{Name: name, Type: reflect.TypeFor[T]()}
}

// TableOf returns a parameter over an existing mapping.
func TableOf(tm *mapping.TypeMapping, name string) *Param {
	return &Param{Name: name, Type: tm.Type, Mapping: tm}
}

// F returns a member access chain starting at the parameter. Names may be
// given separately or dotted: F("Author", "Name") equals F("Author.Name").
func (p *Param) F(path ...string) *Member {
	return member(p, path)
}

// Eq compares the whole entity, which compiles to a key comparison.
func (p *Param) Eq(v any) *Binary { return Eq(p, v) }

// Member is a property access on a parameter or another member.
type Member struct {
	Recv Expr
	Name string
}

func member(recv Expr, path []string) *Member {
	var m *Member
	for _, part := range path {
		for _, name := range strings.Split(part, ".") {
			if name == "" {
				continue
			}
			m = &Member{Recv: recv, Name: name}
			recv = m
		}
	}
	if m == nil {
		panic("expr: empty member path")
	}
	return m
}

// F continues the member chain.
func (m *Member) F(path ...string) *Member {
	return member(m, path)
}

// Root returns the parameter a member chain starts at, or nil.
func (m *Member) Root() *Param {
	var e Expr = m
	for {
		switch n := e.(type) {
		case *Member:
			e = n.Recv
		case *Param:
			return n
		default:
			return nil
		}
	}
}

// Path returns the member names from the root.
func (m *Member) Path() []string {
	var names []string
	for e := Expr(m); ; {
		n, ok := e.(*Member)
		if !ok {
			break
		}
		names = append([]string{n.Name}, names...)
		e = n.Recv
	}
	return names
}

func (m *Member) Eq(v any) *Binary         { return Eq(m, v) }
func (m *Member) Ne(v any) *Binary         { return Ne(m, v) }
func (m *Member) Lt(v any) *Binary         { return Lt(m, v) }
func (m *Member) Le(v any) *Binary         { return Le(m, v) }
func (m *Member) Gt(v any) *Binary         { return Gt(m, v) }
func (m *Member) Ge(v any) *Binary         { return Ge(m, v) }
func (m *Member) IsNil() *Binary           { return Eq(m, nil) }
func (m *Member) NotNil() *Binary          { return Ne(m, nil) }
func (m *Member) Like(pattern any) *Call   { return Like(m, pattern) }
func (m *Member) StartsWith(s any) *Call   { return StartsWith(m, s) }
func (m *Member) EndsWith(s any) *Call     { return EndsWith(m, s) }
func (m *Member) Contains(s any) *Call     { return Contains(m, s) }
func (m *Member) Equals(v any) *Call       { return Equals(m, v) }
func (m *Member) Between(lo, hi any) *Call { return Between(m, lo, hi) }
func (m *Member) In(values ...any) *Call   { return In(m, values...) }

// Const is a literal value.
type Const struct {
	Value any
}

// Var is a captured variable. Its value is read when the query compiles and
// sent as a parameter; the same variable used twice shares one parameter.
type Var struct {
	Ptr any
}

// V captures the variable ptr points to.
func V(ptr any) *Var {
	if reflect.ValueOf(ptr).Kind() != reflect.Pointer {
		panic("expr: V needs a pointer")
	}
	return &Var{Ptr: ptr}
}

// Value returns the current value of the variable.
func (v *Var) Value() any {
	return reflect.ValueOf(v.Ptr).Elem().Interface()
}

// Op is a binary operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

var opNames = [...]string{"==", "!=", "<", "<=", ">", ">=", "&&", "||", "+", "-", "*", "/", "%"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "?"
}

// IsComparison reports the operators that yield a boolean from two values.
func (o Op) IsComparison() bool { return o <= OpGe }

// Binary applies an operator to two operands.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// Unary applies an operator to one operand.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Call is a recognized method or function call. Recv is nil for Count().
type Call struct {
	Method string
	Recv   Expr
	Args   []Expr
}

// When is one branch of a Case.
type When struct {
	Cond Expr
	Then Expr
}

// Case is a searched CASE expression.
type Case struct {
	Whens []When
	Else  Expr
}

// Subquery is implemented by query builders usable inside Exists.
type Subquery interface {
	SubqueryParam() *Param
}

// ExistsExpr tests whether a correlated subquery returns rows.
type ExistsExpr struct {
	Query Subquery
	Not   bool
}

func (*Param) exprNode()      {}
func (*Member) exprNode()     {}
func (*Const) exprNode()      {}
func (*Var) exprNode()        {}
func (*Binary) exprNode()     {}
func (*Unary) exprNode()      {}
func (*Call) exprNode()       {}
func (*Case) exprNode()       {}
func (*ExistsExpr) exprNode() {}
