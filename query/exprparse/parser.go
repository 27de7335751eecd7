// Package exprparse parses the textual form of query expressions, such as
// `Name.StartsWith("On") && Id > 3`, into expression trees.
package exprparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/folkelib/elm/query/expr"
)

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|&&|\|\||[-+*/%<>!(),.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Expression is the root of the parse tree.
type Expression struct {
	Pos lexer.Position
	Or  *OrExpr `@@`
}

type OrExpr struct {
	Left  *AndExpr   `@@`
	Right []*AndExpr `( ( "||" | "or" ) @@ )*`
}

type AndExpr struct {
	Left  *NotExpr   `@@`
	Right []*NotExpr `( ( "&&" | "and" ) @@ )*`
}

type NotExpr struct {
	Not bool     `@( "!" | "not" )?`
	Cmp *CmpExpr `@@`
}

type CmpExpr struct {
	Left  *AddExpr `@@`
	Op    string   `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *AddExpr `  @@ )?`
}

type AddExpr struct {
	Left *MulExpr `@@`
	Rest []*AddOp `@@*`
}

type AddOp struct {
	Op    string   `@( "+" | "-" )`
	Right *MulExpr `@@`
}

type MulExpr struct {
	Left *UnaryExpr `@@`
	Rest []*MulOp   `@@*`
}

type MulOp struct {
	Op    string     `@( "*" | "/" | "%" )`
	Right *UnaryExpr `@@`
}

type UnaryExpr struct {
	Neg     bool     `@"-"?`
	Primary *Primary `@@`
}

type Primary struct {
	Number *string     `  @Number`
	String *string     `| @String`
	Nil    bool        `| @"nil"`
	Bool   *string     `| @( "true" | "false" )`
	Path   *Path       `| @@`
	Group  *Expression `| "(" @@ ")"`
}

// Path is a member chain, optionally ending in a call: Author.Name,
// Name.StartsWith("On"), Count().
type Path struct {
	Pos   lexer.Position
	Parts []string `@Ident ( "." @Ident )*`
	Call  *Args    `( "(" @@ ")" )?`
}

type Args struct {
	Items []*Expression `( @@ ( "," @@ )* )?`
}

var parser = participle.MustBuild[Expression](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// ParseTree parses src without lowering it.
func ParseTree(src string) (*Expression, error) {
	return parser.ParseString("", src)
}

// Parse parses src into an expression over root. Member paths are relative
// to root and may start with its name.
func Parse(root *expr.Param, src string) (expr.Expr, error) {
	tree, err := ParseTree(src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	l := lowerer{root: root}
	return l.expression(tree)
}

// ParseMember parses a bare member path such as "Author.Name".
func ParseMember(root *expr.Param, src string) (*expr.Member, error) {
	e, err := Parse(root, src)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*expr.Member)
	if !ok {
		return nil, fmt.Errorf("%q is not a member path", src)
	}
	return m, nil
}

type lowerer struct {
	root *expr.Param
}

func (l lowerer) expression(e *Expression) (expr.Expr, error) {
	return l.or(e.Or)
}

func (l lowerer) or(e *OrExpr) (expr.Expr, error) {
	out, err := l.and(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Right {
		right, err := l.and(r)
		if err != nil {
			return nil, err
		}
		out = &expr.Binary{Op: expr.OpOr, Left: out, Right: right}
	}
	return out, nil
}

func (l lowerer) and(e *AndExpr) (expr.Expr, error) {
	out, err := l.not(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Right {
		right, err := l.not(r)
		if err != nil {
			return nil, err
		}
		out = &expr.Binary{Op: expr.OpAnd, Left: out, Right: right}
	}
	return out, nil
}

func (l lowerer) not(e *NotExpr) (expr.Expr, error) {
	out, err := l.cmp(e.Cmp)
	if err != nil {
		return nil, err
	}
	if e.Not {
		return expr.Not(out), nil
	}
	return out, nil
}

var cmpOps = map[string]expr.Op{
	"==": expr.OpEq, "!=": expr.OpNe,
	"<": expr.OpLt, "<=": expr.OpLe,
	">": expr.OpGt, ">=": expr.OpGe,
}

func (l lowerer) cmp(e *CmpExpr) (expr.Expr, error) {
	left, err := l.add(e.Left)
	if err != nil {
		return nil, err
	}
	if e.Right == nil {
		return left, nil
	}
	right, err := l.add(e.Right)
	if err != nil {
		return nil, err
	}
	return &expr.Binary{Op: cmpOps[e.Op], Left: left, Right: right}, nil
}

var arithOps = map[string]expr.Op{
	"+": expr.OpAdd, "-": expr.OpSub,
	"*": expr.OpMul, "/": expr.OpDiv, "%": expr.OpMod,
}

func (l lowerer) add(e *AddExpr) (expr.Expr, error) {
	out, err := l.mul(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Rest {
		right, err := l.mul(r.Right)
		if err != nil {
			return nil, err
		}
		out = &expr.Binary{Op: arithOps[r.Op], Left: out, Right: right}
	}
	return out, nil
}

func (l lowerer) mul(e *MulExpr) (expr.Expr, error) {
	out, err := l.unary(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Rest {
		right, err := l.unary(r.Right)
		if err != nil {
			return nil, err
		}
		out = &expr.Binary{Op: arithOps[r.Op], Left: out, Right: right}
	}
	return out, nil
}

func (l lowerer) unary(e *UnaryExpr) (expr.Expr, error) {
	out, err := l.primary(e.Primary)
	if err != nil {
		return nil, err
	}
	if !e.Neg {
		return out, nil
	}
	if c, ok := out.(*expr.Const); ok {
		switch v := c.Value.(type) {
		case int64:
			return &expr.Const{Value: -v}, nil
		case float64:
			return &expr.Const{Value: -v}, nil
		}
	}
	return expr.Neg(out), nil
}

func (l lowerer) primary(p *Primary) (expr.Expr, error) {
	switch {
	case p.Number != nil:
		return number(*p.Number)
	case p.String != nil:
		return &expr.Const{Value: *p.String}, nil
	case p.Nil:
		return &expr.Const{Value: nil}, nil
	case p.Bool != nil:
		return &expr.Const{Value: *p.Bool == "true"}, nil
	case p.Path != nil:
		return l.path(p.Path)
	case p.Group != nil:
		return l.expression(p.Group)
	}
	return nil, fmt.Errorf("empty expression")
}

func number(s string) (expr.Expr, error) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return &expr.Const{Value: f}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &expr.Const{Value: n}, nil
}

func (l lowerer) path(p *Path) (expr.Expr, error) {
	parts := p.Parts
	if len(parts) > 1 && l.root.Name != "" && parts[0] == l.root.Name {
		parts = parts[1:]
	}
	if p.Call == nil {
		return l.root.F(parts...), nil
	}

	args := make([]any, 0, len(p.Call.Items))
	for _, item := range p.Call.Items {
		a, err := l.expression(item)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	method := parts[len(parts)-1]
	if len(parts) > 1 {
		return expr.Method(method, l.root.F(parts[:len(parts)-1]...), args...), nil
	}
	// Free functions take their receiver as the first argument.
	if len(args) == 0 {
		if method == "Count" {
			return expr.Count(), nil
		}
		return nil, fmt.Errorf("%s: %s() needs an argument", p.Pos, method)
	}
	return expr.Method(method, args[0].(expr.Expr), args[1:]...), nil
}
