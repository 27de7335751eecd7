package expr

// Wrap turns a plain Go value into a Const; expressions pass through.
func Wrap(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return &Const{Value: v}
}

func binary(op Op, l, r any) *Binary {
	return &Binary{Op: op, Left: Wrap(l), Right: Wrap(r)}
}

func Eq(l, r any) *Binary  { return binary(OpEq, l, r) }
func Ne(l, r any) *Binary  { return binary(OpNe, l, r) }
func Lt(l, r any) *Binary  { return binary(OpLt, l, r) }
func Le(l, r any) *Binary  { return binary(OpLe, l, r) }
func Gt(l, r any) *Binary  { return binary(OpGt, l, r) }
func Ge(l, r any) *Binary  { return binary(OpGe, l, r) }
func Add(l, r any) *Binary { return binary(OpAdd, l, r) }
func Sub(l, r any) *Binary { return binary(OpSub, l, r) }
func Mul(l, r any) *Binary { return binary(OpMul, l, r) }
func Div(l, r any) *Binary { return binary(OpDiv, l, r) }
func Mod(l, r any) *Binary { return binary(OpMod, l, r) }

// And joins conditions with AND. Nil conditions are skipped.
func And(conds ...Expr) Expr { return fold(OpAnd, conds) }

// Or joins conditions with OR. Nil conditions are skipped.
func Or(conds ...Expr) Expr { return fold(OpOr, conds) }

func fold(op Op, conds []Expr) Expr {
	var out Expr
	for _, c := range conds {
		if c == nil {
			continue
		}
		if out == nil {
			out = c
			continue
		}
		out = &Binary{Op: op, Left: out, Right: c}
	}
	return out
}

func Not(e Expr) *Unary { return &Unary{Op: OpNot, Operand: e} }
func Neg(e Expr) *Unary { return &Unary{Op: OpNeg, Operand: e} }

func call(method string, recv Expr, args ...any) *Call {
	c := &Call{Method: method, Recv: recv}
	for _, a := range args {
		c.Args = append(c.Args, Wrap(a))
	}
	return c
}

// Like matches a SQL LIKE pattern.
func Like(e Expr, pattern any) *Call { return call("Like", e, pattern) }

// StartsWith, EndsWith and Contains compile to LIKE with the value wrapped
// in %.
func StartsWith(e Expr, s any) *Call { return call("StartsWith", e, s) }
func EndsWith(e Expr, s any) *Call   { return call("EndsWith", e, s) }
func Contains(e Expr, s any) *Call   { return call("Contains", e, s) }

func Equals(e Expr, v any) *Call { return call("Equals", e, v) }

func Between(e Expr, lo, hi any) *Call { return call("Between", e, lo, hi) }

func In(e Expr, values ...any) *Call { return call("In", e, values...) }

func Max(e Expr) *Call   { return call("Max", e) }
func Min(e Expr) *Call   { return call("Min", e) }
func Sum(e Expr) *Call   { return call("Sum", e) }
func Avg(e Expr) *Call   { return call("Avg", e) }
func Abs(e Expr) *Call   { return call("Abs", e) }
func Sin(e Expr) *Call   { return call("Sin", e) }
func Cos(e Expr) *Call   { return call("Cos", e) }
func Round(e Expr) *Call { return call("Round", e) }

// Count counts rows, or the non-null values of e when given.
func Count(e ...Expr) *Call {
	if len(e) == 0 {
		return call("Count", nil)
	}
	return call("Count", e[0])
}

// Method builds a call by name. Unrecognized names fail at compile time.
func Method(name string, recv Expr, args ...any) *Call {
	return call(name, recv, args...)
}

// If starts a CASE expression.
func If(cond Expr, then any) *Case {
	return &Case{Whens: []When{{Cond: cond, Then: Wrap(then)}}}
}

// ElseIf adds a branch.
func (c *Case) ElseIf(cond Expr, then any) *Case {
	c.Whens = append(c.Whens, When{Cond: cond, Then: Wrap(then)})
	return c
}

// Otherwise sets the ELSE value.
func (c *Case) Otherwise(v any) *Case {
	c.Else = Wrap(v)
	return c
}

// Exists tests that q returns at least one row.
func Exists(q Subquery) *ExistsExpr { return &ExistsExpr{Query: q} }

// NotExists tests that q returns no rows.
func NotExists(q Subquery) *ExistsExpr { return &ExistsExpr{Query: q, Not: true} }
