// Package ast defines the closed set of SQL nodes queries compile to. Nodes
// are immutable once built; dialect builders walk them through Visitor.
package ast

// Node is an SQL syntax node.
type Node interface {
	Accept(v Visitor)
}

// Visitor receives one call per node kind. Visitors descend into children
// themselves, which fixes the textual layout per dialect.
type Visitor interface {
	VisitColumn(*Column)
	VisitAllColumns(*AllColumns)
	VisitBinary(*Binary)
	VisitUnary(*Unary)
	VisitConstant(*Constant)
	VisitNull(*Null)
	VisitParameter(*Parameter)
	VisitBetween(*Between)
	VisitIn(*In)
	VisitTable(*Table)
	VisitJoin(*Join)
	VisitSelect(*Select)
	VisitAlias(*Alias)
	VisitOrderBy(*OrderBy)
	VisitCase(*Case)
	VisitFunction(*Function)
	VisitExists(*Exists)
	VisitInsert(*Insert)
	VisitUpdate(*Update)
	VisitDelete(*Delete)
}

// Column references a column, qualified by a table alias when Table is set.
type Column struct {
	Table string
	Name  string
	As    string
}

// AllColumns is table.* or *.
type AllColumns struct {
	Table string
}

// BinaryOp is an infix operator.
type BinaryOp int

const (
	OpEq BinaryOp = iota
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
	OpLike
	// OpLikeEscaped is LIKE with LikeEscape as the escape character.
	OpLikeEscaped
)

// LikeEscape escapes wildcards in OpLikeEscaped patterns.
const LikeEscape = '!'

var binaryTokens = [...]string{"=", "<>", "<", "<=", ">", ">=", "AND", "OR", "+", "-", "*", "/", "%", "LIKE", "LIKE"}

// Token returns the SQL text of the operator.
func (o BinaryOp) Token() string { return binaryTokens[o] }

// Binary is a parenthesized infix operation.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// UnaryOp is a prefix or postfix operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpIsNull
	OpIsNotNull
)

// Unary applies a prefix (NOT, -) or postfix (IS NULL, IS NOT NULL) operator.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

// Constant is a literal emitted inline: numbers and booleans.
type Constant struct {
	Value any
}

// Null is the NULL literal.
type Null struct{}

// Parameter is a placeholder bound to the Index-th query argument.
type Parameter struct {
	Index int
}

type Between struct {
	Expr Node
	Low  Node
	High Node
}

type In struct {
	Expr   Node
	Values []Node
}

// Table is a table reference with an optional schema and alias. A Table
// with Query set is a derived table and needs an alias.
type Table struct {
	Schema string
	Name   string
	Alias  string
	Query  *Select
}

// JoinKind selects INNER or LEFT joins.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// Join adds a table to the FROM clause.
type Join struct {
	Kind  JoinKind
	Table *Table
	On    Node
}

// Select is a complete SELECT statement.
type Select struct {
	Distinct bool
	Columns  []Node
	From     *Table
	Joins    []*Join
	Where    Node
	GroupBy  []Node
	Having   Node
	OrderBy  []*OrderBy
	SkipTake *SkipTake
}

// Alias names a select-list expression.
type Alias struct {
	Expr Node
	Name string
}

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Expr Node
	Desc bool
}

// SkipTake paginates a Select. Take < 0 means no row limit.
type SkipTake struct {
	Skip int
	Take int
}

// When is one CASE branch.
type When struct {
	Cond Node
	Then Node
}

// Case is a searched CASE expression.
type Case struct {
	Whens []When
	Else  Node
}

// FuncName names a supported SQL function.
type FuncName string

const (
	FuncMax   FuncName = "MAX"
	FuncMin   FuncName = "MIN"
	FuncSum   FuncName = "SUM"
	FuncAvg   FuncName = "AVG"
	FuncCount FuncName = "COUNT"
	FuncAbs   FuncName = "ABS"
	FuncSin   FuncName = "SIN"
	FuncCos   FuncName = "COS"
	FuncRound FuncName = "ROUND"
)

// IsAggregate reports aggregate functions.
func (f FuncName) IsAggregate() bool {
	switch f {
	case FuncMax, FuncMin, FuncSum, FuncAvg, FuncCount:
		return true
	}
	return false
}

// Function calls a math or aggregate function. COUNT without arguments
// counts rows.
type Function struct {
	Name FuncName
	Args []Node
}

// Exists is an EXISTS (or NOT EXISTS) subquery.
type Exists struct {
	Query *Select
	Not   bool
}

// Insert inserts one row. ReturnKey names the generated key column to read
// back, if any.
type Insert struct {
	Table     *Table
	Columns   []string
	Values    []Node
	ReturnKey string
}

// Assignment is one SET term of an Update.
type Assignment struct {
	Column string
	Value  Node
}

type Update struct {
	Table *Table
	Set   []Assignment
	Where Node
}

type Delete struct {
	Table *Table
	Where Node
}

func (n *Column) Accept(v Visitor)     { v.VisitColumn(n) }
func (n *AllColumns) Accept(v Visitor) { v.VisitAllColumns(n) }
func (n *Binary) Accept(v Visitor)     { v.VisitBinary(n) }
func (n *Unary) Accept(v Visitor)      { v.VisitUnary(n) }
func (n *Constant) Accept(v Visitor)   { v.VisitConstant(n) }
func (n *Null) Accept(v Visitor)       { v.VisitNull(n) }
func (n *Parameter) Accept(v Visitor)  { v.VisitParameter(n) }
func (n *Between) Accept(v Visitor)    { v.VisitBetween(n) }
func (n *In) Accept(v Visitor)         { v.VisitIn(n) }
func (n *Table) Accept(v Visitor)      { v.VisitTable(n) }
func (n *Join) Accept(v Visitor)       { v.VisitJoin(n) }
func (n *Select) Accept(v Visitor)     { v.VisitSelect(n) }
func (n *Alias) Accept(v Visitor)      { v.VisitAlias(n) }
func (n *OrderBy) Accept(v Visitor)    { v.VisitOrderBy(n) }
func (n *Case) Accept(v Visitor)       { v.VisitCase(n) }
func (n *Function) Accept(v Visitor)   { v.VisitFunction(n) }
func (n *Exists) Accept(v Visitor)     { v.VisitExists(n) }
func (n *Insert) Accept(v Visitor)     { v.VisitInsert(n) }
func (n *Update) Accept(v Visitor)     { v.VisitUpdate(n) }
func (n *Delete) Accept(v Visitor)     { v.VisitDelete(n) }
