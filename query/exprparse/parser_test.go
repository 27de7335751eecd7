package exprparse_test

import (
	"testing"

	"github.com/folkelib/elm/query/expr"
	"github.com/folkelib/elm/query/exprparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Poco struct {
	Id   int
	Name string
}

func TestParse(t *testing.T) {
	x := expr.Table[Poco]("x")

	t.Run("comparison", func(t *testing.T) {
		e, err := exprparse.Parse(x, `Name == "Two"`)
		require.NoError(t, err)

		b, ok := e.(*expr.Binary)
		require.True(t, ok)
		assert.Equal(t, expr.OpEq, b.Op)
		assert.Equal(t, []string{"Name"}, b.Left.(*expr.Member).Path())
		assert.Equal(t, "Two", b.Right.(*expr.Const).Value)
	})

	t.Run("precedence", func(t *testing.T) {
		e, err := exprparse.Parse(x, `Id > 1 && Id < 5 || Name == nil`)
		require.NoError(t, err)

		or := e.(*expr.Binary)
		assert.Equal(t, expr.OpOr, or.Op)
		and := or.Left.(*expr.Binary)
		assert.Equal(t, expr.OpAnd, and.Op)
		assert.Nil(t, or.Right.(*expr.Binary).Right.(*expr.Const).Value)
	})

	t.Run("arithmetic", func(t *testing.T) {
		e, err := exprparse.Parse(x, `Id * 2 + 1 >= -3`)
		require.NoError(t, err)

		cmp := e.(*expr.Binary)
		assert.Equal(t, expr.OpGe, cmp.Op)
		add := cmp.Left.(*expr.Binary)
		assert.Equal(t, expr.OpAdd, add.Op)
		assert.Equal(t, expr.OpMul, add.Left.(*expr.Binary).Op)
		assert.Equal(t, int64(-3), cmp.Right.(*expr.Const).Value)
	})

	t.Run("method call", func(t *testing.T) {
		e, err := exprparse.Parse(x, `x.Name.StartsWith("On")`)
		require.NoError(t, err)

		c := e.(*expr.Call)
		assert.Equal(t, "StartsWith", c.Method)
		assert.Equal(t, []string{"Name"}, c.Recv.(*expr.Member).Path())
		assert.Equal(t, "On", c.Args[0].(*expr.Const).Value)
	})

	t.Run("functions", func(t *testing.T) {
		e, err := exprparse.Parse(x, `Count()`)
		require.NoError(t, err)
		assert.Nil(t, e.(*expr.Call).Recv)

		e, err = exprparse.Parse(x, `Abs(Id - 3) < 2.5`)
		require.NoError(t, err)
		abs := e.(*expr.Binary).Left.(*expr.Call)
		assert.Equal(t, "Abs", abs.Method)
		assert.Equal(t, 2.5, e.(*expr.Binary).Right.(*expr.Const).Value)
	})

	t.Run("not and grouping", func(t *testing.T) {
		e, err := exprparse.Parse(x, `!(Id == 1 || Id == 2)`)
		require.NoError(t, err)

		u := e.(*expr.Unary)
		assert.Equal(t, expr.OpNot, u.Op)
		assert.Equal(t, expr.OpOr, u.Operand.(*expr.Binary).Op)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := exprparse.Parse(x, `Name ==`)
		assert.Error(t, err)
	})
}

func TestParseMember(t *testing.T) {
	x := expr.Table[Poco]("x")

	m, err := exprparse.ParseMember(x, "Author.Name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Author", "Name"}, m.Path())

	_, err = exprparse.ParseMember(x, "Id + 1")
	assert.Error(t, err)
}
