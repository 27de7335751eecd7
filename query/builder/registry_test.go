package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/expr"
)

type owner struct {
	ID   int
	Name string
}

type pet struct {
	ID     int
	Owner  mapping.Ref[owner]
	Backup mapping.Ref[owner]
}

func TestRegisterTableAliases(t *testing.T) {
	reg := NewTableRegistry(mapping.NewMapper())
	a, b, c := expr.Table[pet]("a"), expr.Table[owner]("b"), expr.Table[owner]("c")

	ta, err := reg.RegisterTable(a, "")
	require.NoError(t, err)
	tb, err := reg.RegisterTable(b, "")
	require.NoError(t, err)
	tc, err := reg.RegisterTable(c, "mine")
	require.NoError(t, err)

	assert.Equal(t, "t", ta.Alias)
	assert.Equal(t, "t1", tb.Alias)
	assert.Equal(t, "mine", tc.Alias)

	again, err := reg.RegisterTable(a, "")
	require.NoError(t, err)
	assert.Same(t, ta, again)
}

func TestChildIsMemoizedPerProperty(t *testing.T) {
	reg := NewTableRegistry(mapping.NewMapper())
	root, err := reg.RegisterTable(expr.Table[pet]("x"), "")
	require.NoError(t, err)

	ownerProp, _ := root.Mapping.Column("Owner")
	backupProp, _ := root.Mapping.Column("Backup")

	first, err := reg.Child(root, ownerProp)
	require.NoError(t, err)
	second, err := reg.Child(root, ownerProp)
	require.NoError(t, err)
	other, err := reg.Child(root, backupProp)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotEqual(t, first.Alias, other.Alias)
	assert.Same(t, root, first.Parent)
	assert.Same(t, ownerProp, first.Property)
	assert.Len(t, reg.Joins(), 2)
}

func TestExpressionToColumn(t *testing.T) {
	reg := NewTableRegistry(mapping.NewMapper())
	x := expr.Table[pet]("x")
	_, err := reg.RegisterTable(x, "")
	require.NoError(t, err)

	res, err := reg.ExpressionToColumn(x.F("Owner.ID"))
	require.NoError(t, err)
	assert.Equal(t, "t", res.Table.Alias)
	assert.Equal(t, "Owner_id", res.Property.ColumnName)
	assert.Empty(t, reg.Joins())

	res, err = reg.ExpressionToColumn(x.F("Owner.Name"))
	require.NoError(t, err)
	assert.Equal(t, "t1", res.Table.Alias)
	assert.Equal(t, "Name", res.Column().Name)
	assert.Len(t, reg.Joins(), 1)

	_, err = reg.ExpressionToColumn(expr.Table[owner]("y").F("Name"))
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestScopeSharesAliasesAndParameters(t *testing.T) {
	reg := NewTableRegistry(mapping.NewMapper())
	x := expr.Table[pet]("x")
	outer, err := reg.RegisterTable(x, "")
	require.NoError(t, err)

	inner := reg.Scope()
	o := expr.Table[owner]("o")
	st, err := inner.RegisterTable(o, "")
	require.NoError(t, err)
	assert.Equal(t, "t1", st.Alias)

	found, ok := inner.Lookup(x)
	require.True(t, ok)
	assert.Same(t, outer, found)

	_, ok = reg.Lookup(o)
	assert.False(t, ok)
}

func TestScopeJoinsFromOuterTableAreLocal(t *testing.T) {
	reg := NewTableRegistry(mapping.NewMapper())
	x := expr.Table[pet]("x")
	outer, err := reg.RegisterTable(x, "")
	require.NoError(t, err)
	ownerProp, _ := outer.Mapping.Column("Owner")

	inner := reg.Scope()
	first, err := inner.Child(outer, ownerProp)
	require.NoError(t, err)
	again, err := inner.Child(outer, ownerProp)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Len(t, inner.Joins(), 1)
	assert.Empty(t, outer.Children)
	assert.Empty(t, reg.Joins())

	own, err := reg.Child(outer, ownerProp)
	require.NoError(t, err)
	assert.NotSame(t, first, own)
	assert.NotEqual(t, first.Alias, own.Alias)
	assert.Len(t, reg.Joins(), 1)
}

func TestUnqualifiedRegistryRefusesJoins(t *testing.T) {
	reg := newUnqualifiedRegistry(mapping.NewMapper())
	x := expr.Table[pet]("x")
	st, err := reg.RegisterTable(x, "")
	require.NoError(t, err)
	assert.Empty(t, st.Alias)

	_, err = reg.ExpressionToColumn(x.F("Owner.Name"))
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestCompilerDeduplicatesVariables(t *testing.T) {
	c := NewCompiler(NewTableRegistry(mapping.NewMapper()))
	n := 5
	v := expr.V(&n)

	first, err := c.Value(v)
	require.NoError(t, err)
	second, err := c.Value(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []any{5}, c.Params())

	_, err = c.Value(&expr.Const{Value: "s"})
	require.NoError(t, err)
	assert.Equal(t, []any{5, "s"}, c.Params())
}
