package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/cache"
	"github.com/folkelib/elm/query/sqlgen"
)

type author struct {
	ID    int
	Name  string
	Books mapping.Collection[book]
}

type book struct {
	ID     int
	Title  string
	Author mapping.Ref[author]
	Rating *int
}

type point struct {
	X int
	Y int
}

func (point) TableName() string { return "points" }

type passthrough struct{}

func (passthrough) ConvertReaderValue(raw any, _ *mapping.PropertyMapping) (any, error) {
	return raw, nil
}

func mappings(t *testing.T) (*mapping.TypeMapping, *mapping.TypeMapping) {
	m := mapping.NewMapper()
	bm, err := mapping.Of[book](m)
	require.NoError(t, err)
	am, err := mapping.Of[author](m)
	require.NoError(t, err)
	return bm, am
}

func col(t *testing.T, tm *mapping.TypeMapping, name string) *mapping.PropertyMapping {
	p, ok := tm.Column(name)
	require.True(t, ok, name)
	return p
}

func bookPlan(t *testing.T, joined bool) *Plan {
	bm, am := mappings(t)
	root := &TablePlan{Mapping: bm, Columns: bm.Columns()}
	if joined {
		root.Children = map[*mapping.PropertyMapping]*TablePlan{
			col(t, bm, "Author"): {Mapping: am, Offset: len(bm.Columns()), Columns: []*mapping.PropertyMapping{col(t, am, "ID"), col(t, am, "Name")}},
		}
	}
	return &Plan{Roots: []*TablePlan{root}}
}

func TestMaterializeJoinedReferenceSharesInstance(t *testing.T) {
	plan := bookPlan(t, true)
	m := NewMaterializer(passthrough{}, cache.New())

	r1, err := m.Row(plan, []any{int64(1), "A", int64(10), nil, int64(10), "Ann"})
	require.NoError(t, err)
	r2, err := m.Row(plan, []any{int64(2), "B", int64(10), int64(5), int64(10), "Ann"})
	require.NoError(t, err)

	b1, b2 := r1[0].(*book), r2[0].(*book)
	assert.NotSame(t, b1, b2)
	assert.Equal(t, "A", b1.Title)
	assert.Nil(t, b1.Rating)
	require.NotNil(t, b2.Rating)
	assert.Equal(t, 5, *b2.Rating)

	require.True(t, b1.Author.IsLoaded())
	assert.Same(t, b1.Author.Value(), b2.Author.Value())
	assert.Equal(t, "Ann", b1.Author.Value().Name)
	assert.Equal(t, 10, b1.Author.ID())
}

func TestMaterializeReferenceWithoutJoin(t *testing.T) {
	plan := bookPlan(t, false)
	c := cache.New()
	m := NewMaterializer(passthrough{}, c)

	row, err := m.Row(plan, []any{int64(1), "A", int64(10), nil})
	require.NoError(t, err)
	b := row[0].(*book)
	assert.False(t, b.Author.IsLoaded())
	assert.Equal(t, int64(10), b.Author.ID())

	_, am := mappings(t)
	ann := &author{ID: 10, Name: "Ann"}
	c.Put(am.ID, 10, ann)

	row, err = m.Row(plan, []any{int64(2), "B", int64(10), nil})
	require.NoError(t, err)
	assert.Same(t, ann, row[0].(*book).Author.Value())

	row, err = m.Row(plan, []any{int64(3), "C", nil, nil})
	require.NoError(t, err)
	assert.True(t, row[0].(*book).Author.IsZero())
}

func TestMaterializeNullKeyAndLeftJoin(t *testing.T) {
	plan := bookPlan(t, true)
	m := NewMaterializer(passthrough{}, cache.New())

	row, err := m.Row(plan, []any{int64(1), "A", nil, nil, nil, nil})
	require.NoError(t, err)
	assert.True(t, row[0].(*book).Author.IsZero())

	row, err = m.Row(plan, []any{nil, nil, nil, nil, nil, nil})
	require.NoError(t, err)
	assert.Nil(t, row[0])
}

func TestMaterializeIdentityAndClear(t *testing.T) {
	plan := bookPlan(t, false)
	c := cache.New()
	m := NewMaterializer(passthrough{}, c)

	r1, err := m.Row(plan, []any{int64(1), "A", nil, nil})
	require.NoError(t, err)
	r2, err := m.Row(plan, []any{int64(1), "A2", nil, nil})
	require.NoError(t, err)
	assert.Same(t, r1[0], r2[0])
	assert.Equal(t, "A2", r1[0].(*book).Title)

	c.Clear()
	r3, err := m.Row(plan, []any{int64(1), "A", nil, nil})
	require.NoError(t, err)
	assert.NotSame(t, r1[0], r3[0])
}

func TestMaterializeBindsCollections(t *testing.T) {
	_, am := mappings(t)
	plan := &Plan{Roots: []*TablePlan{{Mapping: am, Columns: am.Columns()}}}
	m := NewMaterializer(passthrough{}, cache.New())

	row, err := m.Row(plan, []any{int64(10), "Ann"})
	require.NoError(t, err)
	a := row[0].(*author)
	assert.False(t, a.Books.IsLoaded())
	assert.Equal(t, 10, a.Books.OwnerKey())
}

func TestMaterializeKeylessRowsAreDistinct(t *testing.T) {
	pm, err := mapping.Of[point](mapping.NewMapper())
	require.NoError(t, err)
	plan := &Plan{Roots: []*TablePlan{{Mapping: pm, Columns: pm.Columns()}}}
	m := NewMaterializer(passthrough{}, cache.New())

	r1, err := m.Row(plan, []any{int64(1), int64(2)})
	require.NoError(t, err)
	r2, err := m.Row(plan, []any{int64(1), int64(2)})
	require.NoError(t, err)
	assert.NotSame(t, r1[0], r2[0])
	assert.Equal(t, &point{X: 1, Y: 2}, r1[0])
}

func TestMaterializeConversionError(t *testing.T) {
	plan := bookPlan(t, false)
	m := NewMaterializer(passthrough{}, nil)

	_, err := m.Row(plan, []any{int64(1), int64(5), nil, nil})
	assert.ErrorContains(t, err, "column Title")

	_, err = m.Row(plan, []any{int64(1)})
	assert.Error(t, err)
}

func TestExecutorFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM "book"`).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "Title", "Author_id", "Rating"}).
			AddRow(int64(1), "A", int64(10), nil))

	e := New(db, nil)
	q := &sqlgen.Query{SQL: `SELECT * FROM "book" WHERE "Title" = $1`, Args: []any{"A"}}
	rows, err := e.Fetch(context.Background(), q, NewMaterializer(passthrough{}, cache.New()), bookPlan(t, false))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0][0].(*book).Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	mock.ExpectExec(`DELETE`).WillReturnError(boom)
	mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows([]string{"n"}))

	e := New(db, func(args []any) []any { return append(args, "bound") })
	_, err = e.Exec(context.Background(), &sqlgen.Query{SQL: "DELETE FROM t"})
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "DELETE FROM t", qe.SQL)
	assert.ErrorIs(t, err, boom)

	v, err := e.Scalar(context.Background(), &sqlgen.Query{SQL: "SELECT COUNT(*) FROM t"})
	require.NoError(t, err)
	assert.Nil(t, v)
}
