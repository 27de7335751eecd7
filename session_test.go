package elm_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folkelib/elm"
	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/migrate/diff"
	"github.com/folkelib/elm/query/expr"
)

type Poco struct {
	Id      int
	Name    string
	Active  bool
	Score   *int
	Created time.Time
}

type Author struct {
	Id    int
	Name  string
	Books mapping.Collection[Book]
}

type Book struct {
	Id     int
	Title  string
	Author mapping.Ref[Author]
}

func newSession(t *testing.T) *elm.Session {
	t.Helper()
	s, err := elm.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var tms []*mapping.TypeMapping
	for _, of := range []func(*mapping.Mapper) (*mapping.TypeMapping, error){
		mapping.Of[Poco], mapping.Of[Author], mapping.Of[Book],
	} {
		tm, err := of(s.Mapper())
		require.NoError(t, err)
		tms = append(tms, tm)
	}
	require.NoError(t, diff.New(s.Driver(), s.DB()).CreateTables(context.Background(), tms...))
	return s
}

func seedPocos(t *testing.T, s *elm.Session, names ...string) []*Poco {
	t.Helper()
	var out []*Poco
	for _, n := range names {
		p := &Poco{Name: n, Created: time.Now().UTC().Truncate(time.Second)}
		require.NoError(t, s.Save(context.Background(), p))
		out = append(out, p)
	}
	return out
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	f := faker.New()

	score := f.IntBetween(1, 1000)
	p := &Poco{
		Name:    f.Person().Name(),
		Active:  true,
		Score:   &score,
		Created: time.Date(2024, 3, 9, 13, 4, 5, 0, time.FixedZone("CET", 3600)),
	}
	require.NoError(t, s.Save(ctx, p))
	assert.NotZero(t, p.Id)

	s.ClearCache()
	got, err := elm.Load[Poco](ctx, s, p.Id)
	require.NoError(t, err)
	assert.NotSame(t, p, got)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, got.Active)
	require.NotNil(t, got.Score)
	assert.Equal(t, score, *got.Score)
	assert.True(t, p.Created.Equal(got.Created))
	assert.Equal(t, time.UTC, got.Created.Location())
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	got, err := elm.Get[Poco](ctx, s, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = elm.Load[Poco](ctx, s, 42)
	assert.ErrorIs(t, err, elm.ErrNotFound)
}

func TestOrderByDescLimit(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	var names []string
	for i := range 10 {
		names = append(names, fmt.Sprintf("Name%d", i))
	}
	seedPocos(t, s, names...)

	list, err := elm.Query[Poco](s).
		OrderBy(func(x *expr.Param) expr.Expr { return x.F("Name") }).
		Desc().
		Limit(1, 2).
		List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Name8", list[0].Name)
	assert.Equal(t, "Name7", list[1].Name)
}

func TestStartsWithMatchesWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	seedPocos(t, s, "50%off", "500x", "a_b", "axb")

	list, err := elm.Query[Poco](s).
		Where(func(x *expr.Param) expr.Expr { return x.F("Name").StartsWith("50%") }).
		List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "50%off", list[0].Name)

	list, err = elm.Query[Poco](s).
		Where(func(x *expr.Param) expr.Expr { return x.F("Name").Contains("_") }).
		List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a_b", list[0].Name)
}

func TestCountIgnoresPagingAndCountsGroups(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	seedPocos(t, s, "A", "A", "B", "C", "C")

	paged := elm.Query[Poco](s).
		OrderBy(func(x *expr.Param) expr.Expr { return x.F("Name") }).
		Limit(1, 2)
	list, err := paged.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	n, err := paged.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	n, err = elm.Query[Poco](s).GroupBy(func(x *expr.Param) expr.Expr { return x.F("Name") }).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = elm.Query[Poco](s).Distinct().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestWhereStartsWith(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	seedPocos(t, s, "One", "Two")

	list, err := elm.Query[Poco](s).
		Where(func(x *expr.Param) expr.Expr { return x.F("Name").StartsWith("On") }).
		List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "One", list[0].Name)

	two, err := elm.Query[Poco](s).WhereText(`Name == "Two"`).Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Two", two.Name)

	_, err = elm.Query[Poco](s).WhereText(`Name == "Three"`).Single(ctx)
	assert.ErrorIs(t, err, elm.ErrNotFound)

	n, err := elm.Query[Poco](s).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestIdentityCache(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	saved := seedPocos(t, s, "One", "Two")

	first, err := elm.Query[Poco](s).List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Same(t, saved[0], first[0])
	assert.NotSame(t, first[0], first[1])

	s.ClearCache()
	again, err := elm.Query[Poco](s).List(ctx)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.NotSame(t, first[0], again[0])
	assert.Equal(t, first[0].Id, again[0].Id)

	third, err := elm.Get[Poco](ctx, s, again[1].Id)
	require.NoError(t, err)
	assert.Same(t, again[1], third)
	assert.Positive(t, s.CacheStats().Hits)
	assert.Equal(t, s.CacheStats(), s.Cache().GetStats())
}

func TestReferencesAndCollections(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	f := faker.New()

	author := &Author{Name: f.Person().Name()}
	require.NoError(t, s.Save(ctx, author))
	for i := range 3 {
		b := &Book{Title: fmt.Sprintf("Volume %d", i+1), Author: mapping.Loaded(author)}
		require.NoError(t, s.Save(ctx, b))
	}
	s.ClearCache()

	books, err := elm.Query[Book](s).
		OrderBy(func(x *expr.Param) expr.Expr { return x.F("Id") }).
		List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 3)
	assert.False(t, books[0].Author.IsLoaded())

	a, err := books[0].Author.Resolve(ctx, s)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, author.Name, a.Name)

	b2, err := books[1].Author.Resolve(ctx, s)
	require.NoError(t, err)
	assert.Same(t, a, b2)

	titles := func(bs []*Book) []string {
		var out []string
		for _, b := range bs {
			out = append(out, b.Title)
		}
		return out
	}
	items, err := a.Books.Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Volume 1", "Volume 2", "Volume 3"}, titles(items))

	joined, err := elm.Query[Book](s).
		Where(func(x *expr.Param) expr.Expr { return x.F("Author", "Name").Eq(author.Name) }).
		Include("Author").
		List(ctx)
	require.NoError(t, err)
	require.Len(t, joined, 3)
	assert.True(t, joined[0].Author.IsLoaded())
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	p := seedPocos(t, s, "One")[0]

	p.Name = "Uno"
	require.NoError(t, s.Update(ctx, p))
	s.ClearCache()
	got, err := elm.Load[Poco](ctx, s, p.Id)
	require.NoError(t, err)
	assert.Equal(t, "Uno", got.Name)

	require.NoError(t, s.Delete(ctx, got))
	missing, err := elm.Get[Poco](ctx, s, p.Id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.Save(ctx, Poco{Name: "by value"})
	assert.Error(t, err)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	count := func() int64 {
		n, err := elm.Query[Poco](s).Count(ctx)
		require.NoError(t, err)
		return n
	}

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(s *elm.Session) error {
		require.NoError(t, s.Save(ctx, &Poco{Name: "rolled back"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.InTransaction())
	assert.EqualValues(t, 0, count())

	err = s.Transaction(ctx, func(s *elm.Session) error {
		if err := s.Save(ctx, &Poco{Name: "kept"}); err != nil {
			return err
		}
		inner := s.Transaction(ctx, func(s *elm.Session) error {
			require.NoError(t, s.Save(ctx, &Poco{Name: "nested"}))
			return boom
		})
		assert.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count())

	assert.Equal(t, sql.LevelSerializable, elm.Serializable.TxOptions(true).Isolation)
	require.NoError(t, s.Begin(ctx, nil))
	assert.ErrorIs(t, s.Begin(ctx, nil), elm.ErrTxActive)
	require.NoError(t, s.Save(ctx, &Poco{Name: "manual"}))
	require.NoError(t, s.Commit())
	assert.ErrorIs(t, s.Commit(), elm.ErrNoTx)
	assert.EqualValues(t, 2, count())
}

func TestPanicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	assert.Panics(t, func() {
		_ = s.Transaction(ctx, func(s *elm.Session) error {
			require.NoError(t, s.Save(ctx, &Poco{Name: "lost"}))
			panic("boom")
		})
	})
	assert.False(t, s.InTransaction())
	n, err := elm.Query[Poco](s).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestQueryErrorCarriesSQL(t *testing.T) {
	s, err := elm.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = elm.Query[Poco](s).List(context.Background())
	var qe *elm.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Contains(t, qe.SQL, `FROM "Poco" AS "t"`)
}

func TestOpenUnknownProvider(t *testing.T) {
	_, err := elm.Open("oracle", "")
	assert.Error(t, err)

	s, err := elm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &driver.SQLite{}, s.Driver())
	require.NoError(t, s.Ping(context.Background()))
}
