package mapping_test

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/folkelib/elm/mapping"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Poco struct {
	Id   int
	Name string
}

type Address struct {
	City   string
	Street string `elm:"size=80"`
}

type Author struct {
	ID    int64
	Name  string `elm:"size=100;index=ix_author_name"`
	Books mapping.Collection[Book]
}

type Book struct {
	ID        int64
	Title     string
	Author    mapping.Ref[Author] `elm:"ondelete=cascade"`
	Published *time.Time
	Home      Address
	Tags      []string `elm:"json"`
	Ignored   string   `elm:"-"`
}

type Employee struct {
	ID      uuid.UUID
	Manager mapping.Ref[Employee]
}

type Left struct {
	ID    int
	Right mapping.Ref[Right]
}

type Right struct {
	ID   int
	Left mapping.Ref[Left]
}

type Named struct {
	Code string `elm:"key"`
}

func (Named) TableName() string   { return "named_things" }
func (Named) TableSchema() string { return "app" }

type BadPointer struct {
	ID     int
	Author *Author
}

type BadMap struct {
	ID    int
	Attrs map[string]string
}

func TestGetTypeMapping(t *testing.T) {
	t.Run("conventional key", func(t *testing.T) {
		m := mapping.NewMapper()
		tm, err := mapping.Of[Poco](m)
		require.NoError(t, err)

		assert.Equal(t, "Poco", tm.TableName)
		require.NotNil(t, tm.Key)
		assert.Equal(t, "Id", tm.Key.Name)
		assert.True(t, tm.Key.IsAutomatic)
		assert.False(t, tm.Key.Nullable)
		assert.Equal(t, mapping.KindString, tm.Columns()[1].Kind)
		assert.False(t, tm.Columns()[1].Nullable)
	})

	t.Run("memoized", func(t *testing.T) {
		m := mapping.NewMapper()
		a, err := mapping.Of[Poco](m)
		require.NoError(t, err)
		b, err := m.GetTypeMapping(reflect.TypeOf(&Poco{}))
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("columns, references and complex members", func(t *testing.T) {
		m := mapping.NewMapper()
		tm, err := mapping.Of[Book](m)
		require.NoError(t, err)

		var names []string
		for _, p := range tm.Columns() {
			names = append(names, p.ColumnName)
		}
		assert.Equal(t, []string{"ID", "Title", "Author_id", "Published", "Home_City", "Home_Street", "Tags"}, names)

		author, ok := tm.Column("Author")
		require.True(t, ok)
		assert.True(t, author.IsReference())
		assert.Equal(t, "Author", author.Reference.Name)
		assert.Equal(t, mapping.ActionCascade, author.OnDelete)
		assert.True(t, author.Nullable)

		published, _ := tm.Column("Published")
		assert.True(t, published.Nullable)
		assert.Equal(t, mapping.KindTime, published.Kind)

		street, ok := tm.Column("Home.Street")
		require.True(t, ok)
		assert.Equal(t, 80, street.MaxLength)

		tags, _ := tm.Column("Tags")
		assert.True(t, tags.IsJSON)
		assert.Equal(t, mapping.KindJSON, tags.Kind)

		_, ok = tm.Column("Ignored")
		assert.False(t, ok)
		assert.False(t, m.IsMapped(reflect.TypeOf(Address{})))
	})

	t.Run("collection back reference", func(t *testing.T) {
		m := mapping.NewMapper()
		tm, err := mapping.Of[Author](m)
		require.NoError(t, err)

		books, ok := tm.Collections["Books"]
		require.True(t, ok)
		assert.Equal(t, "Book", books.Element.Name)
		require.NotNil(t, books.ForeignKey)
		assert.Equal(t, "Author", books.ForeignKey.Name)
		assert.Same(t, tm, books.ForeignKey.Reference)

		name, _ := tm.Column("Name")
		assert.Equal(t, "ix_author_name", name.Index)
	})

	t.Run("self reference", func(t *testing.T) {
		m := mapping.NewMapper()
		tm, err := mapping.Of[Employee](m)
		require.NoError(t, err)

		manager, _ := tm.Column("Manager")
		assert.Same(t, tm, manager.Reference)
		assert.Equal(t, mapping.KindUUID, tm.Key.Kind)
		assert.False(t, tm.Key.IsAutomatic)
	})

	t.Run("mutual references", func(t *testing.T) {
		m := mapping.NewMapper()
		left, err := mapping.Of[Left](m)
		require.NoError(t, err)
		right, err := mapping.Of[Right](m)
		require.NoError(t, err)

		l, _ := left.Column("Right")
		r, _ := right.Column("Left")
		assert.Same(t, right, l.Reference)
		assert.Same(t, left, r.Reference)
	})

	t.Run("table hints", func(t *testing.T) {
		m := mapping.NewMapper()
		tm, err := mapping.Of[Named](m)
		require.NoError(t, err)

		assert.Equal(t, "named_things", tm.TableName)
		assert.Equal(t, "app", tm.TableSchema)
		assert.Equal(t, "app.named_things", tm.QualifiedName())
		assert.Equal(t, "Code", tm.Key.Name)
		assert.False(t, tm.Key.IsAutomatic)
	})
}

func TestGetTypeMappingErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		err  error
	}{
		{name: "any", typ: reflect.TypeOf((*any)(nil)).Elem(), err: mapping.ErrUnmappableType},
		{name: "scalar", typ: reflect.TypeOf(0), err: mapping.ErrUnmappableType},
		{name: "plain pointer to a table", typ: reflect.TypeOf(BadPointer{}), err: mapping.ErrUnsupportedType},
		{name: "map field", typ: reflect.TypeOf(BadMap{}), err: mapping.ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mapping.NewMapper()
			_, err := m.GetTypeMapping(tt.typ)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, m.Mappings())
		})
	}
}

func TestIsMappedAndGetKey(t *testing.T) {
	m := mapping.NewMapper()

	assert.True(t, m.IsMapped(reflect.TypeOf(Poco{})))
	assert.True(t, m.IsMapped(reflect.TypeOf(Named{})))
	assert.False(t, m.IsMapped(reflect.TypeOf(Address{})))
	assert.False(t, m.IsMapped(reflect.TypeOf("")))

	key, err := m.GetKey(reflect.TypeOf(Poco{}))
	require.NoError(t, err)
	assert.Equal(t, "Id", key.Name)

	_, err = m.GetKey(reflect.TypeOf(Address{}))
	assert.ErrorIs(t, err, mapping.ErrNoKey)
}

func TestSnakePluralNaming(t *testing.T) {
	m := mapping.NewMapper(mapping.WithNaming(mapping.SnakePluralNaming{}))
	tm, err := mapping.Of[Book](m)
	require.NoError(t, err)

	assert.Equal(t, "books", tm.TableName)
	author, _ := tm.Column("Author")
	assert.Equal(t, "author_id", author.ColumnName)
	city, _ := tm.Column("Home.City")
	assert.Equal(t, "home_city", city.ColumnName)
}

func TestFluentConfiguration(t *testing.T) {
	m := mapping.NewMapper()
	mapping.For[Poco](m).
		Table("pocos").
		Schema("dbo").
		Property("Name").Column("poco_name").MaxLength(50).Index("ix_name").Nullable(true)

	tm, err := mapping.Of[Poco](m)
	require.NoError(t, err)

	assert.Equal(t, "pocos", tm.TableName)
	assert.Equal(t, "dbo", tm.TableSchema)
	name, _ := tm.Column("Name")
	assert.Equal(t, "poco_name", name.ColumnName)
	assert.Equal(t, 50, name.MaxLength)
	assert.Equal(t, "ix_name", name.Index)
	assert.True(t, name.Nullable)
	p, ok := tm.ColumnByName("POCO_NAME")
	require.True(t, ok)
	assert.Same(t, name, p)
}

const descriptorYAML = `
types:
  - name: Customer
    table: customers
    properties:
      - {name: Id, type: int}
      - {name: Email, type: string, size: 120, index: ix_email}
      - {name: Address, complex: PostalAddress}
    collections:
      - {name: Orders, element: Order}
  - name: PostalAddress
    complex: true
    properties:
      - {name: Zip, type: string, size: 10}
  - name: Order
    properties:
      - {name: Id, type: int64}
      - {name: Customer, reference: Customer, ondelete: cascade}
      - {name: Total, type: float64, nullable: true}
`

func TestDescriptors(t *testing.T) {
	d, err := mapping.ParseDescriptor(strings.NewReader(descriptorYAML))
	require.NoError(t, err)

	m := mapping.NewMapper()
	require.NoError(t, m.RegisterDescriptors(d))
	assert.Equal(t, []string{"Customer", "Order", "PostalAddress"}, m.Descriptors())

	customer, err := m.ByName("Customer")
	require.NoError(t, err)
	assert.Nil(t, customer.Type)
	assert.Equal(t, "customers", customer.TableName)
	assert.True(t, customer.Key.IsAutomatic)

	zip, ok := customer.Column("Address.Zip")
	require.True(t, ok)
	assert.Equal(t, "Address_Zip", zip.ColumnName)

	orders := customer.Collections["Orders"]
	require.NotNil(t, orders)
	assert.Equal(t, "Customer_id", orders.ForeignKey.ColumnName)

	order, err := m.ByName("Order")
	require.NoError(t, err)
	assert.Same(t, orders.Element, order)
	total, _ := order.Column("Total")
	assert.True(t, total.Nullable)

	assert.Error(t, m.RegisterDescriptors(d), "types cannot be declared twice")
}

func TestConcurrentFirstMapping(t *testing.T) {
	m := mapping.NewMapper()
	results := make([]*mapping.TypeMapping, 16)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tm, err := mapping.Of[Book](m)
			if err == nil {
				results[i] = tm
			}
		}(i)
	}
	wg.Wait()

	for _, tm := range results {
		require.NotNil(t, tm)
		assert.Same(t, results[0], tm)
	}
}

type stubLoader struct {
	authors map[any]*Author
}

func (l stubLoader) LoadByKey(_ context.Context, _ reflect.Type, key any) (any, error) {
	return l.authors[key], nil
}

func (l stubLoader) LoadCollection(context.Context, *mapping.MappedCollection, any) ([]any, error) {
	return []any{&Book{ID: 1}, &Book{ID: 2}}, nil
}

func TestRefAndCollection(t *testing.T) {
	ctx := context.Background()
	loader := stubLoader{authors: map[any]*Author{int64(7): {ID: 7, Name: "Ann"}}}

	ref := mapping.KeyOnly[Author](int64(7))
	assert.False(t, ref.IsLoaded())
	assert.False(t, ref.IsZero())

	a, err := ref.Resolve(ctx, loader)
	require.NoError(t, err)
	assert.Equal(t, "Ann", a.Name)
	assert.True(t, ref.IsLoaded())

	var null mapping.Ref[Author]
	assert.True(t, null.IsZero())
	v, err := null.Resolve(ctx, loader)
	require.NoError(t, err)
	assert.Nil(t, v)

	m := mapping.NewMapper()
	tm, err := mapping.Of[Author](m)
	require.NoError(t, err)

	owner := &Author{ID: 7}
	tm.Collections["Books"].Bind(reflect.ValueOf(owner), int64(7))
	assert.False(t, owner.Books.IsLoaded())
	assert.Equal(t, int64(7), owner.Books.OwnerKey())

	books, err := owner.Books.Load(ctx, loader)
	require.NoError(t, err)
	assert.Len(t, books, 2)
	assert.True(t, owner.Books.IsLoaded())
}

func TestKeyValueOfLoadedReference(t *testing.T) {
	m := mapping.NewMapper()
	tm, err := mapping.Of[Book](m)
	require.NoError(t, err)

	author, _ := tm.Column("Author")
	b := &Book{Author: mapping.Loaded(&Author{ID: 3})}
	assert.Equal(t, int64(3), author.Get(reflect.ValueOf(b)))

	b.Author = mapping.KeyOnly[Author](int64(4))
	assert.Equal(t, int64(4), author.Get(reflect.ValueOf(b)))

	key, err := tm.KeyValue(&Book{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(9), key)
}
