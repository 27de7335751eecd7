package mapping

import (
	"context"
	"fmt"
	"reflect"
)

// Loader resolves handles that were materialized without their data.
type Loader interface {
	LoadByKey(ctx context.Context, t reflect.Type, key any) (any, error)
	LoadCollection(ctx context.Context, c *MappedCollection, ownerKey any) ([]any, error)
}

type refHandle interface {
	elmSet(id any, value any)
	elmGet() (id any, value any)
	elmRefTarget() reflect.Type
}

type collectionHandle interface {
	elmBind(ownerKey any, c *MappedCollection)
	elmCollectionElem() reflect.Type
}

// Ref is a many-to-one reference. It holds either the loaded entity or only
// its key; a zero Ref is a null reference.
type Ref[T any] struct {
	id    any
	value *T
}

// Loaded returns a reference holding v.
func Loaded[T any](v *T) Ref[T] {
	return Ref[T]{value: v}
}

// KeyOnly returns a reference holding only the key of the target.
func KeyOnly[T any](id any) Ref[T] {
	return Ref[T]{id: id}
}

// ID returns the key of the referenced entity when it is known.
func (r Ref[T]) ID() any { return r.id }

// Value returns the referenced entity, or nil when only the key is held.
func (r Ref[T]) Value() *T { return r.value }

func (r Ref[T]) IsLoaded() bool { return r.value != nil }

// IsZero reports a null reference.
func (r Ref[T]) IsZero() bool { return r.id == nil && r.value == nil }

// Resolve returns the referenced entity, loading it through l when only
// the key is held.
func (r *Ref[T]) Resolve(ctx context.Context, l Loader) (*T, error) {
	if r.value != nil || r.id == nil {
		return r.value, nil
	}
	v, err := l.LoadByKey(ctx, reflect.TypeFor[T](), r.id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	t, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("elm: loader returned %T for %s", v, reflect.TypeFor[T]())
	}
	r.value = t
	return t, nil
}

func (r *Ref[T]) elmSet(id any, value any) {
	r.id = id
	r.value = nil
	if v, ok := value.(*T); ok {
		r.value = v
	}
}

func (r *Ref[T]) elmGet() (any, any) {
	if r.value == nil {
		return r.id, nil
	}
	return r.id, r.value
}

func (r *Ref[T]) elmRefTarget() reflect.Type { return reflect.TypeFor[T]() }

// Collection is a one-to-many navigation bound to its owner's key. It is
// empty until loaded.
type Collection[T any] struct {
	ownerKey any
	mapped   *MappedCollection
	items    []*T
	loaded   bool
}

// NewCollection returns a loaded collection holding items.
func NewCollection[T any](items ...*T) Collection[T] {
	return Collection[T]{items: items, loaded: true}
}

func (c Collection[T]) Items() []*T    { return c.items }
func (c Collection[T]) IsLoaded() bool { return c.loaded }
func (c Collection[T]) OwnerKey() any  { return c.ownerKey }

// Load fetches the elements through l. A loaded collection is returned as is.
func (c *Collection[T]) Load(ctx context.Context, l Loader) ([]*T, error) {
	if c.loaded {
		return c.items, nil
	}
	if c.mapped == nil {
		return nil, fmt.Errorf("elm: collection of %s is not bound to an owner", reflect.TypeFor[T]())
	}
	rows, err := l.LoadCollection(ctx, c.mapped, c.ownerKey)
	if err != nil {
		return nil, err
	}
	items := make([]*T, 0, len(rows))
	for _, row := range rows {
		t, ok := row.(*T)
		if !ok {
			return nil, fmt.Errorf("elm: loader returned %T for %s", row, reflect.TypeFor[T]())
		}
		items = append(items, t)
	}
	c.items = items
	c.loaded = true
	return items, nil
}

func (c *Collection[T]) elmBind(ownerKey any, mc *MappedCollection) {
	c.ownerKey = ownerKey
	c.mapped = mc
	c.items = nil
	c.loaded = false
}

func (c *Collection[T]) elmCollectionElem() reflect.Type { return reflect.TypeFor[T]() }

// SetReference stores a reference in the Ref field of struct value v. value
// may be nil to hold only the key.
func (p *PropertyMapping) SetReference(v reflect.Value, id, value any) {
	f := p.Field(v)
	if h, ok := f.Addr().Interface().(refHandle); ok {
		h.elmSet(id, value)
	}
}

// ReferenceOf returns the key and loaded value held by the Ref field of v.
func (p *PropertyMapping) ReferenceOf(v reflect.Value) (id any, value any) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	f, err := v.FieldByIndexErr(p.FieldIndex)
	if err != nil {
		return nil, nil
	}
	if h, ok := f.Addr().Interface().(refHandle); ok {
		return h.elmGet()
	}
	return nil, nil
}
