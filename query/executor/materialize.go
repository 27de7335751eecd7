package executor

import (
	"fmt"
	"reflect"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/cache"
)

// Converter turns a raw driver value into a value of the property's column
// type, or nil for SQL NULL. For a reference property the target is the
// referenced key.
type Converter interface {
	ConvertReaderValue(raw any, p *mapping.PropertyMapping) (any, error)
}

// Plan lays out the columns of a result row. Each root produces one object
// per row.
type Plan struct {
	Roots []*TablePlan
}

// TablePlan is a run of columns belonging to one selected table. Children
// are joined tables whose columns are also in the row, keyed by the
// reference property that joined them.
type TablePlan struct {
	Mapping  *mapping.TypeMapping
	Offset   int
	Columns  []*mapping.PropertyMapping
	Children map[*mapping.PropertyMapping]*TablePlan
}

// Width returns the number of row values consumed by the table and its
// children.
func (p *TablePlan) Width() int {
	n := len(p.Columns)
	for _, c := range p.Children {
		n += c.Width()
	}
	return n
}

func (p *TablePlan) keyIndex() int {
	if p.Mapping.Key == nil {
		return -1
	}
	for i, c := range p.Columns {
		if c == p.Mapping.Key {
			return i
		}
	}
	return -1
}

// Materializer builds objects from rows. Objects with a key are shared
// through the identity cache, so every row naming the same entity yields
// the same instance.
type Materializer struct {
	conv  Converter
	cache *cache.Identity
}

// NewMaterializer creates a materializer. A nil cache disables identity
// sharing.
func NewMaterializer(conv Converter, c *cache.Identity) *Materializer {
	return &Materializer{conv: conv, cache: c}
}

// Row materializes every root of plan from one row. A root whose key is NULL
// yields a nil entry.
func (m *Materializer) Row(plan *Plan, row []any) ([]any, error) {
	out := make([]any, len(plan.Roots))
	for i, tp := range plan.Roots {
		v, err := m.object(tp, row)
		if err != nil {
			return nil, err
		}
		if v.IsValid() {
			out[i] = v.Interface()
		}
	}
	return out, nil
}

// object returns a pointer to the materialized object, or an invalid value
// when the row holds no entity for tp.
func (m *Materializer) object(tp *TablePlan, row []any) (reflect.Value, error) {
	if tp.Offset+len(tp.Columns) > len(row) {
		return reflect.Value{}, fmt.Errorf("row has %d values, %s needs %d", len(row), tp.Mapping.Name, tp.Offset+len(tp.Columns))
	}
	var key any
	if ki := tp.keyIndex(); ki >= 0 {
		raw := row[tp.Offset+ki]
		if raw == nil {
			return reflect.Value{}, nil
		}
		k, err := m.conv.ConvertReaderValue(raw, tp.Mapping.Key)
		if err != nil {
			return reflect.Value{}, columnErr(tp.Mapping.Key, err)
		}
		key = k
	}

	var obj reflect.Value
	fresh := true
	if key != nil && m.cache != nil {
		if cached, ok := m.cache.Get(tp.Mapping.ID, key); ok {
			obj = reflect.ValueOf(cached)
			fresh = false
		}
	}
	if !obj.IsValid() {
		v, err := tp.Mapping.New()
		if err != nil {
			return reflect.Value{}, err
		}
		obj = v
		if key != nil && m.cache != nil {
			m.cache.Put(tp.Mapping.ID, key, obj.Interface())
		}
	}

	for i, p := range tp.Columns {
		raw := row[tp.Offset+i]
		if p.IsReference() {
			if err := m.reference(obj, p, raw, tp.Children[p], row); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		val, err := m.conv.ConvertReaderValue(raw, p)
		if err != nil {
			return reflect.Value{}, columnErr(p, err)
		}
		if err := assign(p.Field(obj), val); err != nil {
			return reflect.Value{}, columnErr(p, err)
		}
	}

	if fresh && key != nil {
		for _, c := range tp.Mapping.Collections {
			c.Bind(obj, key)
		}
	}
	return obj, nil
}

func (m *Materializer) reference(obj reflect.Value, p *mapping.PropertyMapping, raw any, child *TablePlan, row []any) error {
	if child != nil {
		target, err := m.object(child, row)
		if err != nil {
			return err
		}
		if !target.IsValid() {
			p.SetReference(obj, nil, nil)
			return nil
		}
		key, err := child.Mapping.KeyValue(target.Interface())
		if err != nil {
			return err
		}
		p.SetReference(obj, key, target.Interface())
		return nil
	}
	if raw == nil {
		p.SetReference(obj, nil, nil)
		return nil
	}
	key, err := m.conv.ConvertReaderValue(raw, p.Reference.Key)
	if err != nil {
		return columnErr(p, err)
	}
	if m.cache != nil {
		if cached, ok := m.cache.Get(p.Reference.ID, key); ok {
			p.SetReference(obj, key, cached)
			return nil
		}
	}
	p.SetReference(obj, key, nil)
	return nil
}

func columnErr(p *mapping.PropertyMapping, err error) error {
	return fmt.Errorf("column %s of %s: %w", p.ColumnName, p, err)
}

// assign stores val in field f, wrapping it in a pointer or converting
// between named and underlying types as needed.
func assign(f reflect.Value, val any) error {
	if val == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	t := f.Type()
	if t.Kind() == reflect.Pointer && v.Type() != t {
		cv, err := convert(v, t.Elem())
		if err != nil {
			return err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(cv)
		f.Set(ptr)
		return nil
	}
	cv, err := convert(v, t)
	if err != nil {
		return err
	}
	f.Set(cv)
	return nil
}

func convert(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case v.Type().ConvertibleTo(t) && v.Kind() != reflect.String && t.Kind() != reflect.String:
		return v.Convert(t), nil
	case v.Kind() == reflect.String && t.Kind() == reflect.String:
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %s to %s", v.Type(), t)
}
