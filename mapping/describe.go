package mapping

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// TableNamer is implemented by types that name their own table. Implementing
// it marks a struct as a table even without a key.
type TableNamer interface {
	TableName() string
}

// TableSchemaNamer is implemented by types that place their table in a schema.
type TableSchemaNamer interface {
	TableSchema() string
}

// typeDesc is the structural description of a type, produced either by
// reflection or from a Descriptor. The builder consumes only this form.
type typeDesc struct {
	id      TypeID
	name    string
	goType  reflect.Type
	table   string
	schema  string
	key     string
	complex bool
	fields  []fieldDesc
}

type fieldDesc struct {
	name   string
	index  []int
	goType reflect.Type
	kind   Kind
	hints  hints

	// ref is the target of a reference field; exactly one of refType and
	// refName is set for reference fields.
	refType reflect.Type
	refName string

	// nested is the description of a complex-type member.
	nested *typeDesc

	// collection fields carry the element instead of a column.
	collection bool
	elemType   reflect.Type
	elemName   string
}

type hints struct {
	skip     bool
	column   string
	size     int
	key      bool
	auto     bool
	noauto   bool
	json     bool
	complex  bool
	null     bool
	notnull  bool
	index    string
	onDelete ConstraintAction
	onUpdate ConstraintAction
	fk       string
	include  []string
}

// parseTag parses an `elm:"..."` struct tag. Options are separated by
// semicolons; include takes a comma separated list.
func parseTag(tag string) (hints, error) {
	var h hints
	if tag == "" {
		return h, nil
	}
	if tag == "-" {
		h.skip = true
		return h, nil
	}
	for _, opt := range strings.Split(tag, ";") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		name, value, _ := strings.Cut(opt, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		switch name {
		case "column":
			h.column = value
		case "size":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return h, fmt.Errorf("invalid size %q", value)
			}
			h.size = n
		case "key":
			h.key = true
		case "auto":
			h.auto = true
		case "noauto":
			h.noauto = true
		case "json":
			h.json = true
		case "complex":
			h.complex = true
		case "null":
			h.null = true
		case "notnull":
			h.notnull = true
		case "index":
			h.index = value
		case "ondelete", "onupdate":
			a, err := ParseConstraintAction(value)
			if err != nil {
				return h, err
			}
			if name == "ondelete" {
				h.onDelete = a
			} else {
				h.onUpdate = a
			}
		case "fk":
			h.fk = value
		case "include":
			for _, s := range strings.Split(value, ",") {
				if s = strings.TrimSpace(s); s != "" {
					h.include = append(h.include, s)
				}
			}
		default:
			return h, fmt.Errorf("unknown tag option %q", name)
		}
	}
	return h, nil
}

// typeIDOf returns the identity used to memoize mappings of t.
func typeIDOf(t reflect.Type) TypeID {
	if t.Name() == "" {
		return TypeID(t.String())
	}
	return TypeID(t.PkgPath() + "." + t.Name())
}

var (
	refHandleType        = reflect.TypeOf((*refHandle)(nil)).Elem()
	collectionHandleType = reflect.TypeOf((*collectionHandle)(nil)).Elem()
)

func isRefType(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(refHandleType)
}

func isCollectionType(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(collectionHandleType)
}

// describeType reflects over struct type t. Overrides configured fluently
// are merged over the struct tags.
func (m *Mapper) describeType(t reflect.Type) (*typeDesc, error) {
	if t.Kind() == reflect.Interface {
		return nil, configErr(t.String(), "", ErrUnmappableType)
	}
	if t.Kind() != reflect.Struct || isScalarStruct(t) || isRefType(t) || isCollectionType(t) {
		return nil, configErr(t.String(), "", fmt.Errorf("%w: %s is not a struct", ErrUnmappableType, t))
	}
	d := &typeDesc{id: typeIDOf(t), name: t.Name(), goType: t}
	if d.name == "" {
		d.name = t.String()
	}
	zero := reflect.New(t).Interface()
	if tn, ok := zero.(TableNamer); ok {
		d.table = tn.TableName()
	}
	if ts, ok := zero.(TableSchemaNamer); ok {
		d.schema = ts.TableSchema()
	}
	cfg := m.configs[d.id]
	if cfg != nil {
		if cfg.table != "" {
			d.table = cfg.table
		}
		if cfg.schema != "" {
			d.schema = cfg.schema
		}
		d.key = cfg.key
	}
	if err := m.describeFields(d, t, nil, cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Mapper) describeFields(d *typeDesc, t reflect.Type, prefix []int, cfg *typeConfig) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && !isScalarStruct(sf.Type) {
			if err := m.describeFields(d, sf.Type, index, cfg); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		h, err := parseTag(sf.Tag.Get("elm"))
		if err != nil {
			return configErr(d.name, sf.Name, err)
		}
		if h.skip {
			continue
		}
		if cfg != nil {
			cfg.props[sf.Name].apply(&h)
		}
		f := fieldDesc{name: sf.Name, index: index, goType: sf.Type, hints: h}
		if err := m.classifyField(d, &f); err != nil {
			return err
		}
		d.fields = append(d.fields, f)
	}
	return nil
}

// classifyField decides whether a field is a scalar, reference, complex
// member or collection.
func (m *Mapper) classifyField(d *typeDesc, f *fieldDesc) error {
	t := f.goType
	switch {
	case isRefType(t):
		f.kind = KindReference
		f.refType = reflect.New(t).Interface().(refHandle).elmRefTarget()
		return nil
	case isCollectionType(t):
		f.collection = true
		f.elemType = reflect.New(t).Interface().(collectionHandle).elmCollectionElem()
		return nil
	case f.hints.json:
		f.kind = KindJSON
		return nil
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() == reflect.Struct && !isScalarStruct(base) {
		if base.Kind() != t.Kind() || (!f.hints.complex && m.isTable(base)) {
			return configErr(d.name, f.name, fmt.Errorf("%w: %s must be a mapping.Ref or a complex value", ErrUnsupportedType, t))
		}
		nested, err := m.describeType(base)
		if err != nil {
			return err
		}
		nested.complex = true
		f.nested = nested
		return nil
	}
	k, err := kindOf(base)
	if err != nil {
		return configErr(d.name, f.name, err)
	}
	f.kind = k
	return nil
}

// isTable reports whether a struct type backs its own table.
func (m *Mapper) isTable(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || isScalarStruct(t) {
		return false
	}
	if _, ok := reflect.New(t).Interface().(TableNamer); ok {
		return true
	}
	if cfg := m.configs[typeIDOf(t)]; cfg != nil && !cfg.complex {
		return true
	}
	return hasKeyField(t)
}

func hasKeyField(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && !isScalarStruct(sf.Type) {
			if hasKeyField(sf.Type) {
				return true
			}
			continue
		}
		tag := sf.Tag.Get("elm")
		if tag == "-" {
			continue
		}
		if isConventionalKey(sf.Name) {
			return true
		}
		if h, err := parseTag(tag); err == nil && h.key {
			return true
		}
	}
	return false
}

func isConventionalKey(name string) bool {
	return name == "Id" || name == "ID"
}
