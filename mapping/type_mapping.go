// Package mapping describes how Go types map to tables, columns, keys,
// references and collections.
package mapping

import (
	"fmt"
	"reflect"
	"strings"
)

// TypeID identifies a mapped type. Go types use their package path and
// name; descriptor types use their declared name.
type TypeID string

// ConstraintAction is a foreign-key ON DELETE / ON UPDATE action.
type ConstraintAction string

const (
	ActionNone     ConstraintAction = ""
	ActionCascade  ConstraintAction = "CASCADE"
	ActionSetNull  ConstraintAction = "SET NULL"
	ActionRestrict ConstraintAction = "RESTRICT"
	ActionNoAction ConstraintAction = "NO ACTION"
)

// ParseConstraintAction parses a hint value such as "cascade" or "set null".
func ParseConstraintAction(s string) (ConstraintAction, error) {
	switch strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "_", " "))) {
	case "":
		return ActionNone, nil
	case "CASCADE":
		return ActionCascade, nil
	case "SET NULL", "SETNULL":
		return ActionSetNull, nil
	case "RESTRICT":
		return ActionRestrict, nil
	case "NO ACTION", "NOACTION":
		return ActionNoAction, nil
	}
	return ActionNone, fmt.Errorf("unknown constraint action %q", s)
}

// TypeMapping describes how one type maps to a table.
type TypeMapping struct {
	ID          TypeID
	Name        string
	Type        reflect.Type // nil for descriptor-only mappings
	TableName   string
	TableSchema string

	// Key is the primary key, nil for keyless value rows.
	Key *PropertyMapping

	// Collections maps a property name to its one-to-many navigation.
	Collections map[string]*MappedCollection

	IsComplexType bool

	columns []*PropertyMapping
	byName  map[string]*PropertyMapping
}

func newTypeMapping(id TypeID, name string, t reflect.Type) *TypeMapping {
	return &TypeMapping{
		ID:          id,
		Name:        name,
		Type:        t,
		TableName:   name,
		Collections: make(map[string]*MappedCollection),
		byName:      make(map[string]*PropertyMapping),
	}
}

// Columns returns the mapped properties in declaration order.
func (m *TypeMapping) Columns() []*PropertyMapping {
	return m.columns
}

// Column returns the property mapped under a property name. Complex-type
// members are addressed as "Outer.Inner".
func (m *TypeMapping) Column(name string) (*PropertyMapping, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// ColumnByName returns the property mapped to a column name, case-insensitively.
func (m *TypeMapping) ColumnByName(column string) (*PropertyMapping, bool) {
	for _, p := range m.columns {
		if strings.EqualFold(p.ColumnName, column) {
			return p, true
		}
	}
	return nil, false
}

func (m *TypeMapping) addColumn(p *PropertyMapping) {
	p.Owner = m
	m.columns = append(m.columns, p)
	m.byName[p.Name] = p
}

// New allocates a new instance of the mapped Go type and returns a pointer to it.
func (m *TypeMapping) New() (reflect.Value, error) {
	if m.Type == nil {
		return reflect.Value{}, configErr(m.Name, "", fmt.Errorf("%w: descriptor mapping has no Go type", ErrUnmappableType))
	}
	return reflect.New(m.Type), nil
}

// KeyValue returns the primary-key value of an entity (a struct or a pointer to one).
func (m *TypeMapping) KeyValue(entity any) (any, error) {
	if m.Key == nil {
		return nil, configErr(m.Name, "", ErrNoKey)
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if m.Type != nil && v.Type() != m.Type {
		return nil, fmt.Errorf("elm: %s is not a %s", v.Type(), m.Name)
	}
	return m.Key.Get(v), nil
}

// QualifiedName returns schema.table, or the table alone without a schema.
func (m *TypeMapping) QualifiedName() string {
	if m.TableSchema == "" {
		return m.TableName
	}
	return m.TableSchema + "." + m.TableName
}

// PropertyMapping describes one mapped, non-collection property.
type PropertyMapping struct {
	Owner *TypeMapping

	// Name is the Go field name, or "Outer.Inner" for complex-type members.
	Name       string
	FieldIndex []int
	Type       reflect.Type
	Kind       Kind

	ColumnName  string
	MaxLength   int
	Nullable    bool
	IsKey       bool
	IsAutomatic bool
	IsJSON      bool
	Index       string
	OnDelete    ConstraintAction
	OnUpdate    ConstraintAction

	// Reference is the mapping of the related entity for many-to-one
	// properties, stored as a foreign-key column.
	Reference *TypeMapping
}

// IsReference reports whether the property is a foreign key to another mapping.
func (p *PropertyMapping) IsReference() bool {
	return p.Reference != nil
}

// Field returns the addressable field of struct value v, allocating nil
// intermediate pointers.
func (p *PropertyMapping) Field(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v.FieldByIndex(p.FieldIndex)
}

// Get returns the column value of the property held by struct value v.
// Nil pointers read as nil and references read as their key.
func (p *PropertyMapping) Get(v reflect.Value) any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	f, err := v.FieldByIndexErr(p.FieldIndex)
	if err != nil {
		return nil
	}
	if p.IsReference() {
		if h, ok := f.Addr().Interface().(refHandle); ok {
			id, value := h.elmGet()
			if id == nil && value != nil && p.Reference.Key != nil {
				id, _ = p.Reference.KeyValue(value)
			}
			return id
		}
		return nil
	}
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		return f.Elem().Interface()
	}
	return f.Interface()
}

func (p *PropertyMapping) String() string {
	if p.Owner == nil {
		return p.Name
	}
	return p.Owner.Name + "." + p.Name
}

// MappedCollection describes a one-to-many (or, through a link type,
// many-to-many) navigation exposed as a Collection on the owner.
type MappedCollection struct {
	Name    string
	Owner   *TypeMapping
	Element *TypeMapping

	// ForeignKey is the element property referencing the owner.
	ForeignKey *PropertyMapping

	// Include lists element references loaded alongside each element,
	// used when the element is a link row.
	Include []string

	fieldIndex []int
	fkName     string
}

// Bind stores a lazy collection bound to ownerKey in the collection field of
// owner, a pointer to the owning struct.
func (c *MappedCollection) Bind(owner reflect.Value, ownerKey any) {
	for owner.Kind() == reflect.Pointer {
		owner = owner.Elem()
	}
	f := owner.FieldByIndex(c.fieldIndex)
	if b, ok := f.Addr().Interface().(collectionHandle); ok {
		b.elmBind(ownerKey, c)
	}
}
