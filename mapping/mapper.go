package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Mapper builds and memoizes type mappings. It is safe for concurrent use;
// first-time mapping is serialized and a mapping is published only once it
// and every type it reaches are complete.
type Mapper struct {
	mu          sync.RWMutex
	naming      Naming
	mappings    map[TypeID]*TypeMapping
	configs     map[TypeID]*typeConfig
	descriptors map[string]*TypeDescriptor
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithNaming sets the strategy deriving names that carry no explicit hint.
func WithNaming(n Naming) Option {
	return func(m *Mapper) { m.naming = n }
}

// NewMapper creates an empty mapping registry.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		naming:      DefaultNaming{},
		mappings:    make(map[TypeID]*TypeMapping),
		configs:     make(map[TypeID]*typeConfig),
		descriptors: make(map[string]*TypeDescriptor),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Of returns the mapping of T.
func Of[T any](m *Mapper) (*TypeMapping, error) {
	return m.GetTypeMapping(reflect.TypeFor[T]())
}

// GetTypeMapping returns the mapping of t, building it on first use.
// Pointer types map as their element type.
func (m *Mapper) GetTypeMapping(t reflect.Type) (*TypeMapping, error) {
	if t == nil {
		return nil, configErr("<nil>", "", ErrUnmappableType)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	id := typeIDOf(t)

	m.mu.RLock()
	tm, ok := m.mappings[id]
	m.mu.RUnlock()
	if ok {
		return tm, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tm, ok := m.mappings[id]; ok {
		return tm, nil
	}
	b := newBuild(m)
	tm, err := b.typeSlot(t)
	if err != nil {
		return nil, err
	}
	if err := b.run(); err != nil {
		return nil, err
	}
	b.publish()
	return tm, nil
}

// ByName returns the mapping registered under a descriptor name, or a
// mapped Go type with that simple name.
func (m *Mapper) ByName(name string) (*TypeMapping, error) {
	m.mu.RLock()
	tm := m.findByName(name)
	m.mu.RUnlock()
	if tm != nil {
		return tm, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tm := m.findByName(name); tm != nil {
		return tm, nil
	}
	b := newBuild(m)
	tm, err := b.nameSlot(name)
	if err != nil {
		return nil, err
	}
	if err := b.run(); err != nil {
		return nil, err
	}
	b.publish()
	return tm, nil
}

func (m *Mapper) findByName(name string) *TypeMapping {
	if tm, ok := m.mappings[TypeID(name)]; ok {
		return tm
	}
	for _, tm := range m.mappings {
		if tm.Name == name && !tm.IsComplexType {
			return tm
		}
	}
	return nil
}

// RegisterDescriptors adds the types declared by d. Registered names are
// mapped lazily through ByName.
func (m *Mapper) RegisterDescriptors(d *Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range d.Types {
		td := &d.Types[i]
		if td.Name == "" {
			return configErr("<descriptor>", "", errors.New("type without a name"))
		}
		if _, dup := m.descriptors[td.Name]; dup {
			return configErr(td.Name, "", errors.New("type declared twice"))
		}
		m.descriptors[td.Name] = td
	}
	return nil
}

// Descriptors returns the registered descriptor names in sorted order.
func (m *Mapper) Descriptors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.descriptors))
	for name := range m.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsMapped reports whether t backs a table: it names its table, carries a
// key or was configured.
func (m *Mapper) IsMapped(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tm, ok := m.mappings[typeIDOf(t)]; ok {
		return !tm.IsComplexType
	}
	return m.isTable(t)
}

// GetKey returns the primary-key property of t.
func (m *Mapper) GetKey(t reflect.Type) (*PropertyMapping, error) {
	tm, err := m.GetTypeMapping(t)
	if err != nil {
		return nil, err
	}
	if tm.Key == nil {
		return nil, configErr(tm.Name, "", ErrNoKey)
	}
	return tm.Key, nil
}

// Mappings returns every published table mapping ordered by name.
func (m *Mapper) Mappings() []*TypeMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TypeMapping, 0, len(m.mappings))
	for _, tm := range m.mappings {
		if !tm.IsComplexType {
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// build is one first-time mapping run. Slots are allocated before they are
// populated so that cyclic references resolve to the same instance.
type build struct {
	m     *Mapper
	slots map[TypeID]*TypeMapping
	queue []pendingSlot
	links []*MappedCollection
	keys  map[*PropertyMapping]hints
}

type pendingSlot struct {
	desc *typeDesc
	tm   *TypeMapping
}

func newBuild(m *Mapper) *build {
	return &build{
		m:     m,
		slots: make(map[TypeID]*TypeMapping),
		keys:  make(map[*PropertyMapping]hints),
	}
}

func (b *build) lookup(id TypeID) *TypeMapping {
	if tm, ok := b.m.mappings[id]; ok {
		return tm
	}
	return b.slots[id]
}

func (b *build) typeSlot(t reflect.Type) (*TypeMapping, error) {
	if tm := b.lookup(typeIDOf(t)); tm != nil {
		return tm, nil
	}
	d, err := b.m.describeType(t)
	if err != nil {
		return nil, err
	}
	if cfg := b.m.configs[d.id]; cfg != nil && cfg.complex {
		d.complex = true
	}
	return b.allocate(d), nil
}

func (b *build) nameSlot(name string) (*TypeMapping, error) {
	if tm := b.lookup(TypeID(name)); tm != nil {
		return tm, nil
	}
	td, ok := b.m.descriptors[name]
	if !ok {
		if tm := b.m.findByName(name); tm != nil {
			return tm, nil
		}
		return nil, configErr(name, "", fmt.Errorf("%w: no type named %q", ErrUnmappableType, name))
	}
	d, err := td.describe(b.m.descriptors)
	if err != nil {
		return nil, err
	}
	return b.allocate(d), nil
}

func (b *build) allocate(d *typeDesc) *TypeMapping {
	tm := newTypeMapping(d.id, d.name, d.goType)
	b.slots[d.id] = tm
	b.queue = append(b.queue, pendingSlot{desc: d, tm: tm})
	return tm
}

func (b *build) run() error {
	for len(b.queue) > 0 {
		p := b.queue[0]
		b.queue = b.queue[1:]
		if err := b.populate(p.desc, p.tm); err != nil {
			return err
		}
	}
	for _, c := range b.links {
		if err := b.link(c); err != nil {
			return err
		}
	}
	for _, tm := range b.slots {
		for _, p := range tm.columns {
			if p.Reference == nil {
				continue
			}
			if p.Reference.IsComplexType || p.Reference.Key == nil {
				return configErr(tm.Name, p.Name, fmt.Errorf("%w: referenced type %s", ErrNoKey, p.Reference.Name))
			}
		}
	}
	return nil
}

func (b *build) publish() {
	for id, tm := range b.slots {
		b.m.mappings[id] = tm
	}
}

func (b *build) populate(d *typeDesc, tm *TypeMapping) error {
	tm.IsComplexType = d.complex
	tm.TableName = d.table
	if tm.TableName == "" {
		tm.TableName = b.m.naming.TableName(d.name)
	}
	tm.TableSchema = d.schema
	if err := b.addFields(tm, d, "", "", nil); err != nil {
		return err
	}
	if tm.IsComplexType {
		return nil
	}
	return b.selectKey(tm, d)
}

func (b *build) addFields(tm *TypeMapping, d *typeDesc, namePrefix, colPrefix string, indexPrefix []int) error {
	naming := b.m.naming
	for i := range d.fields {
		f := &d.fields[i]
		h := f.hints
		name := namePrefix + f.name
		index := f.index
		if indexPrefix != nil {
			index = append(append([]int(nil), indexPrefix...), f.index...)
		}

		switch {
		case f.collection:
			if namePrefix != "" {
				return configErr(tm.Name, name, errors.New("collections are not allowed in complex types"))
			}
			var elem *TypeMapping
			var err error
			if f.elemType != nil {
				elem, err = b.typeSlot(f.elemType)
			} else {
				elem, err = b.nameSlot(f.elemName)
			}
			if err != nil {
				return err
			}
			mc := &MappedCollection{
				Name:       name,
				Owner:      tm,
				Element:    elem,
				Include:    h.include,
				fieldIndex: index,
				fkName:     h.fk,
			}
			tm.Collections[name] = mc
			b.links = append(b.links, mc)
			continue

		case f.nested != nil:
			if b.lookup(f.nested.id) == nil {
				b.allocate(f.nested)
			}
			outer := h.column
			if outer == "" {
				outer = f.name
			}
			if colPrefix != "" {
				outer = naming.ComplexColumnName(colPrefix, outer)
			}
			if err := b.addFields(tm, f.nested, name+".", outer, index); err != nil {
				return err
			}
			continue
		}

		p := &PropertyMapping{
			Name:       name,
			FieldIndex: index,
			Type:       f.goType,
			Kind:       f.kind,
			MaxLength:  h.size,
			IsJSON:     h.json,
			Index:      h.index,
			OnDelete:   h.onDelete,
			OnUpdate:   h.onUpdate,
		}
		column := h.column
		if column == "" {
			if f.kind == KindReference {
				column = naming.ForeignKeyName(f.name)
			} else {
				column = naming.ColumnName(f.name)
			}
		}
		if colPrefix != "" {
			column = naming.ComplexColumnName(colPrefix, column)
		}
		p.ColumnName = column

		switch {
		case h.notnull:
			p.Nullable = false
		case h.null, f.kind == KindReference, f.kind == KindJSON:
			p.Nullable = true
		default:
			p.Nullable = f.goType != nil && f.goType.Kind() == reflect.Pointer
		}

		if f.kind == KindReference {
			var target *TypeMapping
			var err error
			if f.refType != nil {
				target, err = b.typeSlot(f.refType)
			} else {
				target, err = b.nameSlot(f.refName)
			}
			if err != nil {
				return err
			}
			p.Reference = target
		}

		if h.key {
			if namePrefix != "" {
				return configErr(tm.Name, name, errors.New("key inside a complex type"))
			}
			if tm.Key != nil {
				return configErr(tm.Name, name, fmt.Errorf("second key, %s is already the key", tm.Key.Name))
			}
			tm.Key = p
		}
		b.keys[p] = h
		tm.addColumn(p)
	}
	return nil
}

func (b *build) selectKey(tm *TypeMapping, d *typeDesc) error {
	if tm.Key == nil && d.key != "" {
		p, ok := tm.Column(d.key)
		if !ok {
			return configErr(tm.Name, d.key, fmt.Errorf("%w: key", ErrUnknownProperty))
		}
		tm.Key = p
	}
	if tm.Key == nil {
		for _, p := range tm.columns {
			if !strings.Contains(p.Name, ".") && isConventionalKey(p.Name) {
				tm.Key = p
				break
			}
		}
	}
	if tm.Key == nil {
		return nil
	}
	key := tm.Key
	h := b.keys[key]
	key.IsKey = true
	key.Nullable = false
	switch {
	case h.noauto:
		key.IsAutomatic = false
	case h.auto:
		key.IsAutomatic = true
	default:
		key.IsAutomatic = key.Kind.IsInteger()
	}
	if key.IsAutomatic && key.IsReference() {
		return configErr(tm.Name, key.Name, errors.New("a reference key cannot be automatic"))
	}
	return nil
}

func (b *build) link(c *MappedCollection) error {
	elem := c.Element
	if c.fkName != "" {
		p, ok := elem.Column(c.fkName)
		if !ok || p.Reference != c.Owner {
			return configErr(c.Owner.Name, c.Name, fmt.Errorf("%w: %s.%s does not reference %s", ErrUnknownProperty, elem.Name, c.fkName, c.Owner.Name))
		}
		c.ForeignKey = p
		return nil
	}
	for _, p := range elem.columns {
		if p.Reference == c.Owner {
			c.ForeignKey = p
			return nil
		}
	}
	return configErr(c.Owner.Name, c.Name, fmt.Errorf("%w: %s has no reference to %s", ErrUnknownProperty, elem.Name, c.Owner.Name))
}
