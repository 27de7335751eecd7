package mapping

import "reflect"

type typeConfig struct {
	table   string
	schema  string
	key     string
	complex bool
	props   map[string]*propConfig
}

type propConfig struct {
	column   string
	size     int
	index    string
	json     bool
	nullable *bool
	onDelete ConstraintAction
	onUpdate ConstraintAction
}

func (p *propConfig) apply(h *hints) {
	if p == nil {
		return
	}
	if p.column != "" {
		h.column = p.column
	}
	if p.size > 0 {
		h.size = p.size
	}
	if p.index != "" {
		h.index = p.index
	}
	if p.json {
		h.json = true
	}
	if p.nullable != nil {
		h.null, h.notnull = *p.nullable, !*p.nullable
	}
	if p.onDelete != ActionNone {
		h.onDelete = p.onDelete
	}
	if p.onUpdate != ActionNone {
		h.onUpdate = p.onUpdate
	}
}

// TypeConfig configures the mapping of one type. Configuration must be
// done at startup, before the type is first mapped; later calls only
// affect mappings built afterwards.
type TypeConfig struct {
	m   *Mapper
	cfg *typeConfig
}

// For starts fluent configuration of T on m.
//
//	mapping.For[Book](m).Table("books").Property("Title").Column("title").MaxLength(200)
func For[T any](m *Mapper) *TypeConfig {
	return m.configure(reflect.TypeFor[T]())
}

func (m *Mapper) configure(t reflect.Type) *TypeConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := typeIDOf(t)
	cfg, ok := m.configs[id]
	if !ok {
		cfg = &typeConfig{props: make(map[string]*propConfig)}
		m.configs[id] = cfg
	}
	return &TypeConfig{m: m, cfg: cfg}
}

func (c *TypeConfig) update(fn func(*typeConfig)) *TypeConfig {
	c.m.mu.Lock()
	fn(c.cfg)
	c.m.mu.Unlock()
	return c
}

// Table sets the table name.
func (c *TypeConfig) Table(name string) *TypeConfig {
	return c.update(func(t *typeConfig) { t.table = name })
}

// Schema sets the table schema.
func (c *TypeConfig) Schema(schema string) *TypeConfig {
	return c.update(func(t *typeConfig) { t.schema = schema })
}

// Key designates the primary-key property.
func (c *TypeConfig) Key(property string) *TypeConfig {
	return c.update(func(t *typeConfig) { t.key = property })
}

// Complex marks the type as a complex type flattened into its owners.
func (c *TypeConfig) Complex() *TypeConfig {
	return c.update(func(t *typeConfig) { t.complex = true })
}

// Property selects a property for further configuration.
func (c *TypeConfig) Property(name string) *PropertyConfig {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	p, ok := c.cfg.props[name]
	if !ok {
		p = &propConfig{}
		c.cfg.props[name] = p
	}
	return &PropertyConfig{parent: c, cfg: p}
}

// PropertyConfig configures one property of a type.
type PropertyConfig struct {
	parent *TypeConfig
	cfg    *propConfig
}

func (p *PropertyConfig) update(fn func(*propConfig)) *PropertyConfig {
	p.parent.m.mu.Lock()
	fn(p.cfg)
	p.parent.m.mu.Unlock()
	return p
}

func (p *PropertyConfig) Column(name string) *PropertyConfig {
	return p.update(func(c *propConfig) { c.column = name })
}

func (p *PropertyConfig) MaxLength(n int) *PropertyConfig {
	return p.update(func(c *propConfig) { c.size = n })
}

func (p *PropertyConfig) Index(name string) *PropertyConfig {
	return p.update(func(c *propConfig) { c.index = name })
}

// JSON stores the property as JSON text.
func (p *PropertyConfig) JSON() *PropertyConfig {
	return p.update(func(c *propConfig) { c.json = true })
}

func (p *PropertyConfig) Nullable(nullable bool) *PropertyConfig {
	return p.update(func(c *propConfig) { c.nullable = &nullable })
}

func (p *PropertyConfig) OnDelete(a ConstraintAction) *PropertyConfig {
	return p.update(func(c *propConfig) { c.onDelete = a })
}

func (p *PropertyConfig) OnUpdate(a ConstraintAction) *PropertyConfig {
	return p.update(func(c *propConfig) { c.onUpdate = a })
}

// Property switches to another property of the same type.
func (p *PropertyConfig) Property(name string) *PropertyConfig {
	return p.parent.Property(name)
}

// Type returns the enclosing type configuration.
func (p *PropertyConfig) Type() *TypeConfig {
	return p.parent
}
