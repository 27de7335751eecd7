package builder

import (
	"fmt"
	"strconv"

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/expr"
)

// SelectedTable is one table instance in a query: a registered parameter
// or a table joined by walking a reference.
type SelectedTable struct {
	Mapping *mapping.TypeMapping
	Alias   string

	// Parent and Property are set for auto-joined tables: Property is the
	// reference of Parent that was traversed.
	Parent   *SelectedTable
	Property *mapping.PropertyMapping
	Children map[*mapping.PropertyMapping]*SelectedTable

	// Selected marks tables whose columns are part of the result.
	Selected bool

	owner *TableRegistry
}

// Column returns the column node of p qualified by the table alias.
func (t *SelectedTable) Column(p *mapping.PropertyMapping) *ast.Column {
	return &ast.Column{Table: t.Alias, Name: p.ColumnName}
}

func (t *SelectedTable) node() *ast.Table {
	return &ast.Table{Schema: t.Mapping.TableSchema, Name: t.Mapping.TableName, Alias: t.Alias}
}

// TableRegistry assigns aliases to the tables of one query and memoizes
// the joins created by walking references. A registry belongs to a single
// query build and is not safe for concurrent use.
type TableRegistry struct {
	mapper *mapping.Mapper
	parent *TableRegistry
	next   *int
	params map[*expr.Param]*SelectedTable
	joins  []*ast.Join

	// outer holds the joins this scope made from tables of an enclosing
	// scope. The join exists only in this scope's FROM.
	outer map[outerChild]*SelectedTable

	// unqualified registries serve UPDATE and DELETE: columns carry no
	// alias and joins are refused.
	unqualified bool
}

type outerChild struct {
	parent *SelectedTable
	prop   *mapping.PropertyMapping
}

// NewTableRegistry creates an empty registry.
func NewTableRegistry(m *mapping.Mapper) *TableRegistry {
	return &TableRegistry{mapper: m, next: new(int), params: make(map[*expr.Param]*SelectedTable)}
}

func newUnqualifiedRegistry(m *mapping.Mapper) *TableRegistry {
	r := NewTableRegistry(m)
	r.unqualified = true
	return r
}

// Scope returns a registry for a correlated subquery: it sees the
// parameters of r, continues its alias sequence and keeps its own joins.
func (r *TableRegistry) Scope() *TableRegistry {
	return &TableRegistry{mapper: r.mapper, parent: r, next: r.next, params: make(map[*expr.Param]*SelectedTable)}
}

func (r *TableRegistry) alias() string {
	if r.unqualified {
		return ""
	}
	n := *r.next
	*r.next++
	if n == 0 {
		return "t"
	}
	return "t" + strconv.Itoa(n)
}

func (r *TableRegistry) mappingOf(p *expr.Param) (*mapping.TypeMapping, error) {
	if p.Mapping != nil {
		return p.Mapping, nil
	}
	if p.Type == nil {
		return nil, fmt.Errorf("parameter %q has no type", p.Name)
	}
	return r.mapper.GetTypeMapping(p.Type)
}

// RegisterTable registers p under alias, or the next free alias when alias
// is empty. Registering p again returns its table.
func (r *TableRegistry) RegisterTable(p *expr.Param, alias string) (*SelectedTable, error) {
	if st, ok := r.params[p]; ok {
		return st, nil
	}
	tm, err := r.mappingOf(p)
	if err != nil {
		return nil, err
	}
	if tm.IsComplexType {
		return nil, fmt.Errorf("%s is a complex type and has no table", tm.Name)
	}
	if alias == "" || r.unqualified {
		alias = r.alias()
	}
	st := &SelectedTable{Mapping: tm, Alias: alias, Children: make(map[*mapping.PropertyMapping]*SelectedTable), owner: r}
	r.params[p] = st
	return st, nil
}

// Lookup returns the table registered for p here or in an enclosing scope.
func (r *TableRegistry) Lookup(p *expr.Param) (*SelectedTable, bool) {
	for s := r; s != nil; s = s.parent {
		if st, ok := s.params[p]; ok {
			return st, true
		}
	}
	return nil, false
}

// Child returns the table reached from parent through reference prop,
// adding a LEFT JOIN the first time the path is walked. Walking from a
// table of an enclosing scope joins in this scope only.
func (r *TableRegistry) Child(parent *SelectedTable, prop *mapping.PropertyMapping) (*SelectedTable, error) {
	local := parent.owner == r
	if local {
		if st, ok := parent.Children[prop]; ok {
			return st, nil
		}
	} else if st, ok := r.outer[outerChild{parent, prop}]; ok {
		return st, nil
	}
	if r.unqualified {
		return nil, notSupported(prop.String(), "joins are not available here")
	}
	if prop.Reference == nil || prop.Reference.Key == nil {
		return nil, notSupported(prop.String(), "%s is not a reference to a keyed table", prop.Name)
	}
	st := &SelectedTable{
		Mapping:  prop.Reference,
		Alias:    r.alias(),
		Parent:   parent,
		Property: prop,
		Children: make(map[*mapping.PropertyMapping]*SelectedTable),
		owner:    r,
	}
	if local {
		parent.Children[prop] = st
	} else {
		if r.outer == nil {
			r.outer = make(map[outerChild]*SelectedTable)
		}
		r.outer[outerChild{parent, prop}] = st
	}
	r.joins = append(r.joins, &ast.Join{
		Kind:  ast.LeftJoin,
		Table: st.node(),
		On:    &ast.Binary{Op: ast.OpEq, Left: st.Column(prop.Reference.Key), Right: parent.Column(prop)},
	})
	return st, nil
}

// AddJoin records an explicit join of st. The caller may fill in On later.
func (r *TableRegistry) AddJoin(kind ast.JoinKind, st *SelectedTable, on ast.Node) *ast.Join {
	j := &ast.Join{Kind: kind, Table: st.node(), On: on}
	r.joins = append(r.joins, j)
	return j
}

// Joins returns the joins in the order they were created.
func (r *TableRegistry) Joins() []*ast.Join {
	return r.joins
}

// Resolved is a member chain resolved to a column.
type Resolved struct {
	Table    *SelectedTable
	Property *mapping.PropertyMapping
}

// Column returns the column node of the resolved member.
func (r Resolved) Column() *ast.Column {
	return r.Table.Column(r.Property)
}

// ExpressionToColumn resolves a member chain to its owning table and
// column. Each reference hop before the last member joins the referenced
// table; a trailing reference, or a trailing key of a reference, resolves
// to the foreign-key column without a join.
func (r *TableRegistry) ExpressionToColumn(e expr.Expr) (Resolved, error) {
	m, ok := e.(*expr.Member)
	if !ok {
		return Resolved{}, notSupported(e, "not a member access")
	}
	root := m.Root()
	if root == nil {
		return Resolved{}, notSupported(e, "member chain does not start at a table")
	}
	st, ok := r.Lookup(root)
	if !ok {
		return Resolved{}, notSupported(e, "table %q is not part of the query", root.Name)
	}
	path := m.Path()
	for i := 0; i < len(path); {
		prop, next := findProperty(st.Mapping, path, i)
		if prop == nil {
			if _, isColl := st.Mapping.Collections[path[i]]; isColl {
				return Resolved{}, notSupported(e, "collection %s cannot be used in an expression", path[i])
			}
			return Resolved{}, &CompileError{Expr: e, Err: fmt.Errorf("%w: %s.%s", mapping.ErrUnknownProperty, st.Mapping.Name, path[i])}
		}
		if next == len(path) {
			return Resolved{Table: st, Property: prop}, nil
		}
		if !prop.IsReference() {
			return Resolved{}, notSupported(e, "%s is not a reference", prop)
		}
		if key := prop.Reference.Key; key != nil && next == len(path)-1 && key.Name == path[next] {
			return Resolved{Table: st, Property: prop}, nil
		}
		child, err := r.Child(st, prop)
		if err != nil {
			return Resolved{}, err
		}
		st, i = child, next
	}
	return Resolved{}, notSupported(e, "empty member chain")
}

// findProperty finds the property named by path[i:], joining names with
// dots for flattened complex members. It returns the index after the
// consumed names.
func findProperty(tm *mapping.TypeMapping, path []string, i int) (*mapping.PropertyMapping, int) {
	name := ""
	for j := i; j < len(path); j++ {
		if name == "" {
			name = path[j]
		} else {
			name += "." + path[j]
		}
		if p, ok := tm.Column(name); ok {
			return p, j + 1
		}
	}
	return nil, i
}
