package diff

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yourbasic/graph"

	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/migrate/introspect"
	"github.com/folkelib/elm/query/sqlgen"
)

// liveTable is the state of an existing table.
type liveTable struct {
	columns []introspect.ColumnDefinition
	indexes []introspect.IndexDefinition
}

func columnSpec(drv driver.Driver, p *mapping.PropertyMapping) sqlgen.ColumnSpec {
	return sqlgen.ColumnSpec{
		Name:       p.ColumnName,
		SQLType:    drv.SQLType(p, p.IsReference()),
		Nullable:   p.Nullable,
		PrimaryKey: p.IsKey,
		Automatic:  p.IsAutomatic,
	}
}

func foreignKeyName(tm *mapping.TypeMapping, p *mapping.PropertyMapping) string {
	return "FK_" + tm.TableName + "_" + p.ColumnName
}

func foreignKey(tm *mapping.TypeMapping, p *mapping.PropertyMapping) (sqlgen.ForeignKeySpec, bool) {
	ref := p.Reference
	if ref == nil || ref.Key == nil {
		return sqlgen.ForeignKeySpec{}, false
	}
	return sqlgen.ForeignKeySpec{
		Name:      foreignKeyName(tm, p),
		Column:    p.ColumnName,
		RefSchema: ref.TableSchema,
		RefTable:  ref.TableName,
		RefColumn: ref.Key.ColumnName,
		OnDelete:  string(p.OnDelete),
		OnUpdate:  string(p.OnUpdate),
	}, true
}

// indexes groups the indexed properties of tm by index name.
func indexes(tm *mapping.TypeMapping) []sqlgen.IndexSpec {
	byName := make(map[string]*sqlgen.IndexSpec)
	var out []*sqlgen.IndexSpec
	for _, p := range tm.Columns() {
		if p.Index == "" {
			continue
		}
		ix, ok := byName[p.Index]
		if !ok {
			ix = &sqlgen.IndexSpec{Name: p.Index}
			byName[p.Index] = ix
			out = append(out, ix)
		}
		ix.Columns = append(ix.Columns, p.ColumnName)
	}
	specs := make([]sqlgen.IndexSpec, len(out))
	for i, ix := range out {
		specs[i] = *ix
	}
	return specs
}

func checkTable(tm *mapping.TypeMapping) error {
	if tm.IsComplexType {
		return fmt.Errorf("%s is a complex type and has no table", tm.Name)
	}
	if len(tm.Columns()) == 0 {
		return fmt.Errorf("%s has no columns", tm.Name)
	}
	return nil
}

// planCreate plans CREATE TABLE for tm. Foreign keys to tables for which
// exists reports false are added afterwards with ALTER TABLE.
func planCreate(drv driver.Driver, tm *mapping.TypeMapping, exists func(*mapping.TypeMapping) bool) (*Plan, []Change, error) {
	if err := checkTable(tm); err != nil {
		return nil, nil, err
	}
	d := drv.Dialect()
	plan := &Plan{Table: tm.QualifiedName(), Create: true}

	var cols []sqlgen.ColumnSpec
	var fks []sqlgen.ForeignKeySpec
	var deferred []Change
	for _, p := range tm.Columns() {
		cols = append(cols, columnSpec(drv, p))
		fk, ok := foreignKey(tm, p)
		if !ok {
			continue
		}
		if p.Reference == tm || exists(p.Reference) || d.Name() == "sqlite" {
			fks = append(fks, fk)
			continue
		}
		deferred = append(deferred, Change{
			Type:        ChangeTypeAddForeignKey,
			Table:       plan.Table,
			Column:      p.ColumnName,
			Description: fmt.Sprintf("Add foreign key %s", fk.Name),
			SQL:         sqlgen.AddForeignKey(d, tm.TableSchema, tm.TableName, fk),
			IsSafe:      true,
		})
	}

	ixs := indexes(tm)
	var inline []sqlgen.IndexSpec
	if drv.CanAddIndexInCreateTable() {
		inline, ixs = ixs, nil
	}
	plan.add(Change{
		Type:        ChangeTypeCreateTable,
		Description: fmt.Sprintf("Create table '%s'", plan.Table),
		SQL:         sqlgen.CreateTable(d, tm.TableSchema, tm.TableName, cols, fks, inline),
		IsSafe:      true,
	})
	for _, ix := range ixs {
		plan.add(Change{
			Type:        ChangeTypeCreateIndex,
			Description: fmt.Sprintf("Create index '%s'", ix.Name),
			SQL:         sqlgen.CreateIndex(d, tm.TableSchema, tm.TableName, ix),
			IsSafe:      true,
		})
	}
	return plan, deferred, nil
}

// zeroDefault returns the DEFAULT literal that lets a NOT NULL column be
// added to a table with rows. It is empty for kinds without a portable
// zero literal.
func zeroDefault(d sqlgen.Dialect, p *mapping.PropertyMapping) string {
	switch {
	case p.Kind == mapping.KindBool:
		return d.BooleanLiteral(false)
	case p.Kind.IsInteger(), p.Kind == mapping.KindFloat32, p.Kind == mapping.KindFloat64:
		return "0"
	case p.Kind == mapping.KindString, p.Kind == mapping.KindText:
		return "''"
	case p.Kind == mapping.KindTime:
		return "'1970-01-01 00:00:00'"
	case p.Kind == mapping.KindUUID:
		return "'00000000-0000-0000-0000-000000000000'"
	}
	return ""
}

// planUpdate plans the changes that bring an existing table in line with
// tm: missing columns are added, columns of another type or nullability
// are altered and missing indexes are created. Key columns are left alone.
func planUpdate(drv driver.Driver, tm *mapping.TypeMapping, live liveTable) (*Plan, error) {
	if err := checkTable(tm); err != nil {
		return nil, err
	}
	d := drv.Dialect()
	plan := &Plan{Table: tm.QualifiedName()}

	type action struct {
		change Change
		clause string
	}
	var actions []action
	var fks []Change
	for _, p := range tm.Columns() {
		spec := columnSpec(drv, p)
		spec.PrimaryKey = false

		col, ok := introspect.FindColumn(live.columns, p.ColumnName)
		if !ok {
			if p.IsKey {
				plan.warn(fmt.Sprintf("key column %s is missing and cannot be added", p.ColumnName))
				continue
			}
			if !spec.Nullable {
				spec.Default = zeroDefault(d, p)
				if spec.Default == "" {
					spec.Nullable = true
					plan.warn(fmt.Sprintf("column %s is added as nullable: %s has no zero default", p.ColumnName, p.Kind))
				}
			}
			actions = append(actions, action{
				change: Change{
					Type:        ChangeTypeAddColumn,
					Column:      p.ColumnName,
					Description: fmt.Sprintf("Add column '%s.%s' %s", plan.Table, p.ColumnName, spec.SQLType),
					IsSafe:      true,
				},
				clause: d.AddColumn(sqlgen.ColumnDef(d, spec)),
			})
			if fk, ok := foreignKey(tm, p); ok {
				if d.Name() == "sqlite" {
					plan.warn(fmt.Sprintf("foreign key %s is not added: sqlite cannot add constraints", fk.Name))
				} else {
					fks = append(fks, Change{
						Type:        ChangeTypeAddForeignKey,
						Column:      p.ColumnName,
						Description: fmt.Sprintf("Add foreign key %s", fk.Name),
						SQL:         sqlgen.AddForeignKey(d, tm.TableSchema, tm.TableName, fk),
						IsSafe:      true,
					})
				}
			}
			continue
		}
		if p.IsKey || col.PrimaryKey {
			continue
		}
		if drv.EquivalentTypes(col.Type, spec.SQLType) && col.Nullable == spec.Nullable {
			continue
		}
		clause, err := d.AlterColumn(p.ColumnName, spec.SQLType, spec.Nullable)
		if errors.Is(err, sqlgen.ErrNotSupportedByDialect) {
			plan.warn(fmt.Sprintf("column %s is %s %s, want %s %s: %v",
				p.ColumnName, col.Type, nullWord(col.Nullable), spec.SQLType, nullWord(spec.Nullable), err))
			continue
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, action{
			change: Change{
				Type:        ChangeTypeAlterColumn,
				Column:      p.ColumnName,
				Description: fmt.Sprintf("Alter column '%s.%s' from %s to %s", plan.Table, p.ColumnName, col.Type, spec.SQLType),
			},
			clause: clause,
		})
	}

	if len(actions) > 0 && drv.CanDoMultipleActionsInAlterTable() {
		clauses := make([]string, len(actions))
		descriptions := make([]string, len(actions))
		safe := true
		for i, a := range actions {
			clauses[i] = a.clause
			descriptions[i] = a.change.Description
			safe = safe && a.change.IsSafe
		}
		if len(actions) == 1 {
			c := actions[0].change
			c.SQL = sqlgen.AlterTable(d, tm.TableSchema, tm.TableName, clauses...)
			plan.add(c)
		} else {
			plan.add(Change{
				Type:        ChangeTypeAlterTable,
				Description: strings.Join(descriptions, "; "),
				SQL:         sqlgen.AlterTable(d, tm.TableSchema, tm.TableName, clauses...),
				IsSafe:      safe,
			})
		}
	} else {
		for _, a := range actions {
			c := a.change
			c.SQL = sqlgen.AlterTable(d, tm.TableSchema, tm.TableName, a.clause)
			plan.add(c)
		}
	}
	for _, c := range fks {
		plan.add(c)
	}

	for _, ix := range indexes(tm) {
		if hasIndex(live.indexes, ix.Name) {
			continue
		}
		plan.add(Change{
			Type:        ChangeTypeCreateIndex,
			Description: fmt.Sprintf("Create index '%s'", ix.Name),
			SQL:         sqlgen.CreateIndex(d, tm.TableSchema, tm.TableName, ix),
			IsSafe:      true,
		})
	}
	return plan, nil
}

func nullWord(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func hasIndex(live []introspect.IndexDefinition, name string) bool {
	for _, ix := range live {
		if strings.EqualFold(ix.Name, name) {
			return true
		}
	}
	return false
}

// order sorts mappings so that referenced tables come before the tables
// referencing them. Mappings in a reference cycle keep their given order.
func order(tms []*mapping.TypeMapping) []*mapping.TypeMapping {
	index := make(map[*mapping.TypeMapping]int, len(tms))
	for i, tm := range tms {
		index[tm] = i
	}
	g := graph.New(len(tms))
	for i, tm := range tms {
		for _, p := range tm.Columns() {
			if j, ok := index[p.Reference]; ok && j != i {
				g.Add(j, i)
			}
		}
	}
	sorted, ok := graph.TopSort(g)
	if !ok {
		return tms
	}
	out := make([]*mapping.TypeMapping, len(sorted))
	for i, v := range sorted {
		out[i] = tms[v]
	}
	return out
}

// sortedNames is used in log output.
func sortedNames(tms []*mapping.TypeMapping) []string {
	names := make([]string, len(tms))
	for i, tm := range tms {
		names[i] = tm.QualifiedName()
	}
	sort.Strings(names)
	return names
}
