package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/internal/debug"
	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/migrate/introspect"
	"github.com/folkelib/elm/query/sqlgen"
)

// Synchronizer creates and updates tables from mappings.
type Synchronizer struct {
	drv     driver.Driver
	db      driver.Executor
	workers int
}

// New creates a synchronizer running statements on db.
func New(drv driver.Driver, db driver.Executor) *Synchronizer {
	return &Synchronizer{drv: drv, db: db, workers: 4}
}

func (s *Synchronizer) exec(ctx context.Context, plans ...*Plan) error {
	for _, p := range plans {
		for _, w := range p.Warnings {
			debug.Warn("%s: %s", p.Table, w)
		}
		for _, c := range p.Changes {
			if debug.Enabled() {
				debug.WithFields(logrus.Fields{"table": c.Table, "change": string(c.Type)}).Debug(c.SQL)
			}
			if _, err := s.db.ExecContext(ctx, c.SQL); err != nil {
				return fmt.Errorf("failed to %s: %w", strings.ToLower(c.Description[:1])+c.Description[1:], err)
			}
		}
	}
	return nil
}

// Apply runs planned changes in order.
func (s *Synchronizer) Apply(ctx context.Context, plans ...*Plan) error {
	return s.exec(ctx, plans...)
}

// PlanCreate returns the statements creating the table of tm.
func (s *Synchronizer) PlanCreate(tm *mapping.TypeMapping) (*Plan, error) {
	plan, deferred, err := planCreate(s.drv, tm, func(*mapping.TypeMapping) bool { return true })
	if err != nil {
		return nil, err
	}
	plan.Changes = append(plan.Changes, deferred...)
	return plan, nil
}

// CreateTable creates the table of tm, its indexes and foreign keys.
func (s *Synchronizer) CreateTable(ctx context.Context, tm *mapping.TypeMapping) error {
	plan, err := s.PlanCreate(tm)
	if err != nil {
		return err
	}
	return s.exec(ctx, plan)
}

// CreateTables creates the tables of tms, referenced tables first.
// Foreign keys inside a reference cycle are added once every table exists.
func (s *Synchronizer) CreateTables(ctx context.Context, tms ...*mapping.TypeMapping) error {
	plans, err := s.PlanCreateAll(tms...)
	if err != nil {
		return err
	}
	return s.exec(ctx, plans...)
}

// PlanCreateAll returns the statements CreateTables would run against an
// empty database. It does not touch the database.
func (s *Synchronizer) PlanCreateAll(tms ...*mapping.TypeMapping) ([]*Plan, error) {
	return s.planCreateAll(order(tms), func(*mapping.TypeMapping) bool { return false })
}

// planCreateAll plans the creation of tms in order. existed reports tables
// that exist before the first statement runs.
func (s *Synchronizer) planCreateAll(tms []*mapping.TypeMapping, existed func(*mapping.TypeMapping) bool) ([]*Plan, error) {
	created := make(map[*mapping.TypeMapping]bool)
	exists := func(tm *mapping.TypeMapping) bool { return created[tm] || existed(tm) }
	var plans []*Plan
	var deferred []Change
	for _, tm := range tms {
		plan, later, err := planCreate(s.drv, tm, exists)
		if err != nil {
			return nil, err
		}
		created[tm] = true
		plans = append(plans, plan)
		deferred = append(deferred, later...)
	}
	if len(deferred) > 0 {
		plans = append(plans, &Plan{Table: "foreign keys", Changes: deferred})
	}
	return plans, nil
}

func (s *Synchronizer) tables(ctx context.Context) ([]introspect.TableDefinition, error) {
	tables, err := s.drv.TableDefinitions(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	return tables, nil
}

func findTable(tables []introspect.TableDefinition, tm *mapping.TypeMapping) (introspect.TableDefinition, bool) {
	for _, t := range tables {
		if !strings.EqualFold(t.Name, tm.TableName) {
			continue
		}
		if tm.TableSchema == "" || strings.EqualFold(t.Schema, tm.TableSchema) {
			return t, true
		}
	}
	return introspect.TableDefinition{}, false
}

func (s *Synchronizer) live(ctx context.Context, t introspect.TableDefinition) (liveTable, error) {
	cols, err := s.drv.ColumnDefinitions(ctx, s.db, t.Schema, t.Name)
	if err != nil {
		return liveTable{}, fmt.Errorf("failed to read columns of %s: %w", t.Name, err)
	}
	ixs, err := s.drv.IndexDefinitions(ctx, s.db, t.Schema, t.Name)
	if err != nil {
		return liveTable{}, fmt.Errorf("failed to read indexes of %s: %w", t.Name, err)
	}
	return liveTable{columns: cols, indexes: ixs}, nil
}

// Plan compares tm with the live table and returns the changes that
// CreateOrUpdateTable would run.
func (s *Synchronizer) Plan(ctx context.Context, tm *mapping.TypeMapping) (*Plan, error) {
	plans, err := s.PlanAll(ctx, tm)
	if err != nil {
		return nil, err
	}
	if len(plans) == 1 {
		return plans[0], nil
	}
	merged := &Plan{Table: tm.QualifiedName()}
	for _, p := range plans {
		merged.Create = merged.Create || p.Create
		merged.Changes = append(merged.Changes, p.Changes...)
		merged.Warnings = append(merged.Warnings, p.Warnings...)
	}
	return merged, nil
}

// CreateOrUpdateTable creates the table of tm when it does not exist, and
// otherwise adds and alters columns and indexes to match. Columns are
// never dropped.
func (s *Synchronizer) CreateOrUpdateTable(ctx context.Context, tm *mapping.TypeMapping) error {
	plan, err := s.Plan(ctx, tm)
	if err != nil {
		return err
	}
	return s.exec(ctx, plan)
}

// PlanAll plans the synchronization of every mapping. Live columns of
// existing tables are read concurrently.
func (s *Synchronizer) PlanAll(ctx context.Context, tms ...*mapping.TypeMapping) ([]*Plan, error) {
	tables, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}
	tms = order(tms)
	debug.Debug("planning %s", strings.Join(sortedNames(tms), ", "))

	existing := make(map[*mapping.TypeMapping]bool)
	lives := make([]liveTable, len(tms))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, tm := range tms {
		t, ok := findTable(tables, tm)
		if !ok {
			continue
		}
		existing[tm] = true
		eg.Go(func() error {
			live, err := s.live(gctx, t)
			if err != nil {
				return err
			}
			lives[i] = live
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var missing []*mapping.TypeMapping
	var plans []*Plan
	for i, tm := range tms {
		if !existing[tm] {
			missing = append(missing, tm)
			continue
		}
		plan, err := planUpdate(s.drv, tm, lives[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	created, err := s.planCreateAll(missing, func(tm *mapping.TypeMapping) bool {
		_, ok := findTable(tables, tm)
		return ok
	})
	if err != nil {
		return nil, err
	}
	return append(created, plans...), nil
}

// SyncAll plans and applies the synchronization of every mapping and
// returns what was applied.
func (s *Synchronizer) SyncAll(ctx context.Context, tms ...*mapping.TypeMapping) ([]*Plan, error) {
	plans, err := s.PlanAll(ctx, tms...)
	if err != nil {
		return nil, err
	}
	if err := s.exec(ctx, plans...); err != nil {
		return nil, err
	}
	return plans, nil
}

// DropTable drops the table of tm if it exists.
func (s *Synchronizer) DropTable(ctx context.Context, tm *mapping.TypeMapping) error {
	if err := checkTable(tm); err != nil {
		return err
	}
	plan := &Plan{Table: tm.QualifiedName()}
	plan.add(Change{
		Type:        ChangeTypeDropTable,
		Description: fmt.Sprintf("Drop table '%s'", plan.Table),
		SQL:         sqlgen.DropTable(s.drv.Dialect(), tm.TableSchema, tm.TableName),
	})
	return s.exec(ctx, plan)
}
