package elm

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/sqlgen"
)

// ErrNoKey is returned for keyed operations on a type without a key.
var ErrNoKey = mapping.ErrNoKey

// Get returns the T with key, or nil when there is none.
func Get[T any](ctx context.Context, s *Session, key any) (*T, error) {
	v, err := s.LoadByKey(ctx, reflect.TypeFor[T](), key)
	if err != nil || v == nil {
		return nil, err
	}
	t, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("elm: loaded %T for %s", v, reflect.TypeFor[T]())
	}
	return t, nil
}

// Load is Get, failing with ErrNotFound when no row exists.
func Load[T any](ctx context.Context, s *Session, key any) (*T, error) {
	t, err := Get[T](ctx, s, key)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &NotFoundError{Type: reflect.TypeFor[T]().Name()}
	}
	return t, nil
}

func (s *Session) entityMapping(entity any) (*mapping.TypeMapping, reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, fmt.Errorf("elm: expected a non-nil struct pointer, got %T", entity)
	}
	tm, err := s.mapper.GetTypeMapping(v.Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	if tm.IsComplexType {
		return nil, reflect.Value{}, fmt.Errorf("elm: %s is a complex type and has no table", tm.Name)
	}
	return tm, v, nil
}

func table(tm *mapping.TypeMapping) *ast.Table {
	return &ast.Table{Schema: tm.TableSchema, Name: tm.TableName}
}

// keyCondition renders "key = @p" for the key of v, appending the bound key
// to params.
func (s *Session) keyCondition(tm *mapping.TypeMapping, v reflect.Value, params *[]any) (ast.Node, any, error) {
	if tm.Key == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoKey, tm.Name)
	}
	key := tm.Key.Get(v)
	if key == nil {
		return nil, nil, fmt.Errorf("elm: %s has no key value", tm.Name)
	}
	bound, err := driver.PropertyParameter(s.drv, tm.Key, v.Interface())
	if err != nil {
		return nil, nil, err
	}
	*params = append(*params, bound)
	cond := &ast.Binary{
		Op:    ast.OpEq,
		Left:  &ast.Column{Name: tm.Key.ColumnName},
		Right: &ast.Parameter{Index: len(*params) - 1},
	}
	return cond, key, nil
}

// Save inserts entity, a pointer to a mapped struct. A generated key is read
// back into the entity, which then joins the identity cache and has its
// collections bound.
func (s *Session) Save(ctx context.Context, entity any) error {
	tm, v, err := s.entityMapping(entity)
	if err != nil {
		return err
	}
	ins := &ast.Insert{Table: table(tm)}
	var params []any
	for _, p := range tm.Columns() {
		if p.IsKey && p.IsAutomatic {
			continue
		}
		bound, err := driver.PropertyParameter(s.drv, p, entity)
		if err != nil {
			return err
		}
		params = append(params, bound)
		ins.Columns = append(ins.Columns, p.ColumnName)
		ins.Values = append(ins.Values, &ast.Parameter{Index: len(params) - 1})
	}
	automatic := tm.Key != nil && tm.Key.IsAutomatic
	if automatic {
		ins.ReturnKey = tm.Key.ColumnName
	}
	q, err := sqlgen.Render(s.Dialect(), ins, params)
	if err != nil {
		return err
	}

	if automatic {
		raw, err := s.insertID(ctx, q)
		if err != nil {
			return err
		}
		if err := s.setKey(tm.Key, v, raw); err != nil {
			return err
		}
	} else if _, err := s.exec.Exec(ctx, q); err != nil {
		return err
	}
	s.track(tm, v)
	return nil
}

func (s *Session) insertID(ctx context.Context, q *sqlgen.Query) (any, error) {
	if s.Dialect().InsertID() != sqlgen.InsertIDResult {
		raw, err := s.exec.Scalar(ctx, q)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: errors.New("no generated key returned")}
		}
		return raw, nil
	}
	res, err := s.exec.Exec(ctx, q)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: err}
	}
	return id, nil
}

func (s *Session) setKey(key *mapping.PropertyMapping, v reflect.Value, raw any) error {
	val, err := s.drv.ConvertReaderValue(raw, key)
	if err != nil {
		return fmt.Errorf("failed to read generated key %s: %w", key, err)
	}
	f := key.Field(v)
	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(f.Type()):
		f.Set(rv)
	case rv.Type().ConvertibleTo(f.Type()):
		f.Set(rv.Convert(f.Type()))
	default:
		return fmt.Errorf("cannot store generated key %T in %s", val, key)
	}
	return nil
}

// track puts v in the identity cache and binds its collections.
func (s *Session) track(tm *mapping.TypeMapping, v reflect.Value) {
	if tm.Key == nil {
		return
	}
	key := tm.Key.Get(v)
	if key == nil {
		return
	}
	if s.cache != nil {
		s.cache.Put(tm.ID, key, v.Interface())
	}
	for _, c := range tm.Collections {
		c.Bind(v, key)
	}
}

// Update writes every non-key column of entity, matched by key.
func (s *Session) Update(ctx context.Context, entity any) error {
	tm, v, err := s.entityMapping(entity)
	if err != nil {
		return err
	}
	var params []any
	where, _, err := s.keyCondition(tm, v, &params)
	if err != nil {
		return err
	}
	upd := &ast.Update{Table: table(tm), Where: where}
	for _, p := range tm.Columns() {
		if p.IsKey {
			continue
		}
		bound, err := driver.PropertyParameter(s.drv, p, entity)
		if err != nil {
			return err
		}
		params = append(params, bound)
		upd.Set = append(upd.Set, ast.Assignment{Column: p.ColumnName, Value: &ast.Parameter{Index: len(params) - 1}})
	}
	if len(upd.Set) == 0 {
		return nil
	}
	if err := s.run(ctx, upd, params); err != nil {
		return err
	}
	s.track(tm, v)
	return nil
}

// Delete removes the row of entity and evicts it from the identity cache.
func (s *Session) Delete(ctx context.Context, entity any) error {
	tm, v, err := s.entityMapping(entity)
	if err != nil {
		return err
	}
	var params []any
	where, key, err := s.keyCondition(tm, v, &params)
	if err != nil {
		return err
	}
	if err := s.run(ctx, &ast.Delete{Table: table(tm), Where: where}, params); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(tm.ID, key)
	}
	return nil
}

func (s *Session) run(ctx context.Context, node ast.Node, params []any) error {
	q, err := sqlgen.Render(s.Dialect(), node, params)
	if err != nil {
		return err
	}
	_, err = s.exec.Exec(ctx, q)
	return err
}
