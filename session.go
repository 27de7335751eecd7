// Package elm is a small object-relational mapper. A Session binds a
// driver, a connection pool and a mapper; queries are built with the
// builder package and materialized through the session's identity cache.
package elm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/internal/debug"
	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/builder"
	"github.com/folkelib/elm/query/cache"
	"github.com/folkelib/elm/query/executor"
	"github.com/folkelib/elm/query/expr"
	"github.com/folkelib/elm/query/sqlgen"
)

type (
	// QueryError is a failed statement with its SQL text and arguments.
	QueryError = executor.QueryError
	// NotFoundError reports the type of a required row that is missing.
	NotFoundError = builder.NotFoundError
)

var (
	ErrNotFound     = builder.ErrNotFound
	ErrNotSupported = builder.ErrNotSupported
	ErrNoConnection = builder.ErrNoConnection
)

// Option configures a Session.
type Option func(*Session)

// WithMapper uses m instead of a fresh mapper with default naming.
func WithMapper(m *mapping.Mapper) Option {
	return func(s *Session) { s.mapper = m }
}

// WithoutCache disables the identity cache; every row then materializes
// a new object.
func WithoutCache() Option {
	return func(s *Session) { s.cache = nil }
}

// Session is a unit of work over one database. A Session is not safe for
// concurrent use.
type Session struct {
	drv    driver.Driver
	db     *sql.DB
	tx     *sql.Tx
	depth  int
	mapper *mapping.Mapper
	cache  *cache.Identity
	exec   *executor.Executor
	mat    *executor.Materializer
}

// New creates a session over an open pool.
func New(drv driver.Driver, db *sql.DB, opts ...Option) *Session {
	s := &Session{
		drv:    drv,
		db:     db,
		mapper: mapping.NewMapper(),
		cache:  cache.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exec = executor.New(db, drv.Parameters)
	s.mat = executor.NewMaterializer(drv, s.cache)
	return s
}

// Open opens a pool for provider and dsn and wraps it in a session.
func Open(provider, dsn string, opts ...Option) (*Session, error) {
	drv, err := driver.ForName(provider)
	if err != nil {
		return nil, err
	}
	db, err := drv.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", drv.Name(), err)
	}
	debug.Debug("Opened %s session", drv.Name())
	return New(drv, db, opts...), nil
}

// Close rolls back an open transaction and closes the pool.
func (s *Session) Close() error {
	if s.tx != nil {
		_ = s.Rollback()
	}
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Session) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Session) Driver() driver.Driver   { return s.drv }
func (s *Session) Mapper() *mapping.Mapper { return s.mapper }
func (s *Session) Dialect() sqlgen.Dialect { return s.drv.Dialect() }
func (s *Session) DB() *sql.DB             { return s.db }
func (s *Session) Cache() *cache.Identity  { return s.cache }
func (s *Session) InTransaction() bool     { return s.tx != nil }

// ClearCache drops every cached object.
func (s *Session) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// CacheStats returns identity cache statistics.
func (s *Session) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.GetStats()
}

// bound converts the arguments of q to driver values.
func (s *Session) bound(q *sqlgen.Query) (*sqlgen.Query, error) {
	args := make([]any, len(q.Args))
	for i, a := range q.Args {
		v, err := s.drv.ConvertValueToParameter(a)
		if err != nil {
			return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: fmt.Errorf("parameter %d: %w", i, err)}
		}
		args[i] = v
	}
	return &sqlgen.Query{SQL: q.SQL, Args: args}, nil
}

// Fetch runs q and materializes each row through plan.
func (s *Session) Fetch(ctx context.Context, q *sqlgen.Query, plan *executor.Plan) ([][]any, error) {
	b, err := s.bound(q)
	if err != nil {
		return nil, err
	}
	return s.exec.Fetch(ctx, b, s.mat, plan)
}

// Scalar runs q and returns the first column of the first row.
func (s *Session) Scalar(ctx context.Context, q *sqlgen.Query) (any, error) {
	b, err := s.bound(q)
	if err != nil {
		return nil, err
	}
	return s.exec.Scalar(ctx, b)
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, q *sqlgen.Query) (sql.Result, error) {
	b, err := s.bound(q)
	if err != nil {
		return nil, err
	}
	return s.exec.Exec(ctx, b)
}

// Query starts a select over T.
func Query[T any](s *Session) *builder.Select[T] {
	return builder.From[T](s)
}

// LoadByKey returns the object of type t with key, or nil when no row
// exists. Cached objects are returned without a round trip.
func (s *Session) LoadByKey(ctx context.Context, t reflect.Type, key any) (any, error) {
	tm, err := s.mapper.GetTypeMapping(t)
	if err != nil {
		return nil, err
	}
	if tm.Key == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, tm.Name)
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(tm.ID, key); ok {
			return v, nil
		}
	}
	q := builder.NewQuery(s.mapper, s.Dialect(), tm, s)
	q.Where(expr.Eq(q.Root(), key)).Take(1)
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0][0], nil
}

// LoadCollection returns the elements of c owned by ownerKey.
func (s *Session) LoadCollection(ctx context.Context, c *mapping.MappedCollection, ownerKey any) ([]any, error) {
	q := builder.NewQuery(s.mapper, s.Dialect(), c.Element, s)
	q.Where(expr.Eq(q.Root().F(c.ForeignKey.Name), ownerKey))
	for _, inc := range c.Include {
		q.Include(inc)
	}
	if c.Element.Key != nil {
		q.OrderBy(q.Root().F(c.Element.Key.Name))
	}
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[0])
	}
	return out, nil
}

var (
	_ builder.Runner = (*Session)(nil)
	_ mapping.Loader = (*Session)(nil)
)
