// Package executor executes compiled statements and maps result rows to
// mapped objects.
package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/folkelib/elm/internal/debug"
	"github.com/folkelib/elm/query/sqlgen"
)

// Querier runs statements; *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QueryError is a failed statement with the SQL text and arguments sent.
type QueryError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query execution failed: %v [%s]", e.Err, e.SQL)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Executor runs queries through q. Args are passed through bind before
// reaching the driver.
type Executor struct {
	q    Querier
	bind func([]any) []any
}

// New creates an executor. bind may be nil.
func New(q Querier, bind func([]any) []any) *Executor {
	if bind == nil {
		bind = func(args []any) []any { return args }
	}
	return &Executor{q: q, bind: bind}
}

// WithQuerier returns an executor sharing the binding but running on q,
// used to scope work to a transaction.
func (e *Executor) WithQuerier(q Querier) *Executor {
	return &Executor{q: q, bind: e.bind}
}

func trace(q *sqlgen.Query) {
	if debug.Enabled() {
		debug.WithFields(logrus.Fields{"sql": q.SQL, "args": q.Args}).Debug("exec")
	}
}

// Rows runs q and returns every row as raw driver values.
func (e *Executor) Rows(ctx context.Context, q *sqlgen.Query) ([][]any, error) {
	trace(q)
	rows, err := e.q.QueryContext(ctx, q.SQL, e.bind(q.Args)...)
	if err != nil {
		return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: err}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: err}
	}
	return out, nil
}

// Scalar runs q and returns the first column of the first row, or nil when
// there are no rows.
func (e *Executor) Scalar(ctx context.Context, q *sqlgen.Query) (any, error) {
	rows, err := e.Rows(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	return rows[0][0], nil
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, q *sqlgen.Query) (sql.Result, error) {
	trace(q)
	res, err := e.q.ExecContext(ctx, q.SQL, e.bind(q.Args)...)
	if err != nil {
		return nil, &QueryError{SQL: q.SQL, Args: q.Args, Err: err}
	}
	return res, nil
}

// Fetch runs q and materializes each row through m and plan.
func (e *Executor) Fetch(ctx context.Context, q *sqlgen.Query, m *Materializer, plan *Plan) ([][]any, error) {
	rows, err := e.Rows(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		objs, err := m.Row(plan, row)
		if err != nil {
			return nil, err
		}
		out = append(out, objs)
	}
	return out, nil
}
