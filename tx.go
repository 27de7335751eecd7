package elm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/folkelib/elm/internal/debug"
)

var (
	// ErrTxActive is returned by Begin when the session already has a
	// transaction.
	ErrTxActive = errors.New("elm: transaction already in progress")
	// ErrNoTx is returned by Commit and Rollback outside a transaction.
	ErrNoTx = errors.New("elm: no transaction in progress")
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (default)
	ReadCommitted IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// TxOptions converts the level to database/sql options.
func (level IsolationLevel) TxOptions(readOnly bool) *sql.TxOptions {
	iso := sql.LevelReadCommitted
	switch level {
	case ReadUncommitted:
		iso = sql.LevelReadUncommitted
	case RepeatableRead:
		iso = sql.LevelRepeatableRead
	case Serializable:
		iso = sql.LevelSerializable
	}
	return &sql.TxOptions{Isolation: iso, ReadOnly: readOnly}
}

// Begin starts a transaction. Statements issued by the session run inside
// it until Commit or Rollback.
func (s *Session) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if s.tx != nil {
		return ErrTxActive
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	s.exec = s.exec.WithQuerier(tx)
	debug.Debug("Transaction started")
	return nil
}

func (s *Session) endTx() {
	s.tx = nil
	s.depth = 0
	s.exec = s.exec.WithQuerier(s.db)
}

// Commit commits the current transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return ErrNoTx
	}
	tx := s.tx
	s.endTx()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	debug.Debug("Transaction committed")
	return nil
}

// Rollback aborts the current transaction. Cached objects may hold state
// that never reached the database, so the identity cache is cleared.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return ErrNoTx
	}
	tx := s.tx
	s.endTx()
	s.ClearCache()
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	debug.Debug("Transaction rolled back")
	return nil
}

// Transaction runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise. Inside an existing transaction fn runs under a
// savepoint instead.
func (s *Session) Transaction(ctx context.Context, fn func(s *Session) error) error {
	return s.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithIsolation is Transaction at a specific isolation level.
func (s *Session) TransactionWithIsolation(ctx context.Context, level IsolationLevel, fn func(s *Session) error) error {
	return s.TransactionWithOptions(ctx, level.TxOptions(false), fn)
}

// TransactionWithOptions is Transaction with explicit options. opts is
// ignored for nested calls.
func (s *Session) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn func(s *Session) error) error {
	if s.tx != nil {
		return s.nested(ctx, fn)
	}
	if err := s.Begin(ctx, opts); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	return s.Commit()
}

type savepointSyntax struct {
	create, rollback, release string
}

func (s *Session) savepoints() savepointSyntax {
	if s.drv.Name() == "sqlserver" {
		return savepointSyntax{"SAVE TRANSACTION %s", "ROLLBACK TRANSACTION %s", ""}
	}
	return savepointSyntax{"SAVEPOINT %s", "ROLLBACK TO SAVEPOINT %s", "RELEASE SAVEPOINT %s"}
}

func (s *Session) nested(ctx context.Context, fn func(s *Session) error) error {
	syntax := s.savepoints()
	s.depth++
	name := fmt.Sprintf("sp_%d", s.depth)
	tx := s.tx

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(syntax.create, name)); err != nil {
		s.depth--
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = tx.ExecContext(ctx, fmt.Sprintf(syntax.rollback, name))
			s.depth--
			s.ClearCache()
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		s.depth--
		s.ClearCache()
		if _, rbErr := tx.ExecContext(ctx, fmt.Sprintf(syntax.rollback, name)); rbErr != nil {
			return fmt.Errorf("nested transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	s.depth--
	if syntax.release == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(syntax.release, name)); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
