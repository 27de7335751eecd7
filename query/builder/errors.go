package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned for expression shapes that have no SQL
	// translation.
	ErrNotSupported = errors.New("elm: expression not supported")

	// ErrNotFound is returned by Single when no row matches.
	ErrNotFound = errors.New("elm: not found")
)

// CompileError reports the expression that failed to compile.
type CompileError struct {
	Expr any
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("cannot compile %s: %v", describe(e.Expr), e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// NotFoundError is returned when a required row is missing.
type NotFoundError struct {
	Type string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found", e.Type)
}

// Is checks if the error is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notSupported(e any, format string, args ...any) error {
	return &CompileError{Expr: e, Err: fmt.Errorf("%w: "+format, append([]any{ErrNotSupported}, args...)...)}
}
