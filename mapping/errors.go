package mapping

import (
	"errors"
	"fmt"
)

// Sentinel errors for mapping configuration problems.
var (
	// ErrUnmappableType is returned when a type can never back a table,
	// such as interface types or non-struct types.
	ErrUnmappableType = errors.New("elm: type cannot be mapped")

	// ErrUnsupportedType is returned when a field type has no column kind.
	ErrUnsupportedType = errors.New("elm: unsupported column value type")

	// ErrNoKey is returned when an operation needs a primary key the mapping lacks.
	ErrNoKey = errors.New("elm: type has no primary key")

	// ErrUnknownProperty is returned when a property name is not mapped.
	ErrUnknownProperty = errors.New("elm: unknown property")
)

// ConfigError describes a mapping configuration failure for a type or one of its fields.
type ConfigError struct {
	Type  string
	Field string
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("mapping %s.%s: %v", e.Type, e.Field, e.Cause)
	}
	return fmt.Sprintf("mapping %s: %v", e.Type, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

func configErr(typeName, field string, cause error) *ConfigError {
	return &ConfigError{Type: typeName, Field: field, Cause: cause}
}
