package gda

import (
	"errors"
	"fmt"

	"github.com/fabrimaciel/gda/expr"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	// ErrTypeNotMapped is returned when an entity has no metadata.
	ErrTypeNotMapped = errors.New("gda: type not mapped")

	// ErrPropertyNotFound is returned when a parameter or column names an
	// unknown property.
	ErrPropertyNotFound = errors.New("gda: property not found")

	// ErrUnsupportedOperation is returned for action types a dialect cannot render.
	ErrUnsupportedOperation = errors.New("gda: unsupported operation")

	// ErrUnsupportedTerm is returned when the formatter meets an unknown term.
	ErrUnsupportedTerm = errors.New("gda: unsupported conditional term")

	// ErrMissingPredicate is returned when an update or delete has nothing to match rows with.
	ErrMissingPredicate = errors.New("gda: missing predicate")

	// ErrUnknownDialect is returned when a provider name maps to no dialect.
	ErrUnknownDialect = errors.New("gda: unknown dialect")
)

// TypeNotMappedError is returned when the metadata provider does not know an entity.
type TypeNotMappedError struct {
	FullName string
}

// Error returns the error string.
func (e *TypeNotMappedError) Error() string {
	return fmt.Sprintf("gda: type %q not mapped", e.FullName)
}

// Is reports whether the target error matches ErrTypeNotMapped.
func (e *TypeNotMappedError) Is(err error) bool { return err == ErrTypeNotMapped }

// NewTypeNotMappedError returns a new TypeNotMappedError.
func NewTypeNotMappedError(fullName string) *TypeNotMappedError {
	return &TypeNotMappedError{FullName: fullName}
}

// PropertyNotFoundError is returned when a property does not exist on a type.
type PropertyNotFoundError struct {
	Entity   string
	Property string
}

// Error returns the error string.
func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("gda: property %q not found in %s", e.Property, e.Entity)
}

// Is reports whether the target error matches ErrPropertyNotFound.
func (e *PropertyNotFoundError) Is(err error) bool { return err == ErrPropertyNotFound }

// NewPropertyNotFoundError returns a new PropertyNotFoundError.
func NewPropertyNotFoundError(entity, property string) *PropertyNotFoundError {
	return &PropertyNotFoundError{Entity: entity, Property: property}
}

// UnsupportedOperationError is returned when an action cannot be rendered.
type UnsupportedOperationError struct {
	Dialect string
	Op      string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	if e.Dialect != "" {
		return fmt.Sprintf("gda: operation %s not supported by %s", e.Op, e.Dialect)
	}
	return fmt.Sprintf("gda: operation %s not supported", e.Op)
}

// Is reports whether the target error matches ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Is(err error) bool { return err == ErrUnsupportedOperation }

// UnsupportedTermError names the concrete term type the formatter could not handle.
type UnsupportedTermError struct {
	Term any
}

// Error returns the error string.
func (e *UnsupportedTermError) Error() string {
	return fmt.Sprintf("gda: unsupported conditional term %T", e.Term)
}

// Is reports whether the target error matches ErrUnsupportedTerm.
func (e *UnsupportedTermError) Is(err error) bool { return err == ErrUnsupportedTerm }

// MissingPredicateError is returned for an update or delete without keys,
// conditional or query.
type MissingPredicateError struct {
	Entity string
	Op     string
}

// Error returns the error string.
func (e *MissingPredicateError) Error() string {
	return fmt.Sprintf("gda: %s %s has no key parameters, conditional or query", e.Op, e.Entity)
}

// Is reports whether the target error matches ErrMissingPredicate.
func (e *MissingPredicateError) Is(err error) bool { return err == ErrMissingPredicate }

// UnknownDialectError is returned when a provider name cannot be resolved.
type UnknownDialectError struct {
	Provider string
}

// Error returns the error string.
func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("gda: unknown dialect %q", e.Provider)
}

// Is reports whether the target error matches ErrUnknownDialect.
func (e *UnknownDialectError) Is(err error) bool { return err == ErrUnknownDialect }

// IsMappingError reports whether err is a structural defect of the action or
// its mapping. Mapping errors are never converted into failed results.
func IsMappingError(err error) bool {
	if err == nil {
		return false
	}
	var term *expr.InvalidTermError
	return errors.Is(err, ErrTypeNotMapped) ||
		errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrUnsupportedOperation) ||
		errors.Is(err, ErrUnsupportedTerm) ||
		errors.Is(err, ErrMissingPredicate) ||
		errors.Is(err, ErrUnknownDialect) ||
		errors.As(err, &term)
}

// DataError wraps an error raised by the database while executing an action.
type DataError struct {
	ActionID int
	Entity   string
	Op       string
	// Constraint is set when the database rejected the command because of a
	// unique, foreign-key or check constraint.
	Constraint bool
	Err        error
}

// Error returns the error string.
func (e *DataError) Error() string {
	if e.Constraint {
		return fmt.Sprintf("gda: %s %s (action %d): constraint failed: %v", e.Op, e.Entity, e.ActionID, e.Err)
	}
	return fmt.Sprintf("gda: %s %s (action %d): %v", e.Op, e.Entity, e.ActionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError wraps err for the given action. A DataError already present in
// the chain is unwrapped first so that errors are wrapped only once.
func NewDataError(a *Action, op string, err error) *DataError {
	var inner *DataError
	if errors.As(err, &inner) {
		err = inner.Err
	}
	return &DataError{ActionID: a.ID, Entity: a.EntityFullName, Op: op, Err: err}
}

// IsDataError returns true if the error is a DataError.
func IsDataError(err error) bool {
	if err == nil {
		return false
	}
	var e *DataError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("gda: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}
