package query

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrUnknownColumn    = errors.New("unknown column")
	ErrEmptyAggregation = errors.New("aggregation over empty group")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrIntegerOverflow  = errors.New("integer overflow")
)

// UnknownColumnError reports a column reference that is absent from the
// dataset, or from the projected result when raised by the ordering stage.
type UnknownColumnError struct {
	Column    string
	Stage     string   // select, filter, groupBy, aggregate or orderBy
	Available []string // columns that were in scope at that stage
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("%s: unknown column '%s' (available: %s)", e.Stage, e.Column, strings.Join(e.Available, ", "))
}

func (e *UnknownColumnError) Is(target error) bool {
	return target == ErrUnknownColumn
}

// EmptyAggregationError is raised when an aggregation is applied to a group
// with no rows. Groups are derived from at least one row, so reaching it
// indicates a bug in the grouping stage.
type EmptyAggregationError struct {
	Alias string
}

func (e *EmptyAggregationError) Error() string {
	return fmt.Sprintf("aggregate: '%s' computed over an empty group", e.Alias)
}

func (e *EmptyAggregationError) Is(target error) bool {
	return target == ErrEmptyAggregation
}

// TypeMismatchError reports an operation requested on a column whose type
// does not support it, such as averaging a string column.
type TypeMismatchError struct {
	Column    string
	Operation string
	Type      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: column '%s' of type %s is not supported", e.Operation, e.Column, e.Type)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// QueryValidationError represents an error found during query validation.
type QueryValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a QueryValidationError.
func (ve QueryValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}
