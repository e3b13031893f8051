package core

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// QueryErrorCode identifies a local, deterministic query failure.
type QueryErrorCode int

const (
	// CodeNoTable is returned when a query is rendered without a table.
	CodeNoTable QueryErrorCode = iota + 1

	// CodeEmptyQuery is returned when there is no SQL text to execute.
	CodeEmptyQuery

	// CodeInvalidQuery is returned when a statement cannot be prepared.
	CodeInvalidQuery

	// CodeInvalidCommand is returned when the builder command is unknown.
	CodeInvalidCommand

	// CodeInvalidArguments is returned when INSERT/UPDATE has no columns.
	CodeInvalidArguments
)

// QueryError is a query-builder or statement preparation error.
type QueryError struct {
	Code QueryErrorCode
	Err  error
}

func (e *QueryError) Error() string {
	var msg string
	switch e.Code {
	case CodeNoTable:
		msg = "No table selected."
	case CodeEmptyQuery:
		msg = "Query is empty."
	case CodeInvalidQuery:
		msg = "Invalid query."
	case CodeInvalidCommand:
		msg = "Invalid command."
	case CodeInvalidArguments:
		msg = "Invalid arguments."
	default:
		msg = "Unknown exception."
	}
	if e.Err != nil {
		return msg + " " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is matches any QueryError carrying the same code.
func (e *QueryError) Is(target error) bool {
	var t *QueryError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNoTable          = &QueryError{Code: CodeNoTable}
	ErrEmptyQuery       = &QueryError{Code: CodeEmptyQuery}
	ErrInvalidQuery     = &QueryError{Code: CodeInvalidQuery}
	ErrInvalidCommand   = &QueryError{Code: CodeInvalidCommand}
	ErrInvalidArguments = &QueryError{Code: CodeInvalidArguments}
)

// DriverError wraps a failure reported by the database driver together with
// the statement that caused it, parameters already interpolated.
type DriverError struct {
	// Query is the combined SQL text, for diagnostics only.
	Query string

	// Err is the original driver error.
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("failed to execute query '%s': %v", e.Query, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// MySQLNumber returns the server error number when the cause is a MySQL error.
func (e *DriverError) MySQLNumber() (uint16, bool) {
	var myErr *mysql.MySQLError
	if errors.As(e.Err, &myErr) {
		return myErr.Number, true
	}
	return 0, false
}

// ModelErrorCode identifies an entity-layer failure.
type ModelErrorCode int

const (
	CodeModelNoTable ModelErrorCode = iota + 1
	CodeInvalidObject
	CodeNoRelation
)

// ModelError is returned by the entity and resource layers.
type ModelError struct {
	Code ModelErrorCode
	Arg  string
}

func (e *ModelError) Error() string {
	switch e.Code {
	case CodeModelNoTable:
		return "No table selected."
	case CodeInvalidObject:
		return "Instance is not a valid object."
	case CodeNoRelation:
		return fmt.Sprintf("Relation `%s` does not exist.", e.Arg)
	default:
		return "Unknown exception."
	}
}

// Is matches any ModelError carrying the same code, ignoring Arg.
func (e *ModelError) Is(target error) bool {
	var t *ModelError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrModelNoTable  = &ModelError{Code: CodeModelNoTable}
	ErrInvalidObject = &ModelError{Code: CodeInvalidObject}
	ErrNoRelation    = &ModelError{Code: CodeNoRelation}
)

// NoRelation builds the error for an undeclared relation name.
func NoRelation(name string) error {
	return &ModelError{Code: CodeNoRelation, Arg: name}
}
