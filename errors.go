package jsondb

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

var (
	ErrClosed        = errors.New("database is closed")
	ErrInvalidSchema = errors.New("invalid schema")
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// SchemaValidationError reports a record that does not conform to its
// table's schema.
type SchemaValidationError struct {
	Table  string
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	msg := "schema validation failed"
	if e.Table != "" {
		msg += " for table " + e.Table
	}
	if e.Field != "" {
		msg += ": field " + e.Field
	}
	return msg + ": " + e.Reason
}

func (e *SchemaValidationError) Status() int { return http.StatusBadRequest }

type DuplicateKeyError struct {
	Table string
	Key   any
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate primary key %v in table %s", e.Key, e.Table)
}

func (e *DuplicateKeyError) Status() int { return http.StatusConflict }

type TableNotFoundError struct{ Name string }

func (e *TableNotFoundError) Error() string { return fmt.Sprintf("table %s not found", e.Name) }
func (e *TableNotFoundError) Status() int   { return http.StatusNotFound }

type TableAlreadyExistsError struct{ Name string }

func (e *TableAlreadyExistsError) Error() string {
	return fmt.Sprintf("table %s already exists", e.Name)
}
func (e *TableAlreadyExistsError) Status() int { return http.StatusConflict }

// QueryError reports an invalid operator, field reference or comparison.
type QueryError struct {
	msg    string
	status int
}

func NewQueryError(status int, msg string) *QueryError {
	return &QueryError{msg: msg, status: status}
}

func queryErrorf(format string, args ...any) *QueryError {
	return NewQueryError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

func (e *QueryError) Error() string { return e.msg }
func (e *QueryError) Status() int   { return e.status }

// TransactionError wraps the error that aborted a transaction. It is only
// returned once rollback has completed.
type TransactionError struct {
	ID  uuid.UUID
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s rolled back: %v", e.ID, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func (e *TransactionError) Status() int { return StatusOf(e.Err) }

// StatusOf returns the HTTP-style status carried by err, or 500.
func StatusOf(err error) int {
	var s interface{ Status() int }
	if errors.As(err, &s) {
		return s.Status()
	}
	switch {
	case errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidSchema):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
