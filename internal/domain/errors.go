package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInputRejected signals a query or document the service refuses to process.
	ErrInputRejected = errors.New("input rejected")
	// ErrInferenceUnavailable signals an unreachable or timed-out embedding backend.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrRetrievalFailed signals that the lexical store could not serve the query.
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrSchemaConflict signals an existing index mapping incompatible with the schema.
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrSchemaParse signals a malformed schema definition.
	ErrSchemaParse = errors.New("schema parse error")
	// ErrIndexNotReady signals that the index mapping has not been created yet.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrBatchNotFound signals a missing ingestion batch.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrRecordNotFound signals a missing metadata record.
	ErrRecordNotFound = errors.New("record not found")
)

// ValidationError wraps ErrInputRejected with the offending field path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", ErrInputRejected.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInputRejected }

// NewValidationError creates a field-level validation error.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
