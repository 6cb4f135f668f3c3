package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the retrieval subsystem.
var (
	// ErrSourceNotFound means the tabular knowledge source is missing.
	// Ingestion aborts without touching the persisted index.
	ErrSourceNotFound = errors.New("knowledge source not found")

	// ErrMissingColumn means the source header lacks a required column.
	ErrMissingColumn = errors.New("missing required column")

	// ErrIndexOpen means the persisted index is missing, corrupted, or
	// dimension-mismatched. Irrecoverable for that location.
	ErrIndexOpen = errors.New("cannot open index")

	// ErrEmbedderInit means the embedding model failed to load. Fatal for
	// the process session; surfaces to the first caller of lazy init.
	ErrEmbedderInit = errors.New("embedding provider init failed")

	// ErrEmptyRecord marks a source row with no usable question/answer.
	ErrEmptyRecord = errors.New("empty record")
)

// ValidationError wraps a sentinel with row context.
type ValidationError struct {
	Field   string
	Row     int
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (row=%d)", e.Wrapped, e.Field, e.Row)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field string, row int, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Row: row, Wrapped: wrapped}
}
