package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by a recorder or sink after Close.
	ErrClosed = errors.New("audit: closed")

	// ErrBufferFull is returned when pending events reach the buffer limit
	// because flushes keep failing.
	ErrBufferFull = errors.New("audit: buffer full")
)

// ValidationError reports a malformed event or query field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("audit validation failed [field=%s]: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StorageError represents an error from a sink.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError represents an invalid query.
type QueryError struct {
	Query *Query
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{Query: query, Cause: cause}
}

// SealError reports a failure to encrypt or decrypt an event sub-object.
type SealError struct {
	EventID string
	Field   string
	Cause   error
}

// Error implements the error interface.
func (e *SealError) Error() string {
	return fmt.Sprintf("seal error [event_id=%s, field=%s]: %v", e.EventID, e.Field, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SealError) Unwrap() error {
	return e.Cause
}

// NewSealError creates a new SealError.
func NewSealError(eventID, field string, cause error) *SealError {
	return &SealError{EventID: eventID, Field: field, Cause: cause}
}

// RetentionError represents an error during retention pruning.
type RetentionError struct {
	Cause error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// ExportError represents an error during export.
type ExportError struct {
	Format      string
	RecordCount int
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}
