package keys

import (
	"errors"
	"fmt"
)

// ErrorKind classifies key service failures.
type ErrorKind string

const (
	KindAccessDenied    ErrorKind = "access_denied"
	KindKeyNotFound     ErrorKind = "key_not_found"
	KindContextMismatch ErrorKind = "context_mismatch"
	KindKeyExpired      ErrorKind = "key_expired"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnavailable     ErrorKind = "unavailable"
)

// ErrEmptyKeyID is returned when an operation is called without a key id.
var ErrEmptyKeyID = errors.New("key id cannot be empty")

// KeyServiceError reports a failure of the external key service.
type KeyServiceError struct {
	Op    string    // Operation ("generate", "decrypt", "validate", "rotate")
	KeyID string    // Key id, empty for decrypt
	Kind  ErrorKind // Failure classification
	Cause error     // Underlying error
}

// Error implements the error interface.
func (e *KeyServiceError) Error() string {
	if e.KeyID != "" {
		return fmt.Sprintf("key service error [op=%s, key=%s, kind=%s]: %v", e.Op, e.KeyID, e.Kind, e.Cause)
	}
	return fmt.Sprintf("key service error [op=%s, kind=%s]: %v", e.Op, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *KeyServiceError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient.
func (e *KeyServiceError) Retryable() bool {
	return e.Kind == KindUnavailable
}

// NewKeyServiceError creates a new KeyServiceError.
func NewKeyServiceError(op, keyID string, kind ErrorKind, cause error) *KeyServiceError {
	return &KeyServiceError{Op: op, KeyID: keyID, Kind: kind, Cause: cause}
}

// IsKind reports whether err is a KeyServiceError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var kerr *KeyServiceError
	return errors.As(err, &kerr) && kerr.Kind == kind
}
