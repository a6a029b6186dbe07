package envelope

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned when a data key is not 32 bytes long.
var ErrInvalidKey = errors.New("envelope: data key must be 32 bytes")

// FormatError reports an envelope whose layout does not match the fixed
// segment sizes. It is never recovered from.
type FormatError struct {
	Length int
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("envelope format error (length=%d): %s", e.Length, e.Reason)
}

// NewFormatError creates a new FormatError.
func NewFormatError(length int, reason string) *FormatError {
	return &FormatError{Length: length, Reason: reason}
}

// AuthenticationError reports an envelope whose tag does not verify under
// the supplied key.
type AuthenticationError struct {
	Cause error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("envelope authentication failed: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}
