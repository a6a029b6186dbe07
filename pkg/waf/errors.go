package waf

import "fmt"

// DependencyError reports a failure of an external service a stage depends
// on (reputation service, inference endpoint, counter store).
type DependencyError struct {
	Service string
	Cause   error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Service, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *DependencyError) Unwrap() error {
	return e.Cause
}

// NewDependencyError creates a new DependencyError.
func NewDependencyError(service string, cause error) *DependencyError {
	return &DependencyError{Service: service, Cause: cause}
}

// InternalError reports an unexpected fault inside a pipeline stage. The
// request it occurred on is blocked.
type InternalError struct {
	Stage Stage
	Cause error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in stage %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *InternalError) Unwrap() error {
	return e.Cause
}

// NewInternalError creates a new InternalError.
func NewInternalError(stage Stage, cause error) *InternalError {
	return &InternalError{Stage: stage, Cause: cause}
}
