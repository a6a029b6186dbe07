package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that does not hold a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets by name.
type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)

	// Provider names the backend for logs.
	Provider() string
}
