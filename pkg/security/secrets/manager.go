package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// secretRefRegex matches ${secret:name} references.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through providers tried in order.
type Manager struct {
	providers []Provider
	logger    *slog.Logger
}

// NewManager creates a Manager.
func NewManager(logger *slog.Logger, providers ...Provider) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{providers: providers, logger: logger.With("component", "security.secrets")}
}

// GetSecret returns the value from the first provider holding name.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, p := range m.providers {
		value, err := p.GetSecret(ctx, name)
		if err == nil {
			m.logger.Debug("secret resolved", "provider", p.Provider(), "name", redactSecretName(name))
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", p.Provider(), err))
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("failed to get secret %q: %w", name, errors.Join(errs...))
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ResolveReferences replaces every ${secret:name} in input. Any reference
// that cannot be resolved fails the whole call.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error
	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return output, nil
}

// HasReference reports whether s contains a secret reference.
func HasReference(s string) bool {
	return secretRefRegex.MatchString(s)
}

// ResolveAll resolves references in each string in place. Strings without
// a reference are left untouched.
func (m *Manager) ResolveAll(ctx context.Context, fields map[string]*string) error {
	var errs []error
	for field, p := range fields {
		if !HasReference(*p) {
			continue
		}
		v, err := m.ResolveReferences(ctx, *p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			continue
		}
		*p = v
	}
	return errors.Join(errs...)
}

// redactSecretName keeps the first and last two characters.
func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
