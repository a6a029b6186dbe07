package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secret environment variables.
const DefaultEnvPrefix = "BASTION_SECRET_"

// EnvProvider loads secrets from environment variables.
//
// The secret "key-service-token" is read from
// BASTION_SECRET_KEY_SERVICE_TOKEN with the default prefix.
type EnvProvider struct {
	Prefix string

	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider. An empty prefix uses
// DefaultEnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

// GetSecret implements Provider. An empty variable counts as missing.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	envVar := p.envVar(name)
	value, ok := p.lookup(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrNotFound, name, envVar)
	}
	return value, nil
}

// Provider implements Provider.
func (p *EnvProvider) Provider() string { return "env" }

func (p *EnvProvider) envVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
