package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envProvider(vars map[string]string) *EnvProvider {
	p := NewEnvProvider("")
	p.lookup = func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
	return p
}

func TestEnvProvider_GetSecret(t *testing.T) {
	p := envProvider(map[string]string{
		"BASTION_SECRET_KEY_SERVICE_TOKEN": "tok-123",
		"BASTION_SECRET_EMPTY":             "",
	})

	got, err := p.GetSecret(context.Background(), "key-service-token")
	if err != nil || got != "tok-123" {
		t.Fatalf("GetSecret() = %q, %v", got, err)
	}
	for _, name := range []string{"missing", "empty"} {
		if _, err := p.GetSecret(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSecret(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestFileProvider_GetSecret(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string, mode os.FileMode) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), mode); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(filepath.Join(dir, name), mode); err != nil {
			t.Fatal(err)
		}
	}
	write("api-key", "  secret-value\n", 0o600)
	write("readonly", "ro", 0o400)
	write("loose", "x", 0o644)
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o700); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	tests := []struct {
		name     string
		want     string
		notFound bool
		wantErr  bool
	}{
		{name: "api-key", want: "secret-value"},
		{name: "readonly", want: "ro"},
		{name: "loose", wantErr: true},
		{name: "subdir", wantErr: true},
		{name: "absent", notFound: true},
		{name: "../escape", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.name)
			switch {
			case tt.notFound:
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("error = %v, want ErrNotFound", err)
				}
			case tt.wantErr:
				if err == nil || errors.Is(err, ErrNotFound) {
					t.Errorf("error = %v, want a hard failure", err)
				}
			default:
				if err != nil || got != tt.want {
					t.Errorf("GetSecret() = %q, %v; want %q", got, err, tt.want)
				}
			}
		})
	}
}

func TestNewFileProvider_RequiresDirectory(t *testing.T) {
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing directory accepted")
	}
}

func TestManager_ResolveAll(t *testing.T) {
	m := NewManager(nil,
		envProvider(map[string]string{"BASTION_SECRET_TOKEN": "from-env"}),
		envProvider(map[string]string{"BASTION_SECRET_API_KEY": "fallback"}),
	)

	token := "${secret:token}"
	apiKey := "Bearer ${secret:api-key}"
	plain := "literal"
	if err := m.ResolveAll(context.Background(), map[string]*string{
		"keys.token":         &token,
		"reputation.api_key": &apiKey,
		"anomaly.api_key":    &plain,
	}); err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	if token != "from-env" || apiKey != "Bearer fallback" || plain != "literal" {
		t.Errorf("resolved token=%q apiKey=%q plain=%q", token, apiKey, plain)
	}

	missing := "${secret:nowhere}"
	err := m.ResolveAll(context.Background(), map[string]*string{"keys.token": &missing})
	if err == nil || !strings.Contains(err.Error(), "keys.token") {
		t.Fatalf("ResolveAll() error = %v, want failure naming the field", err)
	}
	if missing != "${secret:nowhere}" {
		t.Errorf("unresolved field modified to %q", missing)
	}
}

func TestRedactSecretName(t *testing.T) {
	if got := redactSecretName("key-service-token"); got != "ke...en" {
		t.Errorf("redactSecretName() = %q", got)
	}
	if got := redactSecretName("abc"); got != "***" {
		t.Errorf("redactSecretName(short) = %q", got)
	}
}
