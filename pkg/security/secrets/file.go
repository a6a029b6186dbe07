package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider loads secrets from individual files in a directory, one
// secret per file named after it.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider reading from dir, which must exist.
func NewFileProvider(dir string) (*FileProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", dir)
	}
	return &FileProvider{dir: abs}, nil
}

// GetSecret implements Provider. The file must be a regular file with mode
// 0600 or 0400; surrounding whitespace is trimmed.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	path := filepath.Join(p.dir, name)
	if filepath.Dir(path) != p.dir {
		return "", fmt.Errorf("invalid secret name %q", name)
	}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if mode := info.Mode().Perm(); mode != 0o600 && mode != 0o400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to dir above
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Provider implements Provider.
func (p *FileProvider) Provider() string { return "file" }
