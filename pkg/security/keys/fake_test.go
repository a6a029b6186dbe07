package keys

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"sync"
)

// fakeService is an in-memory Service that wraps keys by prefixing a
// context fingerprint and padding to the envelope wrapped-key size.
type fakeService struct {
	mu            sync.Mutex
	generateCalls int
	decryptCalls  int
	keys          map[string][]byte // wrapped -> plaintext
	contexts      map[string]string // wrapped -> canonical context
	generateErr   error
	decryptErr    error
	valid         map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{
		keys:     make(map[string][]byte),
		contexts: make(map[string]string),
		valid:    map[string]bool{"audit-key": true},
	}
}

func (f *fakeService) GenerateDataKey(ctx context.Context, keyID, keySpec string, encCtx map[string]string) (*DataKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	if f.generateErr != nil {
		return nil, f.generateErr
	}

	plaintext := make([]byte, 32)
	wrapped := make([]byte, 512)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, err
	}
	if _, err := rand.Read(wrapped); err != nil {
		return nil, err
	}
	f.keys[string(wrapped)] = bytes.Clone(plaintext)
	f.contexts[string(wrapped)] = canonicalContext(encCtx)
	return &DataKey{Plaintext: plaintext, Wrapped: wrapped}, nil
}

func (f *fakeService) DecryptDataKey(ctx context.Context, wrapped []byte, encCtx map[string]string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decryptCalls++
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	plaintext, ok := f.keys[string(wrapped)]
	if !ok {
		return nil, NewKeyServiceError("decrypt", "", KindKeyNotFound, errors.New("unknown wrapped key"))
	}
	if f.contexts[string(wrapped)] != canonicalContext(encCtx) {
		return nil, NewKeyServiceError("decrypt", "", KindContextMismatch, errors.New("context mismatch"))
	}
	return bytes.Clone(plaintext), nil
}

func (f *fakeService) ValidateKey(ctx context.Context, keyID string) (bool, error) {
	return f.valid[keyID], nil
}

func (f *fakeService) calls() (generate, decrypt int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls, f.decryptCalls
}
