package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bastion-hq/aegis/pkg/security/envelope"
)

// Config configures a Keyring.
type Config struct {
	CacheTTL     time.Duration // Default: 1 hour
	MaxCacheSize int           // Default: 1000
	KeySpec      string        // Default: AES_256
}

// DefaultConfig returns the default keyring configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:     time.Hour,
		MaxCacheSize: 1000,
		KeySpec:      KeySpecAES256,
	}
}

// Keyring fronts a key Service with a plaintext data key cache.
type Keyring struct {
	service Service
	cache   *Cache
	keySpec string
	logger  *slog.Logger
}

// NewKeyring creates a Keyring over service.
func NewKeyring(service Service, cfg Config, logger *slog.Logger) *Keyring {
	def := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = def.MaxCacheSize
	}
	if cfg.KeySpec == "" {
		cfg.KeySpec = def.KeySpec
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keyring{
		service: service,
		cache:   NewCache(CacheConfig{TTL: cfg.CacheTTL, MaxSize: cfg.MaxCacheSize}),
		keySpec: cfg.KeySpec,
		logger:  logger.With("component", "security.keys"),
	}
}

// GetDataKey returns a data key for keyID bound to encCtx.
//
// On a cache hit the returned Wrapped slice is empty; see the package
// documentation. On a miss a fresh key is generated and cached.
func (k *Keyring) GetDataKey(ctx context.Context, keyID string, encCtx map[string]string) (*DataKey, error) {
	if keyID == "" {
		return nil, ErrEmptyKeyID
	}

	if plaintext, ok := k.cache.Get(cacheKey(keyID, encCtx)); ok {
		k.logger.Debug("data key cache hit", "key_id", redactKeyID(keyID))
		return &DataKey{Plaintext: plaintext, Wrapped: []byte{}}, nil
	}

	k.logger.Debug("data key cache miss", "key_id", redactKeyID(keyID))
	return k.NewDataKey(ctx, keyID, encCtx)
}

// NewDataKey always calls the key service, caches the plaintext and returns
// both forms of the new key.
func (k *Keyring) NewDataKey(ctx context.Context, keyID string, encCtx map[string]string) (*DataKey, error) {
	if keyID == "" {
		return nil, ErrEmptyKeyID
	}

	dk, err := k.generate(ctx, "generate", keyID, encCtx)
	if err != nil {
		return nil, err
	}
	k.cache.Set(cacheKey(keyID, encCtx), dk.Plaintext)
	return dk, nil
}

// DecryptDataKey unwraps a wrapped data key through the key service. The
// result is never cached.
func (k *Keyring) DecryptDataKey(ctx context.Context, wrapped []byte, encCtx map[string]string) ([]byte, error) {
	if len(wrapped) == 0 {
		return nil, NewKeyServiceError("decrypt", "", KindInvalidResponse, errors.New("wrapped key is empty"))
	}

	plaintext, err := k.service.DecryptDataKey(ctx, wrapped, encCtx)
	if err != nil {
		return nil, asKeyServiceError("decrypt", "", err)
	}
	if len(plaintext) != envelope.KeySize {
		envelope.Zero(plaintext)
		return nil, NewKeyServiceError("decrypt", "", KindInvalidResponse,
			fmt.Errorf("expected %d byte key, got %d", envelope.KeySize, len(plaintext)))
	}
	return plaintext, nil
}

// RotateKey generates a replacement data key for keyID and clears the whole
// cache so no entry created before the rotation is served again.
func (k *Keyring) RotateKey(ctx context.Context, keyID string, encCtx map[string]string) (*DataKey, error) {
	if keyID == "" {
		return nil, ErrEmptyKeyID
	}

	dk, err := k.generate(ctx, "rotate", keyID, encCtx)
	if err != nil {
		return nil, err
	}
	k.cache.Clear()

	k.logger.Info("data key rotated, cache cleared", "key_id", redactKeyID(keyID))
	return dk, nil
}

// ValidateKey reports whether the master key is usable.
func (k *Keyring) ValidateKey(ctx context.Context, keyID string) (bool, error) {
	if keyID == "" {
		return false, ErrEmptyKeyID
	}
	ok, err := k.service.ValidateKey(ctx, keyID)
	if err != nil {
		return false, asKeyServiceError("validate", keyID, err)
	}
	return ok, nil
}

// CacheSize returns the number of cached data keys.
func (k *Keyring) CacheSize() int {
	return k.cache.Size()
}

func (k *Keyring) generate(ctx context.Context, op, keyID string, encCtx map[string]string) (*DataKey, error) {
	dk, err := k.service.GenerateDataKey(ctx, keyID, k.keySpec, encCtx)
	if err != nil {
		return nil, asKeyServiceError(op, keyID, err)
	}
	if dk == nil || len(dk.Plaintext) != envelope.KeySize || len(dk.Wrapped) != envelope.WrappedKeySize {
		if dk != nil {
			envelope.Zero(dk.Plaintext)
		}
		return nil, NewKeyServiceError(op, keyID, KindInvalidResponse, errors.New("malformed data key"))
	}
	return dk, nil
}

func asKeyServiceError(op, keyID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var kerr *KeyServiceError
	if errors.As(err, &kerr) {
		return kerr
	}
	return NewKeyServiceError(op, keyID, KindUnavailable, err)
}

// redactKeyID keeps the first 4 characters of a key id for log output.
func redactKeyID(keyID string) string {
	if len(keyID) <= 4 {
		return strings.Repeat("*", len(keyID))
	}
	return keyID[:4] + "***"
}
