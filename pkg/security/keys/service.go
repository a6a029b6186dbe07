package keys

import (
	"context"
	"encoding/json"
)

// KeySpecAES256 requests a 256-bit symmetric data key.
const KeySpecAES256 = "AES_256"

// DataKey is a data key in both plaintext and wrapped form.
type DataKey struct {
	Plaintext []byte
	Wrapped   []byte
}

// Service is the contract of the external key management service.
type Service interface {
	// GenerateDataKey creates a fresh data key under the master key keyID,
	// bound to the encryption context.
	GenerateDataKey(ctx context.Context, keyID, keySpec string, encCtx map[string]string) (*DataKey, error)

	// DecryptDataKey unwraps a wrapped data key. The encryption context must
	// match the one used at generation time.
	DecryptDataKey(ctx context.Context, wrapped []byte, encCtx map[string]string) ([]byte, error)

	// ValidateKey reports whether keyID exists and is usable.
	ValidateKey(ctx context.Context, keyID string) (bool, error)
}

// canonicalContext serializes an encryption context deterministically.
// encoding/json sorts map keys.
func canonicalContext(encCtx map[string]string) string {
	if len(encCtx) == 0 {
		return "{}"
	}
	b, err := json.Marshal(encCtx)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func cacheKey(keyID string, encCtx map[string]string) string {
	return keyID + "|" + canonicalContext(encCtx)
}
