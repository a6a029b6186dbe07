package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidKey  = errors.New("invalid API key")
	ErrDisabledKey = errors.New("API key disabled")
)

// Client is a caller identified by an API key.
type Client struct {
	Name    string
	Enabled bool
}

// APIKey pairs a key with the client it identifies.
type APIKey struct {
	Key    string
	Client Client
}

type entry struct {
	digest [sha256.Size]byte
	client Client
}

// Validator checks presented keys against the configured set.
type Validator struct {
	mu      sync.RWMutex
	entries []entry
}

// NewValidator creates a Validator. Empty or duplicate keys are rejected.
func NewValidator(keys []APIKey) (*Validator, error) {
	v := &Validator{}
	seen := make(map[[sha256.Size]byte]bool, len(keys))
	for i, k := range keys {
		if k.Key == "" {
			return nil, fmt.Errorf("api key %d (%s): key is empty", i, k.Client.Name)
		}
		d := sha256.Sum256([]byte(k.Key))
		if seen[d] {
			return nil, fmt.Errorf("api key %d (%s): duplicate key", i, k.Client.Name)
		}
		seen[d] = true
		v.entries = append(v.entries, entry{digest: d, client: k.Client})
	}
	return v, nil
}

// Validate returns the client owning key. Every entry is compared so the
// time taken does not depend on which key matched.
func (v *Validator) Validate(key string) (*Client, error) {
	d := sha256.Sum256([]byte(key))

	v.mu.RLock()
	defer v.mu.RUnlock()
	var found *Client
	for i := range v.entries {
		if subtle.ConstantTimeCompare(d[:], v.entries[i].digest[:]) == 1 {
			c := v.entries[i].client
			found = &c
		}
	}
	if found == nil {
		return nil, ErrInvalidKey
	}
	if !found.Enabled {
		return nil, ErrDisabledKey
	}
	return found, nil
}

// Len returns the number of configured keys.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}
