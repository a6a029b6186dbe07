package recorder

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/security/envelope"
	"bastion-hq/aegis/pkg/security/keys"
)

// Sealed sub-object names. Each is encrypted under its own encryption
// context so the two envelopes can be opened independently.
const (
	FieldDetails         = "details"
	FieldSecurityContext = "security_context"
)

// DataKeys is the subset of keys.Keyring the sealer needs.
type DataKeys interface {
	GetDataKey(ctx context.Context, keyID string, encCtx map[string]string) (*keys.DataKey, error)
	NewDataKey(ctx context.Context, keyID string, encCtx map[string]string) (*keys.DataKey, error)
	DecryptDataKey(ctx context.Context, wrapped []byte, encCtx map[string]string) ([]byte, error)
}

// EncryptionContext returns the key service context for a sealed field.
func EncryptionContext(field string) map[string]string {
	return map[string]string{
		"purpose": "audit",
		"field":   field,
	}
}

// sealKey remembers the wrapped form of the data key currently cached for a
// field. A cache hit returns no wrapped key, so the sealer must hold it.
type sealKey struct {
	wrapped     []byte
	fingerprint [sha256.Size]byte
}

// Sealer encrypts and decrypts the sensitive sub-objects of audit events.
type Sealer struct {
	keys   DataKeys
	keyID  string
	logger *slog.Logger

	mu      sync.Mutex
	current map[string]sealKey
}

// NewSealer creates a Sealer that wraps data keys under the master key keyID.
func NewSealer(dataKeys DataKeys, keyID string, logger *slog.Logger) *Sealer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sealer{
		keys:    dataKeys,
		keyID:   keyID,
		logger:  logger.With("component", "audit.sealer"),
		current: make(map[string]sealKey),
	}
}

// SealEvent replaces e.Details and e.SecurityContext with envelopes. Absent
// sub-objects stay absent.
func (s *Sealer) SealEvent(ctx context.Context, e *audit.Event) error {
	if e.Details != nil {
		env, err := s.Seal(ctx, FieldDetails, e.Details)
		if err != nil {
			return audit.NewSealError(e.ID, FieldDetails, err)
		}
		e.EncryptedDetails = env
		e.Details = nil
	}
	if e.SecurityContext != nil {
		env, err := s.Seal(ctx, FieldSecurityContext, e.SecurityContext)
		if err != nil {
			return audit.NewSealError(e.ID, FieldSecurityContext, err)
		}
		e.EncryptedSecurityContext = env
		e.SecurityContext = nil
	}
	return nil
}

// Seal serializes v as JSON and encrypts it into an envelope.
func (s *Sealer) Seal(ctx context.Context, field string, v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", field, err)
	}
	defer envelope.Zero(plaintext)

	encCtx := EncryptionContext(field)
	dk, err := s.keys.GetDataKey(ctx, s.keyID, encCtx)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(dk.Plaintext)

	wrapped, ok := s.wrappedFor(field, dk)
	if !ok {
		// The cached key was created by another holder of the keyring, or
		// this sealer never saw its wrapped form. Mint one it can carry.
		envelope.Zero(dk.Plaintext)
		dk, err = s.keys.NewDataKey(ctx, s.keyID, encCtx)
		if err != nil {
			return nil, err
		}
		defer envelope.Zero(dk.Plaintext)
		s.remember(field, dk)
		wrapped = dk.Wrapped
	}

	return envelope.Seal(plaintext, dk.Plaintext, wrapped)
}

// wrappedFor returns the wrapped key matching dk. A fresh key from the
// service carries its own wrapped form and replaces the remembered one.
func (s *Sealer) wrappedFor(field string, dk *keys.DataKey) ([]byte, bool) {
	if len(dk.Wrapped) > 0 {
		s.remember(field, dk)
		return dk.Wrapped, true
	}

	s.mu.Lock()
	sk, ok := s.current[field]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	fp := sha256.Sum256(dk.Plaintext)
	if subtle.ConstantTimeCompare(fp[:], sk.fingerprint[:]) != 1 {
		return nil, false
	}
	return sk.wrapped, true
}

func (s *Sealer) remember(field string, dk *keys.DataKey) {
	sk := sealKey{
		wrapped:     append([]byte(nil), dk.Wrapped...),
		fingerprint: sha256.Sum256(dk.Plaintext),
	}
	s.mu.Lock()
	s.current[field] = sk
	s.mu.Unlock()
}

// Open decrypts an envelope produced by Seal for field into v.
func (s *Sealer) Open(ctx context.Context, field string, env []byte, v any) error {
	return s.open(ctx, field, env, v, s.unwrap)
}

func (s *Sealer) unwrap(ctx context.Context, field string, wrapped []byte) ([]byte, error) {
	return s.keys.DecryptDataKey(ctx, wrapped, EncryptionContext(field))
}

type unwrapFunc func(ctx context.Context, field string, wrapped []byte) ([]byte, error)

func (s *Sealer) open(ctx context.Context, field string, env []byte, v any, unwrap unwrapFunc) error {
	wrapped, err := envelope.WrappedKey(env)
	if err != nil {
		return err
	}
	key, err := unwrap(ctx, field, wrapped)
	if err != nil {
		return err
	}
	defer envelope.Zero(key)

	plaintext, err := envelope.Open(env, key)
	if err != nil {
		return err
	}
	defer envelope.Zero(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", field, err)
	}
	return nil
}

// OpenEvents decrypts the sealed sub-objects of events in place, clearing
// the envelope fields. Events sealed under the same data key share a single
// key service call.
func (s *Sealer) OpenEvents(ctx context.Context, events []*audit.Event, concurrency int) error {
	u := &unwrapper{sealer: s, keys: make(map[string][]byte)}
	defer u.zero()

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, e := range events {
		if len(e.EncryptedDetails) == 0 && len(e.EncryptedSecurityContext) == 0 {
			continue
		}
		g.Go(func() error {
			return s.openEvent(gctx, e, u.unwrap)
		})
	}
	return g.Wait()
}

func (s *Sealer) openEvent(ctx context.Context, e *audit.Event, unwrap unwrapFunc) error {
	if len(e.EncryptedDetails) > 0 {
		var details map[string]any
		if err := s.open(ctx, FieldDetails, e.EncryptedDetails, &details, unwrap); err != nil {
			return audit.NewSealError(e.ID, FieldDetails, err)
		}
		e.Details = details
		e.EncryptedDetails = nil
	}
	if len(e.EncryptedSecurityContext) > 0 {
		var sc audit.SecurityContext
		if err := s.open(ctx, FieldSecurityContext, e.EncryptedSecurityContext, &sc, unwrap); err != nil {
			return audit.NewSealError(e.ID, FieldSecurityContext, err)
		}
		e.SecurityContext = &sc
		e.EncryptedSecurityContext = nil
	}
	return nil
}

// unwrapper memoizes unwrapped data keys for the duration of one query.
type unwrapper struct {
	sealer *Sealer
	group  singleflight.Group

	mu   sync.Mutex
	keys map[string][]byte
}

var errKeyZeroed = errors.New("data key released")

func (u *unwrapper) unwrap(ctx context.Context, field string, wrapped []byte) ([]byte, error) {
	id := field + "|" + string(wrapped)

	u.mu.Lock()
	key, ok := u.keys[id]
	u.mu.Unlock()
	if !ok {
		v, err, _ := u.group.Do(id, func() (any, error) {
			u.mu.Lock()
			k, ok := u.keys[id]
			u.mu.Unlock()
			if ok {
				return k, nil
			}
			k, err := u.sealer.unwrap(ctx, field, wrapped)
			if err != nil {
				return nil, err
			}
			u.mu.Lock()
			defer u.mu.Unlock()
			if u.keys == nil {
				envelope.Zero(k)
				return nil, errKeyZeroed
			}
			u.keys[id] = k
			return k, nil
		})
		if err != nil {
			return nil, err
		}
		key = v.([]byte)
	}

	// Callers zero what they receive; hand out a copy.
	return append([]byte(nil), key...), nil
}

func (u *unwrapper) zero() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, k := range u.keys {
		envelope.Zero(k)
	}
	u.keys = nil
}
