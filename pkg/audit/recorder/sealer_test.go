package recorder

import (
	"context"
	"errors"
	"testing"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/security/envelope"
	"bastion-hq/aegis/pkg/security/keys"
	"bastion-hq/aegis/pkg/telemetry/logging"
)

func newTestSealer() (*Sealer, *keys.Keyring, *keyService) {
	service := newKeyService()
	keyring := keys.NewKeyring(service, keys.DefaultConfig(), logging.Discard())
	return NewSealer(keyring, "audit-key", logging.Discard()), keyring, service
}

func TestSealer_ReusesCachedKey(t *testing.T) {
	sealer, _, service := newTestSealer()
	ctx := context.Background()

	first, err := sealer.Seal(ctx, FieldDetails, map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	second, err := sealer.Seal(ctx, FieldDetails, map[string]any{"n": 2})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if gen, _ := service.counts(); gen != 1 {
		t.Errorf("generate calls = %d, want 1", gen)
	}
	w1, _ := envelope.WrappedKey(first)
	w2, _ := envelope.WrappedKey(second)
	if string(w1) != string(w2) {
		t.Error("cache hit should reuse the remembered wrapped key")
	}

	for _, env := range [][]byte{first, second} {
		var got map[string]any
		if err := sealer.Open(ctx, FieldDetails, env, &got); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
	}
}

func TestSealer_CacheHitWithoutWrappedKey(t *testing.T) {
	sealer, keyring, service := newTestSealer()
	ctx := context.Background()

	// Another holder of the keyring populates the cache for the same
	// context. The sealer never saw the wrapped form of that key.
	if _, err := keyring.NewDataKey(ctx, "audit-key", EncryptionContext(FieldDetails)); err != nil {
		t.Fatalf("NewDataKey() error = %v", err)
	}

	env, err := sealer.Seal(ctx, FieldDetails, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if gen, _ := service.counts(); gen != 2 {
		t.Errorf("generate calls = %d, want 2", gen)
	}

	var got map[string]any
	if err := sealer.Open(ctx, FieldDetails, env, &got); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got["k"] != "v" {
		t.Errorf("Open() = %v", got)
	}
}

func TestSealer_FieldContextsAreIndependent(t *testing.T) {
	sealer, _, _ := newTestSealer()
	ctx := context.Background()

	env, err := sealer.Seal(ctx, FieldDetails, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	var sc audit.SecurityContext
	err = sealer.Open(ctx, FieldSecurityContext, env, &sc)
	var kerr *keys.KeyServiceError
	if !errors.As(err, &kerr) {
		t.Errorf("Open() under the wrong field error = %v, want KeyServiceError", err)
	}
}

func TestSealer_OpenEventsRejectsTampering(t *testing.T) {
	sealer, _, _ := newTestSealer()
	ctx := context.Background()

	e := newEvent("evt-1")
	if err := sealer.SealEvent(ctx, e); err != nil {
		t.Fatalf("SealEvent() error = %v", err)
	}
	e.EncryptedSecurityContext[len(e.EncryptedSecurityContext)-1] ^= 0x01

	err := sealer.OpenEvents(ctx, []*audit.Event{e}, 2)
	var serr *audit.SealError
	if !errors.As(err, &serr) {
		t.Fatalf("OpenEvents() error = %v, want SealError", err)
	}
	if serr.Field != FieldSecurityContext || serr.EventID != "evt-1" {
		t.Errorf("SealError = %+v", serr)
	}
	var aerr *envelope.AuthenticationError
	if !errors.As(err, &aerr) {
		t.Errorf("cause = %v, want AuthenticationError", err)
	}
}

func TestSealer_OpenEventsRejectsShortEnvelope(t *testing.T) {
	sealer, _, _ := newTestSealer()
	e := &audit.Event{ID: "evt-1", EncryptedDetails: make([]byte, envelope.MinSize-1)}

	err := sealer.OpenEvents(context.Background(), []*audit.Event{e}, 1)
	var ferr *envelope.FormatError
	if !errors.As(err, &ferr) {
		t.Errorf("OpenEvents() error = %v, want FormatError", err)
	}
}
