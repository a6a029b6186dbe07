// Package keys obtains, caches and unwraps envelope data keys through an
// external key management service.
//
// # Keyring
//
// The Keyring is the only entry point used by the rest of the system:
//
//	ring := keys.NewKeyring(service, keys.DefaultConfig(), logger)
//	dk, err := ring.GetDataKey(ctx, "audit-key", map[string]string{"purpose": "audit"})
//	defer envelope.Zero(dk.Plaintext)
//
// GetDataKey caches plaintext data keys for one hour by default, keyed by the
// key id and the canonical form of the encryption context. A cache hit
// returns the cached plaintext with an empty Wrapped slice: the caller is
// expected to still hold the wrapped key returned by the miss that populated
// the entry. Callers that cannot guarantee that should use NewDataKey.
//
// DecryptDataKey is never cached because wrapped keys are per-envelope.
// RotateKey generates a replacement key and drops every cached entry.
//
// # Key material
//
// Every plaintext slice handed out is a private copy. Callers zero it with
// envelope.Zero once the cipher operation completes.
package keys
