package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Segment sizes of the envelope wire format.
const (
	WrappedKeySize = 512
	IVSize         = 16
	TagSize        = 16
	KeySize        = 32

	ivOffset         = WrappedKeySize
	tagOffset        = ivOffset + IVSize
	ciphertextOffset = tagOffset + TagSize

	// MinSize is the smallest well-formed envelope (empty plaintext).
	MinSize = ciphertextOffset
)

// randReader is the IV source.
var randReader io.Reader = rand.Reader

// Seal encrypts plaintext under key and returns an envelope carrying
// wrappedKey, a fresh IV, the authentication tag and the ciphertext.
func Seal(plaintext, key, wrappedKey []byte) ([]byte, error) {
	if len(wrappedKey) != WrappedKeySize {
		return nil, NewFormatError(len(wrappedKey), fmt.Sprintf("wrapped key must be %d bytes", WrappedKeySize))
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, ciphertextOffset, ciphertextOffset+len(plaintext)+TagSize)
	copy(out[:WrappedKeySize], wrappedKey)
	iv := out[ivOffset:tagOffset]
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	// GCM appends the tag after the ciphertext; move it into its fixed slot.
	sealed := aead.Seal(nil, iv, plaintext, nil)
	ctLen := len(sealed) - TagSize
	copy(out[tagOffset:ciphertextOffset], sealed[ctLen:])
	out = append(out, sealed[:ctLen]...)
	return out, nil
}

// Open verifies and decrypts an envelope produced by Seal.
func Open(envelope, key []byte) ([]byte, error) {
	if len(envelope) < MinSize {
		return nil, NewFormatError(len(envelope), fmt.Sprintf("envelope shorter than %d bytes", MinSize))
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	iv := envelope[ivOffset:tagOffset]
	tag := envelope[tagOffset:ciphertextOffset]
	ciphertext := envelope[ciphertextOffset:]

	buf := make([]byte, 0, len(ciphertext)+TagSize)
	buf = append(buf, ciphertext...)
	buf = append(buf, tag...)

	plaintext, err := aead.Open(nil, iv, buf, nil)
	if err != nil {
		return nil, &AuthenticationError{Cause: err}
	}
	return plaintext, nil
}

// WrappedKey returns a copy of the wrapped data key stored in envelope.
func WrappedKey(envelope []byte) ([]byte, error) {
	if len(envelope) < MinSize {
		return nil, NewFormatError(len(envelope), fmt.Sprintf("envelope shorter than %d bytes", MinSize))
	}
	out := make([]byte, WrappedKeySize)
	copy(out, envelope[:WrappedKeySize])
	return out, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return aead, nil
}
