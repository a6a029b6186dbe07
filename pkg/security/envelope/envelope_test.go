package envelope

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	return key
}

func testWrapped() []byte {
	return bytes.Repeat([]byte{0xAB}, WrappedKeySize)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := testKey(t)
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"user":"alice","action":"login"}`),
		bytes.Repeat([]byte{0x00, 0xFF}, 4096),
	}

	for _, p := range payloads {
		env, err := Seal(p, key, testWrapped())
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		if len(env) != MinSize+len(p) {
			t.Errorf("len(envelope) = %d, want %d", len(env), MinSize+len(p))
		}
		got, err := Open(env, key)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("Open() = %q, want %q", got, p)
		}
	}
}

func TestSeal_Layout(t *testing.T) {
	key := testKey(t)
	wrapped := testWrapped()

	env, err := Seal([]byte("payload"), key, wrapped)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !bytes.Equal(env[:512], wrapped) {
		t.Error("wrapped key not at [0,512)")
	}
	got, err := WrappedKey(env)
	if err != nil {
		t.Fatalf("WrappedKey() error = %v", err)
	}
	if !bytes.Equal(got, wrapped) {
		t.Error("WrappedKey() did not return stored key")
	}
	if bytes.Contains(env[544:], []byte("payload")) {
		t.Error("ciphertext segment contains plaintext")
	}
}

func TestOpen_TamperDetection(t *testing.T) {
	key := testKey(t)
	env, err := Seal([]byte("sensitive details"), key, testWrapped())
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// Every bit of the tag and ciphertext segments.
	for i := tagOffset; i < len(env); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := bytes.Clone(env)
			tampered[i] ^= 1 << bit

			got, err := Open(tampered, key)
			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Fatalf("byte %d bit %d: Open() error = %v, want AuthenticationError", i, bit, err)
			}
			if got != nil {
				t.Fatalf("byte %d bit %d: Open() returned plaintext on failure", i, bit)
			}
		}
	}
}

func TestOpen_IVTamper(t *testing.T) {
	key := testKey(t)
	env, err := Seal([]byte("data"), key, testWrapped())
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	env[ivOffset] ^= 0x01

	var authErr *AuthenticationError
	if _, err := Open(env, key); !errors.As(err, &authErr) {
		t.Errorf("Open() error = %v, want AuthenticationError", err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	env, err := Seal([]byte("data"), testKey(t), testWrapped())
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	var authErr *AuthenticationError
	if _, err := Open(env, testKey(t)); !errors.As(err, &authErr) {
		t.Errorf("Open() error = %v, want AuthenticationError", err)
	}
}

func TestOpen_FormatRejection(t *testing.T) {
	key := testKey(t)
	for _, n := range []int{0, 1, 16, 511, 512, 528, 543} {
		_, err := Open(make([]byte, n), key)
		var fmtErr *FormatError
		if !errors.As(err, &fmtErr) {
			t.Errorf("Open(len=%d) error = %v, want FormatError", n, err)
			continue
		}
		if fmtErr.Length != n {
			t.Errorf("FormatError.Length = %d, want %d", fmtErr.Length, n)
		}
	}

	if _, err := WrappedKey(make([]byte, 100)); err == nil {
		t.Error("WrappedKey() on short input should fail")
	}
}

func TestSeal_InvalidInputs(t *testing.T) {
	if _, err := Seal([]byte("x"), make([]byte, 16), testWrapped()); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Seal(short key) error = %v, want ErrInvalidKey", err)
	}

	var fmtErr *FormatError
	if _, err := Seal([]byte("x"), testKey(t), make([]byte, 256)); !errors.As(err, &fmtErr) {
		t.Errorf("Seal(short wrapped key) error = %v, want FormatError", err)
	}

	if _, err := Open(make([]byte, MinSize), make([]byte, 8)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Open(short key) error = %v, want ErrInvalidKey", err)
	}
}

func TestSeal_UniqueIV(t *testing.T) {
	key := testKey(t)
	a, _ := Seal([]byte("same"), key, testWrapped())
	b, _ := Seal([]byte("same"), key, testWrapped())
	if bytes.Equal(a[ivOffset:tagOffset], b[ivOffset:tagOffset]) {
		t.Error("two seals produced the same IV")
	}
}

func TestSeal_RandFailure(t *testing.T) {
	orig := randReader
	randReader = bytes.NewReader(nil)
	defer func() { randReader = orig }()

	if _, err := Seal([]byte("x"), testKey(t), testWrapped()); err == nil {
		t.Error("Seal() should fail when IV generation fails")
	}
}

func TestZero(t *testing.T) {
	key := testKey(t)
	Zero(key)
	if !bytes.Equal(key, make([]byte, KeySize)) {
		t.Error("Zero() left non-zero bytes")
	}
}
