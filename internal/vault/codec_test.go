package vault

import (
	"strings"
	"testing"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	salt := []byte("0123456789abcdef")
	c, err := NewCodec("test-passphrase", salt)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	for _, plain := range []string{"", "hunter2", "päss wörd with ütf8", strings.Repeat("x", 4096)} {
		ct, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if ct == plain && plain != "" {
			t.Errorf("ciphertext equals plaintext for %q", plain)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestCodec_NonceUniqueness(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestCodec_WrongKeyFails(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec("different-passphrase", []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	ct, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := other.Decrypt(ct); err == nil {
		t.Error("Decrypt with wrong key succeeded, want error")
	}
}

func TestCodec_RejectsBadInput(t *testing.T) {
	c := newTestCodec(t)

	if _, err := c.Decrypt("not base64 !!!"); err == nil {
		t.Error("Decrypt of invalid base64 succeeded")
	}
	if _, err := c.Decrypt("c2hvcnQ="); err == nil { // "short", under nonce length
		t.Error("Decrypt of truncated ciphertext succeeded")
	}
}

func TestNewCodec_Validation(t *testing.T) {
	if _, err := NewCodec("", []byte("0123456789abcdef")); err == nil {
		t.Error("empty passphrase accepted")
	}
	if _, err := NewCodec("pass", []byte("short")); err == nil {
		t.Error("short salt accepted")
	}
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	b, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if len(a) != saltLen {
		t.Errorf("salt length = %d, want %d", len(a), saltLen)
	}
	if string(a) == string(b) {
		t.Error("two generated salts are identical")
	}
}
