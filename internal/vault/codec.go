// Package vault encrypts device credentials at rest. The rest of the
// system never sees key material, only the Encrypt/Decrypt pair.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for key derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32 // AES-256
	saltLen      = 16
	nonceLen     = 12 // AES-GCM standard nonce size
)

// ErrCiphertextTooShort is returned when a ciphertext is shorter than
// the GCM nonce prefix.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Codec encrypts and decrypts credential strings with AES-256-GCM under
// a key derived once from a passphrase and salt via Argon2id.
type Codec struct {
	key []byte
}

// NewCodec derives the encryption key from passphrase and salt.
// The salt must be at least 16 bytes and must stay stable across
// restarts or previously stored ciphertexts become unreadable.
func NewCodec(passphrase string, salt []byte) (*Codec, error) {
	if passphrase == "" {
		return nil, errors.New("vault passphrase is empty")
	}
	if len(salt) < saltLen {
		return nil, fmt.Errorf("vault salt must be at least %d bytes, got %d", saltLen, len(salt))
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return &Codec{key: key}, nil
}

// GenerateSalt returns a cryptographically random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext+tag).
func (c *Codec) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < nonceLen {
		return "", ErrCiphertextTooShort
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, data[:nonceLen], data[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
