// Package crypto seals sensitive patient fields (national id) at rest with
// AES-256-GCM and derives keyed lookup hashes for them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// KeyFromHex decodes a 64-char hex string into a 32-byte AES-256 key.
func KeyFromHex(hexKey string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(b) != 32 {
		return nil, ErrInvalidKey
	}
	return b, nil
}

// FieldCipher encrypts single column values. The zero value is not usable;
// build one with NewFieldCipher.
type FieldCipher struct {
	aead cipher.AEAD
	mac  []byte
}

func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	// The lookup hash key is derived so one configured secret serves both.
	m := hmac.New(sha256.New, key)
	m.Write([]byte("tabib/field-hash"))

	return &FieldCipher{aead: gcm, mac: m.Sum(nil)}, nil
}

// NewFieldCipherFromHex is NewFieldCipher for a hex-encoded key.
func NewFieldCipherFromHex(hexKey string) (*FieldCipher, error) {
	key, err := KeyFromHex(hexKey)
	if err != nil {
		return nil, err
	}
	return NewFieldCipher(key)
}

// Seal encrypts plaintext with a random nonce and returns base64(nonce || ciphertext).
// The column name is bound as associated data so a value cannot be moved
// between columns.
func (f *FieldCipher) Seal(column, plaintext string) (string, error) {
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := f.aead.Seal(nonce, nonce, []byte(plaintext), []byte(column))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (f *FieldCipher) Open(column, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	ns := f.aead.NonceSize()
	if len(data) < ns {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := f.aead.Open(nil, data[:ns], data[ns:], []byte(column))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Hash returns a keyed HMAC-SHA256 hex digest of value. Deterministic, so it
// backs uniqueness and equality lookups without storing the plaintext.
func (f *FieldCipher) Hash(value string) string {
	m := hmac.New(sha256.New, f.mac)
	m.Write([]byte(strings.TrimSpace(value)))
	return hex.EncodeToString(m.Sum(nil))
}
