// Package crypto seals data source credentials so they can be stored in
// configuration files.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SealedPrefix marks a configuration value produced by Seal.
const SealedPrefix = "enc:"

var (
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid secret key: must not be empty")
	// ErrOpenFailed is returned for malformed ciphertext or a wrong key.
	ErrOpenFailed = errors.New("cannot open sealed value")
)

// SecretBox seals and opens values with AES-256-GCM.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox accepts either a base64 encoded 32-byte key
// (openssl rand -base64 32) or a passphrase, which is hashed to 32 bytes.
func NewSecretBox(key string) (*SecretBox, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 32 {
		sum := sha256.Sum256([]byte(key))
		raw = sum[:]
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal returns "enc:" + base64(nonce || ciphertext).
func (b *SecretBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
func (b *SecretBox) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, SealedPrefix)
	if !ok {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", ErrOpenFailed)
	}
	n := b.aead.NonceSize()
	if len(data) < n+b.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrOpenFailed)
	}
	plain, err := b.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrOpenFailed)
	}
	return string(plain), nil
}

// OpenAll opens every sealed string in m, descending into nested maps and
// slices. m is modified in place.
func (b *SecretBox) OpenAll(m map[string]any) error {
	for k, v := range m {
		opened, err := b.open(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		m[k] = opened
	}
	return nil
}

func (b *SecretBox) open(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return b.Open(t)
	case map[string]any:
		return t, b.OpenAll(t)
	case []any:
		for i := range t {
			opened, err := b.open(t[i])
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			t[i] = opened
		}
		return t, nil
	default:
		return v, nil
	}
}

// HasSealed reports whether any string in m carries SealedPrefix.
func HasSealed(m map[string]any) bool {
	for _, v := range m {
		if hasSealed(v) {
			return true
		}
	}
	return false
}

func hasSealed(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.HasPrefix(t, SealedPrefix)
	case map[string]any:
		return HasSealed(t)
	case []any:
		for _, e := range t {
			if hasSealed(e) {
				return true
			}
		}
	}
	return false
}
