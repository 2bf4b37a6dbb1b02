package pii

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrDisabled   = errors.New("pii sealing is not configured")
	ErrMalformed  = errors.New("sealed value is malformed")
	ErrInvalidKey = errors.New("pii key must be 32 bytes, base64 encoded")
)

// Sealer encrypts contact details before they are persisted.
// Sealed values are base64(nonce || ciphertext) using XChaCha20-Poly1305.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a base64 key. An empty key yields a disabled Sealer.
func NewSealer(b64Key string) (*Sealer, error) {
	if b64Key == "" {
		return &Sealer{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Enabled reports whether a key was configured.
func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

// Seal encrypts plaintext. Empty input seals to an empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if !s.Enabled() {
		return "", ErrDisabled
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !s.Enabled() {
		return "", ErrDisabled
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrMalformed
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plain), nil
}
