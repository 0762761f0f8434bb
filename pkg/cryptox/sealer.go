package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealInfo binds derived keys to their purpose, so the same master key
// material can't be replayed against another use.
const sealInfo = "stockpanel credential store v1"

var (
	ErrNoKeyMaterial      = errors.New("cryptox: no key material")
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
)

// Sealer encrypts small values (tokens, profiles) at rest with
// XChaCha20-Poly1305. Output format is [24-byte nonce][ciphertext+tag].
type Sealer struct {
	aead interface {
		NonceSize() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewSealer derives a 32-byte key from material with HKDF-SHA256.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, ErrNoKeyMaterial
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// LoadKeyMaterial reads key material from path when set, falling back to the
// value of envVar. It returns ErrNoKeyMaterial when neither is available so
// callers can decide whether sealing is optional.
func LoadKeyMaterial(path, envVar string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		return data, nil
	}

	if v := os.Getenv(envVar); v != "" {
		return []byte(v), nil
	}

	return nil, ErrNoKeyMaterial
}

// Seal encrypts plaintext with a fresh random nonce. additional is
// authenticated but not encrypted (we bind the storage key to the value).
func (s *Sealer) Seal(plaintext, additional []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, additional), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, additional []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], additional)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
