// Package crypto seals data source credentials kept in semantic model files.
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

// SealedPrefix marks a config value as sealed.
const SealedPrefix = "enc:"

var (
	ErrInvalidKey   = errors.New("invalid credentials key: must not be empty")
	ErrUnsealFailed = errors.New("unseal failed: invalid value or wrong key")
)

// Sealer encrypts config values with AES-256-GCM. Sealed values read
// "enc:" + base64(nonce || ciphertext || tag).
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a sealer. A base64 key of exactly 32 bytes (openssl rand
// -base64 32) is used as is; anything else is treated as a passphrase and
// hashed with SHA-256.
func NewSealer(key string) (*Sealer, error) {
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
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal returns the sealed form of plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open returns the plaintext of a sealed value. Values without the prefix
// are returned unchanged.
func (s *Sealer) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, SealedPrefix)
	if !ok {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrUnsealFailed)
	}
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize+s.gcm.Overhead() {
		return "", fmt.Errorf("%w: value too short", ErrUnsealFailed)
	}

	plaintext, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrUnsealFailed)
	}
	return string(plaintext), nil
}

// OpenConfig unseals every sealed string in an engine config, nested maps
// included, in place. The error names the offending key.
func (s *Sealer) OpenConfig(cfg map[string]any) error {
	for k, v := range cfg {
		switch val := v.(type) {
		case string:
			opened, err := s.Open(val)
			if err != nil {
				return fmt.Errorf("config %q: %w", k, err)
			}
			cfg[k] = opened
		case map[string]any:
			if err := s.OpenConfig(val); err != nil {
				return fmt.Errorf("config %q: %w", k, err)
			}
		}
	}
	return nil
}

// HasSealed reports whether cfg holds any sealed string.
func HasSealed(cfg map[string]any) bool {
	for _, v := range cfg {
		switch val := v.(type) {
		case string:
			if strings.HasPrefix(val, SealedPrefix) {
				return true
			}
		case map[string]any:
			if HasSealed(val) {
				return true
			}
		}
	}
	return false
}
