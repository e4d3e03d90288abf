package security

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/trackbeam/trackbeam-backend/pkg/config"
)

const derivedKeyLen = 32

// KeyService derives the credential encryption key once at construction.
// Consumers receive an instance through dependency injection.
type KeyService struct {
	key []byte
}

// NewKeyService expands the configured master key material into an AES-256
// key via HKDF-SHA256.
func NewKeyService(cfg config.SecurityConfig) (*KeyService, error) {
	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("credential master key is required")
	}
	secret, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("master key material too short: %d bytes", len(secret))
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(cfg.KeyInfo))
	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving credential key: %w", err)
	}
	return &KeyService{key: key}, nil
}

// Key returns the derived key. Callers must not mutate the slice.
func (s *KeyService) Key() []byte {
	return s.key
}
