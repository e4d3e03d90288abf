package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrCiphertextInvalid signals a truncated or tampered credential bundle.
var ErrCiphertextInvalid = errors.New("ciphertext invalid")

// Cipher seals and opens credential bundles with AES-256-GCM. The nonce is
// prepended to each ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from the key service's derived key.
func NewCipher(keys *KeyService) (*Cipher, error) {
	if keys == nil {
		return nil, errors.New("key service is required")
	}
	block, err := aes.NewCipher(keys.Key())
	if err != nil {
		return nil, fmt.Errorf("initializing aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("initializing gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext, binding it to the additional data (the shop and
// platform identity, so a bundle cannot be replayed for another shop).
func (c *Cipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open decrypts a sealed bundle produced by Seal.
func (c *Cipher) Open(ciphertext, additionalData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) <= nonceSize {
		return nil, ErrCiphertextInvalid
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCiphertextInvalid, err)
	}
	return plaintext, nil
}
