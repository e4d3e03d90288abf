package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/security"
)

var (
	// ErrNotConfigured means no enabled config row exists for the key.
	ErrNotConfigured = errors.New("destination not configured")
	// ErrUndecryptable means the stored ciphertext failed authentication.
	ErrUndecryptable = errors.New("credentials undecryptable")
)

// Key identifies one credential bundle.
type Key struct {
	ShopDomain  string
	Destination enums.Destination
	Environment enums.Environment
}

func (k Key) aad() []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", k.ShopDomain, k.Destination, k.Environment))
}

// Provider resolves decrypted, typed credentials at send time. Both error
// sentinels are terminal configuration failures; anything else is a transient
// store problem and must not dead-letter the job.
type Provider interface {
	Resolve(ctx context.Context, key Key) (Credentials, error)
	ResolveMany(ctx context.Context, keys []Key) map[Key]Resolution
}

// Resolution is one ResolveMany outcome.
type Resolution struct {
	Credentials Credentials
	Err         error
}

type provider struct {
	db     *gorm.DB
	cipher *security.Cipher
}

// NewProvider builds a credential provider over the destination config store.
func NewProvider(db *gorm.DB, cipher *security.Cipher) (Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher required")
	}
	return &provider{db: db, cipher: cipher}, nil
}

func (p *provider) Resolve(ctx context.Context, key Key) (Credentials, error) {
	var cfg models.DestinationConfig
	err := p.db.WithContext(ctx).
		Where("shop_domain = ? AND destination = ? AND environment = ? AND enabled = ?",
			key.ShopDomain, key.Destination, key.Environment, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Credentials{}, ErrNotConfigured
		}
		return Credentials{}, fmt.Errorf("load destination config: %w", err)
	}
	return p.decode(key, cfg.CredentialsCiphertext)
}

func (p *provider) ResolveMany(ctx context.Context, keys []Key) map[Key]Resolution {
	out := make(map[Key]Resolution, len(keys))
	for _, key := range keys {
		if _, done := out[key]; done {
			continue
		}
		creds, err := p.Resolve(ctx, key)
		out[key] = Resolution{Credentials: creds, Err: err}
	}
	return out
}

func (p *provider) decode(key Key, ciphertext []byte) (Credentials, error) {
	plaintext, err := p.cipher.Open(ciphertext, key.aad())
	if err != nil {
		return Credentials{}, ErrUndecryptable
	}

	creds := Credentials{Destination: key.Destination}
	switch key.Destination {
	case enums.DestinationGA4:
		var ga4 GA4Credentials
		if err := json.Unmarshal(plaintext, &ga4); err != nil {
			return Credentials{}, ErrUndecryptable
		}
		creds.GA4 = &ga4
	case enums.DestinationMeta:
		var meta MetaCredentials
		if err := json.Unmarshal(plaintext, &meta); err != nil {
			return Credentials{}, ErrUndecryptable
		}
		creds.Meta = &meta
	case enums.DestinationTikTok:
		var tiktok TikTokCredentials
		if err := json.Unmarshal(plaintext, &tiktok); err != nil {
			return Credentials{}, ErrUndecryptable
		}
		creds.TikTok = &tiktok
	default:
		return Credentials{}, ErrNotConfigured
	}

	if err := creds.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s", ErrUndecryptable, err)
	}
	return creds, nil
}

// Seal encrypts a typed credential bundle for storage, binding the ciphertext
// to its (shop, destination, environment) identity.
func Seal(cipher *security.Cipher, key Key, creds Credentials) ([]byte, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	var payload any
	switch key.Destination {
	case enums.DestinationGA4:
		payload = creds.GA4
	case enums.DestinationMeta:
		payload = creds.Meta
	case enums.DestinationTikTok:
		payload = creds.TikTok
	default:
		return nil, fmt.Errorf("unknown destination %q", key.Destination)
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return cipher.Seal(plaintext, key.aad())
}
