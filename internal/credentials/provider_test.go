package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/security"
)

func setupCredentialsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS destination_configs (
  id TEXT PRIMARY KEY,
  shop_domain TEXT NOT NULL,
  destination TEXT NOT NULL,
  environment TEXT NOT NULL DEFAULT 'live',
  enabled INTEGER NOT NULL DEFAULT 1,
  credentials_ciphertext BLOB NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT ux_destination_configs_identity UNIQUE (shop_domain, destination, environment)
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func testCipher(t *testing.T) *security.Cipher {
	t.Helper()
	keys, err := security.NewKeyService(config.SecurityConfig{
		MasterKey: base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		KeyInfo:   "trackbeam/credentials/v1",
	})
	require.NoError(t, err)
	cipher, err := security.NewCipher(keys)
	require.NoError(t, err)
	return cipher
}

func seedConfig(t *testing.T, db *gorm.DB, cipher *security.Cipher, key Key, creds Credentials, enabled bool) {
	t.Helper()
	ciphertext, err := Seal(cipher, key, creds)
	require.NoError(t, err)
	cfg := models.DestinationConfig{
		ID:                    uuid.New(),
		ShopDomain:            key.ShopDomain,
		Destination:           key.Destination,
		Environment:           key.Environment,
		Enabled:               enabled,
		CredentialsCiphertext: ciphertext,
	}
	require.NoError(t, db.Create(&cfg).Error)
}

func TestResolveRoundTrip(t *testing.T) {
	db := setupCredentialsTestDB(t)
	cipher := testCipher(t)
	provider, err := NewProvider(db, cipher)
	require.NoError(t, err)

	key := Key{ShopDomain: "shop.myshopify.com", Destination: enums.DestinationMeta, Environment: enums.EnvironmentLive}
	seedConfig(t, db, cipher, key, Credentials{
		Destination: enums.DestinationMeta,
		Meta:        &MetaCredentials{PixelID: "12345", AccessToken: "tok_live"},
	}, true)

	creds, err := provider.Resolve(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, creds.Meta)
	assert.Equal(t, "12345", creds.Meta.PixelID)
	assert.Equal(t, "tok_live", creds.Meta.AccessToken)
	assert.Nil(t, creds.GA4)
	assert.Nil(t, creds.TikTok)
}

func TestResolveNotConfigured(t *testing.T) {
	db := setupCredentialsTestDB(t)
	provider, err := NewProvider(db, testCipher(t))
	require.NoError(t, err)

	_, err = provider.Resolve(context.Background(), Key{
		ShopDomain: "shop.myshopify.com", Destination: enums.DestinationGA4, Environment: enums.EnvironmentLive,
	})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestResolveDisabledConfig(t *testing.T) {
	db := setupCredentialsTestDB(t)
	cipher := testCipher(t)
	provider, err := NewProvider(db, cipher)
	require.NoError(t, err)

	key := Key{ShopDomain: "shop.myshopify.com", Destination: enums.DestinationGA4, Environment: enums.EnvironmentLive}
	seedConfig(t, db, cipher, key, Credentials{
		Destination: enums.DestinationGA4,
		GA4:         &GA4Credentials{MeasurementID: "G-1", APISecret: "s"},
	}, false)

	_, err = provider.Resolve(context.Background(), key)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestResolveRejectsTamperedCiphertext(t *testing.T) {
	db := setupCredentialsTestDB(t)
	cipher := testCipher(t)
	provider, err := NewProvider(db, cipher)
	require.NoError(t, err)

	key := Key{ShopDomain: "shop.myshopify.com", Destination: enums.DestinationTikTok, Environment: enums.EnvironmentLive}
	seedConfig(t, db, cipher, key, Credentials{
		Destination: enums.DestinationTikTok,
		TikTok:      &TikTokCredentials{PixelCode: "px", AccessToken: "tok"},
	}, true)

	require.NoError(t, db.Model(&models.DestinationConfig{}).
		Where("shop_domain = ?", key.ShopDomain).
		Update("credentials_ciphertext", []byte("corrupted")).Error)

	_, err = provider.Resolve(context.Background(), key)
	assert.True(t, errors.Is(err, ErrUndecryptable))
}

func TestResolveEnvironmentIsolation(t *testing.T) {
	db := setupCredentialsTestDB(t)
	cipher := testCipher(t)
	provider, err := NewProvider(db, cipher)
	require.NoError(t, err)

	liveKey := Key{ShopDomain: "shop.myshopify.com", Destination: enums.DestinationMeta, Environment: enums.EnvironmentLive}
	seedConfig(t, db, cipher, liveKey, Credentials{
		Destination: enums.DestinationMeta,
		Meta:        &MetaCredentials{PixelID: "12345", AccessToken: "tok_live"},
	}, true)

	testKey := liveKey
	testKey.Environment = enums.EnvironmentTest
	_, err = provider.Resolve(context.Background(), testKey)
	assert.True(t, errors.Is(err, ErrNotConfigured), "test events must never see live credentials")
}

func TestResolveMany(t *testing.T) {
	db := setupCredentialsTestDB(t)
	cipher := testCipher(t)
	provider, err := NewProvider(db, cipher)
	require.NoError(t, err)

	metaKey := Key{ShopDomain: "shop.myshopify.com", Destination: enums.DestinationMeta, Environment: enums.EnvironmentLive}
	seedConfig(t, db, cipher, metaKey, Credentials{
		Destination: enums.DestinationMeta,
		Meta:        &MetaCredentials{PixelID: "12345", AccessToken: "tok"},
	}, true)

	missingKey := Key{ShopDomain: "shop.myshopify.com", Destination: enums.DestinationGA4, Environment: enums.EnvironmentLive}

	resolutions := provider.ResolveMany(context.Background(), []Key{metaKey, missingKey, metaKey})
	require.Len(t, resolutions, 2)
	assert.NoError(t, resolutions[metaKey].Err)
	assert.True(t, errors.Is(resolutions[missingKey].Err, ErrNotConfigured))
}

func TestCredentialsValidate(t *testing.T) {
	valid := Credentials{Destination: enums.DestinationGA4, GA4: &GA4Credentials{MeasurementID: "G-1", APISecret: "s"}}
	assert.NoError(t, valid.Validate())

	missing := Credentials{Destination: enums.DestinationGA4}
	assert.Error(t, missing.Validate())

	incomplete := Credentials{Destination: enums.DestinationMeta, Meta: &MetaCredentials{PixelID: "p"}}
	assert.Error(t, incomplete.Validate())
}
