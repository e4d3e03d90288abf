package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// DestinationConfig holds one shop's integration with one platform in one
// environment. CredentialsCiphertext is an AES-256-GCM sealed JSON bundle;
// plaintext secrets never touch the database.
type DestinationConfig struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ShopDomain  string            `gorm:"column:shop_domain;not null;uniqueIndex:ux_destination_configs_identity,priority:1"`
	Destination enums.Destination `gorm:"column:destination;not null;uniqueIndex:ux_destination_configs_identity,priority:2"`
	Environment enums.Environment `gorm:"column:environment;not null;default:live;uniqueIndex:ux_destination_configs_identity,priority:3"`

	Enabled               bool   `gorm:"column:enabled;not null;default:true"`
	CredentialsCiphertext []byte `gorm:"column:credentials_ciphertext;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DestinationConfig) TableName() string {
	return "destination_configs"
}

// PixelToken is the per-shop ingestion key the web pixel attaches to its
// requests. A rotated token stays valid for a grace window; RotatedAt marks
// when the previous value was replaced.
type PixelToken struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopDomain string    `gorm:"column:shop_domain;not null;uniqueIndex:ux_pixel_tokens_shop"`

	Token         string     `gorm:"column:token;not null"`
	PreviousToken *string    `gorm:"column:previous_token"`
	RotatedAt     *time.Time `gorm:"column:rotated_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PixelToken) TableName() string {
	return "pixel_tokens"
}
