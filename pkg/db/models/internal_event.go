package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// InternalEvent is the canonical, deduplicated representation of a business
// event, independent of whether the webhook or the pixel delivered it first.
// Identity is (shop_domain, event_id, event_name); rows are immutable after
// creation except for the retention purge.
type InternalEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ShopDomain string          `gorm:"column:shop_domain;not null;uniqueIndex:ux_internal_events_identity,priority:1"`
	EventID    string          `gorm:"column:event_id;not null;uniqueIndex:ux_internal_events_identity,priority:2"`
	EventName  enums.EventName `gorm:"column:event_name;not null;uniqueIndex:ux_internal_events_identity,priority:3"`

	Source      enums.EventSource `gorm:"column:source;not null"`
	Environment enums.Environment `gorm:"column:environment;not null;default:live"`
	OccurredAt  time.Time         `gorm:"column:occurred_at;not null"`

	Currency      string          `gorm:"column:currency;size:3"`
	Value         decimal.Decimal `gorm:"column:value;type:numeric(18,6)"`
	TransactionID *string         `gorm:"column:transaction_id"`
	Items         json.RawMessage `gorm:"column:items;type:jsonb"`

	ConsentMarketing *bool            `gorm:"column:consent_marketing"`
	ConsentAnalytics *bool            `gorm:"column:consent_analytics"`
	ConsentTrust     enums.TrustLevel `gorm:"column:consent_trust;not null;default:untrusted"`

	// AnonymizedIP and UserAgentHash are pre-hashed before they reach the
	// model; raw values are never persisted.
	AnonymizedIP  *string `gorm:"column:anonymized_ip"`
	UserAgentHash *string `gorm:"column:user_agent_hash"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (InternalEvent) TableName() string {
	return "internal_events"
}

// EventItem is the normalized line-item shape serialized into Items.
type EventItem struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}
