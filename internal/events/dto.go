package events

import (
	"time"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// RawItem is one unparsed line item as delivered by a webhook or pixel payload.
type RawItem struct {
	ItemID   string `json:"item_id" validate:"required,max=128"`
	Name     string `json:"name" validate:"max=256"`
	Quantity int    `json:"quantity" validate:"min=1"`
	Price    string `json:"price"`
}

// RawConsent is the consent evidence attached to an incoming event before the
// trust level has been assigned by the transport layer.
type RawConsent struct {
	Marketing *bool `json:"marketing"`
	Analytics *bool `json:"analytics"`
}

// RawEvent is the transport-independent input to normalization. Handlers fill
// it from their own payload shape; Trust reflects how verifiable the delivery
// channel was (webhooks are trusted, pixel requests depend on the token check).
type RawEvent struct {
	Source     enums.EventSource `validate:"required"`
	ShopDomain string            `validate:"required,hostname,max=255"`
	EventName  string            `validate:"required"`

	// OrderID is required for order-scoped events and ignored otherwise.
	OrderID string `validate:"omitempty,max=64"`
	// ClientEventID is the caller-supplied id for non-order events.
	ClientEventID string `validate:"omitempty,max=64"`

	OccurredAt    time.Time `validate:"required"`
	Currency      string    `validate:"omitempty,len=3,alpha"`
	Value         string
	TransactionID string `validate:"omitempty,max=128"`
	Items         []RawItem

	Consent RawConsent
	Trust   enums.TrustLevel

	IP          string
	UserAgent   string
	Environment enums.Environment
}

// Result reports what one ingestion call did. Duplicate arrivals surface the
// existing event with Created=false and no enqueued destinations.
type Result struct {
	Event        *models.InternalEvent
	Created      bool
	Destinations []enums.Destination
}
