package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// DispatchJob is one pending or attempted delivery of one InternalEvent to
// one destination. At most one row exists per (internal_event_id,
// destination); only the dispatch worker mutates rows after creation.
type DispatchJob struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	InternalEventID uuid.UUID         `gorm:"column:internal_event_id;type:uuid;not null;uniqueIndex:ux_dispatch_jobs_event_destination,priority:1"`
	Destination     enums.Destination `gorm:"column:destination;not null;uniqueIndex:ux_dispatch_jobs_event_destination,priority:2"`

	// ShopDomain, EventID and Environment are denormalized from the event so
	// the worker can build coordination keys and resolve credentials without
	// a join per job.
	ShopDomain  string            `gorm:"column:shop_domain;not null;index:ix_dispatch_jobs_shop"`
	EventID     string            `gorm:"column:event_id;not null"`
	Environment enums.Environment `gorm:"column:environment;not null;default:live"`

	Status           enums.DispatchStatus `gorm:"column:status;not null;default:pending;index:ix_dispatch_jobs_due,priority:1"`
	Attempts         int                  `gorm:"column:attempts;not null;default:0"`
	NextRetryAt      *time.Time           `gorm:"column:next_retry_at;index:ix_dispatch_jobs_due,priority:2"`
	ClaimedAt        *time.Time           `gorm:"column:claimed_at"`
	LastError        *string              `gorm:"column:last_error"`
	LastErrorKind    *enums.ErrorKind     `gorm:"column:last_error_kind"`
	LastResponseCode *int                 `gorm:"column:last_response_code"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (DispatchJob) TableName() string {
	return "dispatch_jobs"
}
