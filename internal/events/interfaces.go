package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// Repository defines persistence operations for canonical events and the
// per-shop destination configuration reads the normalizer needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIgnoreDuplicate(ctx context.Context, event *models.InternalEvent) (bool, error)
	FindByIdentity(ctx context.Context, shopDomain, eventID string, name enums.EventName) (*models.InternalEvent, error)
	EnabledDestinations(ctx context.Context, shopDomain string, environment enums.Environment) ([]enums.Destination, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobEnqueuer inserts pending dispatch jobs inside the ingestion transaction.
// Implemented by the dispatch repository.
type JobEnqueuer interface {
	EnqueuePending(ctx context.Context, tx *gorm.DB, jobs []models.DispatchJob) error
}
