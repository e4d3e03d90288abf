package events

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trackbeam/trackbeam-backend/pkg/db"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

const identityConstraint = "ux_internal_events_identity"

type repository struct {
	db *gorm.DB
}

// NewRepository builds an events repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIgnoreDuplicate inserts the event with first-writer-wins semantics.
// Returns false when a row with the same identity already exists. The conflict
// clause only absorbs violations on the identity index; a violation that still
// surfaces as a driver error is folded into the duplicate outcome so the
// caller always reaches the existing row.
func (r *repository) CreateIgnoreDuplicate(ctx context.Context, event *models.InternalEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_domain"}, {Name: "event_id"}, {Name: "event_name"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		if db.IsUniqueViolation(result.Error, identityConstraint) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindByIdentity(ctx context.Context, shopDomain, eventID string, name enums.EventName) (*models.InternalEvent, error) {
	var event models.InternalEvent
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND event_id = ? AND event_name = ?", shopDomain, eventID, name).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) EnabledDestinations(ctx context.Context, shopDomain string, environment enums.Environment) ([]enums.Destination, error) {
	var destinations []enums.Destination
	err := r.db.WithContext(ctx).
		Model(&models.DestinationConfig{}).
		Where("shop_domain = ? AND environment = ? AND enabled = ?", shopDomain, environment, true).
		Order("destination ASC").
		Pluck("destination", &destinations).Error
	if err != nil {
		return nil, err
	}
	return destinations, nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.InternalEvent{})
	return result.RowsAffected, result.Error
}
