package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a dispatch job repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnqueuePending(ctx context.Context, tx *gorm.DB, jobs []models.DispatchJob) error {
	if len(jobs) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "internal_event_id"}, {Name: "destination"}},
			DoNothing: true,
		}).
		Create(&jobs).Error
}

func (r *repository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.DispatchJob, error) {
	var claimed []models.DispatchJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", enums.DispatchPending, now).
			Order("next_retry_at ASC").
			Limit(limit)
		// Postgres workers race on the same rows; sqlite in tests is
		// single-writer and rejects the clause.
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var due []models.DispatchJob
		if err := query.Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(due))
		for _, job := range due {
			ids = append(ids, job.ID)
		}
		claimTime := now.UTC()
		if err := tx.Model(&models.DispatchJob{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     enums.DispatchProcessing,
				"claimed_at": claimTime,
			}).Error; err != nil {
			return err
		}

		for i := range due {
			due[i].Status = enums.DispatchProcessing
			due[i].ClaimedAt = &claimTime
		}
		claimed = due
		return nil
	})
	return claimed, err
}

func (r *repository) LoadEvents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InternalEvent, error) {
	out := make(map[uuid.UUID]models.InternalEvent, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var events []models.InternalEvent
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, err
	}
	for _, event := range events {
		out[event.ID] = event
	}
	return out, nil
}

func (r *repository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("status = ? AND claimed_at < ?", enums.DispatchProcessing, cutoff).
		Updates(map[string]any{
			"status":        enums.DispatchPending,
			"claimed_at":    nil,
			"next_retry_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, attempts int, responseCode *int) error {
	return r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             enums.DispatchSent,
			"attempts":           attempts,
			"next_retry_at":      nil,
			"claimed_at":         nil,
			"last_error":         nil,
			"last_error_kind":    nil,
			"last_response_code": responseCode,
		}).Error
}

func (r *repository) Reschedule(ctx context.Context, id uuid.UUID, at time.Time, attempts int, failure *JobFailure) error {
	updates := map[string]any{
		"status":        enums.DispatchPending,
		"attempts":      attempts,
		"next_retry_at": at.UTC(),
		"claimed_at":    nil,
	}
	if failure != nil {
		updates["last_error"] = failure.Message
		updates["last_error_kind"] = failure.Kind
		updates["last_response_code"] = failure.ResponseCode
	}
	return r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) MarkDeadLetter(ctx context.Context, id uuid.UUID, attempts int, failure JobFailure) error {
	return r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             enums.DispatchDeadLetter,
			"attempts":           attempts,
			"next_retry_at":      nil,
			"claimed_at":         nil,
			"last_error":         failure.Message,
			"last_error_kind":    failure.Kind,
			"last_response_code": failure.ResponseCode,
		}).Error
}

func (r *repository) ListDeadLetters(ctx context.Context, shopDomain string, limit int, cursor *pagination.Cursor) ([]models.DispatchJob, error) {
	query := r.db.WithContext(ctx).
		Where("shop_domain = ? AND status = ?", shopDomain, enums.DispatchDeadLetter)
	if cursor != nil {
		query = query.Where("(updated_at, id) < (?, ?)", cursor.Timestamp, cursor.ID)
	}
	var jobs []models.DispatchJob
	err := query.
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Rearm puts one dead-letter job back into the queue with a clean slate.
func (r *repository) Rearm(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("id = ? AND status = ?", id, enums.DispatchDeadLetter).
		Updates(rearmUpdates())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) RearmAll(ctx context.Context, shopDomain string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("shop_domain = ? AND status = ?", shopDomain, enums.DispatchDeadLetter).
		Updates(rearmUpdates())
	return result.RowsAffected, result.Error
}

func rearmUpdates() map[string]any {
	return map[string]any{
		"status":             enums.DispatchPending,
		"attempts":           0,
		"next_retry_at":      time.Now().UTC(),
		"claimed_at":         nil,
		"last_error":         nil,
		"last_error_kind":    nil,
		"last_response_code": nil,
	}
}

func (r *repository) StatusCounts(ctx context.Context, shopDomain string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Select("status, COUNT(*) AS count").
		Where("shop_domain = ?", shopDomain).
		Group("status").
		Order("status ASC").
		Scan(&counts).Error
	return counts, err
}

func (r *repository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]enums.DispatchStatus{enums.DispatchSent, enums.DispatchDeadLetter}, cutoff).
		Delete(&models.DispatchJob{})
	return result.RowsAffected, result.Error
}
