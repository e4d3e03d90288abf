package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/pagination"
)

// JobFailure is the failure detail persisted on a job after a send attempt.
type JobFailure struct {
	Kind         enums.ErrorKind
	Message      string
	ResponseCode *int
}

// StatusCount is one row of the aggregate operator view.
type StatusCount struct {
	Status enums.DispatchStatus `json:"status"`
	Count  int64                `json:"count"`
}

// Repository defines persistence operations for dispatch jobs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	// EnqueuePending inserts jobs with insert-ignore semantics on
	// (internal_event_id, destination). Called from the ingestion transaction.
	EnqueuePending(ctx context.Context, tx *gorm.DB, jobs []models.DispatchJob) error

	// ClaimDue flips due pending jobs to processing and returns them, oldest
	// due first. Rows are locked so concurrent workers skip each other's claims.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.DispatchJob, error)

	// LoadEvents fetches the canonical events behind a batch of claimed jobs
	// in one query.
	LoadEvents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InternalEvent, error)

	// ReclaimStale returns processing jobs claimed before the cutoff to
	// pending so crashed workers cannot strand them.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)

	MarkSent(ctx context.Context, id uuid.UUID, attempts int, responseCode *int) error
	Reschedule(ctx context.Context, id uuid.UUID, at time.Time, attempts int, failure *JobFailure) error
	MarkDeadLetter(ctx context.Context, id uuid.UUID, attempts int, failure JobFailure) error

	// ListDeadLetters pages through a shop's dead-lettered jobs, newest
	// failure first. A nil cursor starts from the top.
	ListDeadLetters(ctx context.Context, shopDomain string, limit int, cursor *pagination.Cursor) ([]models.DispatchJob, error)
	Rearm(ctx context.Context, id uuid.UUID) (bool, error)
	RearmAll(ctx context.Context, shopDomain string) (int64, error)
	StatusCounts(ctx context.Context, shopDomain string) ([]StatusCount, error)

	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
