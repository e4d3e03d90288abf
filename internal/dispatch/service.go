package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	pkgerrors "github.com/trackbeam/trackbeam-backend/pkg/errors"
	"github.com/trackbeam/trackbeam-backend/pkg/pagination"
)

// DeadLetterItem is the operator-facing read model of one dead-lettered job.
type DeadLetterItem struct {
	JobID            uuid.UUID         `json:"job_id"`
	Destination      enums.Destination `json:"destination"`
	EventID          string            `json:"event_id"`
	Environment      enums.Environment `json:"environment"`
	Attempts         int               `json:"attempts"`
	ErrorKind        *enums.ErrorKind  `json:"error_kind,omitempty"`
	LastError        *string           `json:"last_error,omitempty"`
	LastResponseCode *int              `json:"last_response_code,omitempty"`
	FailedAt         time.Time         `json:"failed_at"`
}

// DeadLetterPage is one page of the dead-letter listing. NextCursor is empty
// on the final page.
type DeadLetterPage struct {
	Items      []DeadLetterItem `json:"dead_letters"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Service is the operator surface over the job store: inspect dead letters,
// re-arm them, and read aggregate queue health.
type Service interface {
	DeadLetters(ctx context.Context, shopDomain string, page pagination.Params) (*DeadLetterPage, error)
	Rearm(ctx context.Context, jobID uuid.UUID) error
	RearmAll(ctx context.Context, shopDomain string) (int64, error)
	StatusCounts(ctx context.Context, shopDomain string) ([]StatusCount, error)
}

type service struct {
	repo Repository
}

// NewService builds the operator surface.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) DeadLetters(ctx context.Context, shopDomain string, page pagination.Params) (*DeadLetterPage, error) {
	if shopDomain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop domain required")
	}
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)
	jobs, err := s.repo.ListDeadLetters(ctx, shopDomain, pagination.LimitWithBuffer(page.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}

	result := &DeadLetterPage{Items: make([]DeadLetterItem, 0, len(jobs))}
	if len(jobs) > limit {
		jobs = jobs[:limit]
		last := jobs[len(jobs)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			Timestamp: last.UpdatedAt,
			ID:        last.ID,
		})
	}
	for _, job := range jobs {
		result.Items = append(result.Items, DeadLetterItem{
			JobID:            job.ID,
			Destination:      job.Destination,
			EventID:          job.EventID,
			Environment:      job.Environment,
			Attempts:         job.Attempts,
			ErrorKind:        job.LastErrorKind,
			LastError:        job.LastError,
			LastResponseCode: job.LastResponseCode,
			FailedAt:         job.UpdatedAt,
		})
	}
	return result, nil
}

// Rearm resets one dead-letter job: attempts zeroed, error cleared, back in
// the pending queue.
func (s *service) Rearm(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	rearmed, err := s.repo.Rearm(ctx, jobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-arm job")
	}
	if !rearmed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no dead-letter job with that id")
	}
	return nil
}

func (s *service) RearmAll(ctx context.Context, shopDomain string) (int64, error) {
	if shopDomain == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "shop domain required")
	}
	count, err := s.repo.RearmAll(ctx, shopDomain)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-arm shop dead letters")
	}
	return count, nil
}

func (s *service) StatusCounts(ctx context.Context, shopDomain string) ([]StatusCount, error) {
	if shopDomain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop domain required")
	}
	counts, err := s.repo.StatusCounts(ctx, shopDomain)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count job statuses")
	}
	return counts, nil
}
