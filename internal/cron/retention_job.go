package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
)

const defaultRetentionDays = 90

// RetentionJobParams configure the retention purge job.
type RetentionJobParams struct {
	Logger    *logger.Logger
	Events    eventPurger
	Jobs      jobPurger
	Retention config.RetentionConfig
}

type eventPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobPurger interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewRetentionJob builds the job that purges internal events and finished
// dispatch jobs past the retention window. Jobs are purged first so the
// event delete never races a foreign key from a surviving row.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	retention := params.Retention
	if retention.Days <= 0 {
		retention.Days = defaultRetentionDays
	}
	return &retentionJob{
		logg:      params.Logger,
		events:    params.Events,
		jobs:      params.Jobs,
		retention: retention,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	logg      *logger.Logger
	events    eventPurger
	jobs      jobPurger
	retention config.RetentionConfig
	now       func() time.Time
}

func (j *retentionJob) Name() string { return "retention-purge" }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention.Period())
	jobsDeleted, err := j.jobs.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge dispatch jobs: %w", err)
	}
	eventsDeleted, err := j.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge internal events: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention.Days,
		"jobs_deleted":   jobsDeleted,
		"events_deleted": eventsDeleted,
	})
	j.logg.Info(logCtx, "retention purge complete")
	return nil
}
