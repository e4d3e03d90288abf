package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/trackbeam/trackbeam-backend/internal/adapters"
	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
	"github.com/trackbeam/trackbeam-backend/pkg/metrics"
	redispkg "github.com/trackbeam/trackbeam-backend/pkg/redis"
)

const (
	defaultBatchSize = 50
	defaultPollMs    = 1000
	maxLoopBackoff   = 10 * time.Second
)

// errCoordinationDown aborts a cycle when the claim store is unreachable.
// Sends must not proceed without coordination.
var errCoordinationDown = errors.New("coordination store unreachable")

// WorkerParams carries the dependencies for NewWorker.
type WorkerParams struct {
	Config      config.DispatchConfig
	Logger      *logger.Logger
	Repository  Repository
	Claims      redispkg.ClaimStore
	Credentials credentials.Provider
	Adapters    adapters.Registry
	Metrics     *metrics.DispatchMetrics
	Now         func() time.Time
}

// Worker drains the dispatch queue: claims due jobs, enforces rate limits and
// idempotency, invokes platform adapters and records every outcome.
type Worker struct {
	cfg      config.DispatchConfig
	logg     *logger.Logger
	repo     Repository
	claims   redispkg.ClaimStore
	creds    credentials.Provider
	registry adapters.Registry
	metrics  *metrics.DispatchMetrics
	now      func() time.Time

	batchSize    int
	pollInterval time.Duration
}

// NewWorker validates dependencies and applies config defaults.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("dispatch repository is required")
	}
	if params.Claims == nil {
		return nil, errors.New("claim store is required")
	}
	if params.Credentials == nil {
		return nil, errors.New("credential provider is required")
	}
	if len(params.Adapters) == 0 {
		return nil, errors.New("adapter registry is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		cfg:          params.Config,
		logg:         params.Logger,
		repo:         params.Repository,
		claims:       params.Claims,
		creds:        params.Credentials,
		registry:     params.Adapters,
		metrics:      params.Metrics,
		now:          now,
		batchSize:    batch,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until the context is canceled. Cycle errors back the loop off
// exponentially; an idle queue sleeps one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := w.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "dispatch worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := w.RunCycle(ctx)
		if err != nil {
			w.logg.Error(ctx, "dispatch cycle error", err)
			backoff = nextLoopBackoff(backoff, interval, maxLoopBackoff)
			if err := w.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval
		if processed {
			continue
		}
		if err := w.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// RunCycle executes one poll cycle and reports whether any job was claimed.
func (w *Worker) RunCycle(ctx context.Context) (bool, error) {
	now := w.now().UTC()

	reclaimed, err := w.repo.ReclaimStale(ctx, now.Add(-w.cfg.WatchdogWindow))
	if err != nil {
		return false, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if reclaimed > 0 {
		logCtx := w.logg.WithField(ctx, "reclaimed", reclaimed)
		w.logg.Warn(logCtx, "returned stale processing jobs to the queue")
	}

	jobs, err := w.repo.ClaimDue(ctx, w.batchSize, now)
	if err != nil {
		return false, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return false, nil
	}

	eventIDs := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		eventIDs = append(eventIDs, job.InternalEventID)
	}
	events, err := w.repo.LoadEvents(ctx, eventIDs)
	if err != nil {
		return true, multierr.Append(fmt.Errorf("load events: %w", err), w.releaseBatch(ctx, jobs, now))
	}

	resolutions := w.creds.ResolveMany(ctx, credentialKeys(jobs))

	var errs error
	for i, job := range jobs {
		if err := w.processJob(ctx, job, events, resolutions); err != nil {
			if errors.Is(err, errCoordinationDown) {
				if w.metrics != nil {
					w.metrics.IncFailClosed()
				}
				w.logg.Error(ctx, "coordination store unreachable, failing closed", err)
				errs = multierr.Append(errs, err)
				errs = multierr.Append(errs, w.releaseBatch(ctx, jobs[i:], now))
				return true, errs
			}
			errs = multierr.Append(errs, err)
		}
	}
	return true, errs
}

func credentialKeys(jobs []models.DispatchJob) []credentials.Key {
	keys := make([]credentials.Key, 0, len(jobs))
	for _, job := range jobs {
		keys = append(keys, credentials.Key{
			ShopDomain:  job.ShopDomain,
			Destination: job.Destination,
			Environment: job.Environment,
		})
	}
	return keys
}

// releaseBatch returns unprocessed claimed jobs to pending with a flow-control
// delay. Attempts are untouched; nothing was sent.
func (w *Worker) releaseBatch(ctx context.Context, jobs []models.DispatchJob, now time.Time) error {
	var errs error
	delay := w.flowControlDelay()
	for _, job := range jobs {
		if err := w.repo.Reschedule(ctx, job.ID, now.Add(delay), job.Attempts, nil); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release job %s: %w", job.ID, err))
		}
	}
	return errs
}

func (w *Worker) processJob(ctx context.Context, job models.DispatchJob, eventsByID map[uuid.UUID]models.InternalEvent, resolutions map[credentials.Key]credentials.Resolution) error {
	now := w.now().UTC()
	logCtx := w.jobLogCtx(ctx, job)

	allowed, _, err := w.claims.FixedWindowAllow(ctx,
		w.claims.DispatchRateScope(job.ShopDomain, string(job.Destination)),
		w.cfg.RateLimitCap,
		w.cfg.RateLimitWindow,
	)
	if err != nil {
		return fmt.Errorf("%w: %s", errCoordinationDown, err)
	}
	if !allowed {
		// Flow control, not a failure: the attempt counter stays put.
		if w.metrics != nil {
			w.metrics.IncRescheduled(string(job.Destination), "rate_limited")
		}
		w.logg.Debug(logCtx, "rate limit window exhausted, rescheduling")
		return w.repo.Reschedule(ctx, job.ID, now.Add(w.flowControlDelay()), job.Attempts, nil)
	}

	claimKey := w.claims.DispatchClaimKey(job.ShopDomain, string(job.Destination), job.EventID)
	claimed, err := w.claims.SetNX(ctx, claimKey, job.ID.String(), w.cfg.ClaimTTL)
	if err != nil {
		return fmt.Errorf("%w: %s", errCoordinationDown, err)
	}
	if !claimed {
		// Another worker or a crashed attempt is mid-flight on this pair.
		if w.metrics != nil {
			w.metrics.IncRescheduled(string(job.Destination), "claim_contention")
		}
		w.logg.Debug(logCtx, "idempotency claim held elsewhere, rescheduling")
		return w.repo.Reschedule(ctx, job.ID, now.Add(w.flowControlDelay()), job.Attempts, nil)
	}

	key := credentials.Key{ShopDomain: job.ShopDomain, Destination: job.Destination, Environment: job.Environment}
	resolution, ok := resolutions[key]
	if !ok {
		resolution = credentials.Resolution{Err: credentials.ErrNotConfigured}
	}
	if resolution.Err != nil {
		w.releaseClaim(ctx, claimKey)
		classification := Classify(resolution.Err)
		if classification.Kind == enums.ErrorKindInvalidConfig {
			// No adapter call happened; the attempt counter stays put.
			return w.deadLetter(logCtx, job, job.Attempts, classification)
		}
		return w.repo.Reschedule(ctx, job.ID, now.Add(w.flowControlDelay()), job.Attempts, nil)
	}

	event, ok := eventsByID[job.InternalEventID]
	if !ok {
		w.releaseClaim(ctx, claimKey)
		return w.deadLetter(logCtx, job, job.Attempts, Classification{
			Kind:    enums.ErrorKindValidation,
			Message: "canonical event no longer exists",
		})
	}

	adapter, err := w.registry.For(job.Destination)
	if err != nil {
		w.releaseClaim(ctx, claimKey)
		return w.deadLetter(logCtx, job, job.Attempts, Classification{
			Kind:    enums.ErrorKindInvalidConfig,
			Message: err.Error(),
		})
	}

	attempts := job.Attempts + 1
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.AdapterTimeout)
	start := w.now()
	result, sendErr := adapter.Send(sendCtx, &event, resolution.Credentials)
	cancel()
	if w.metrics != nil {
		w.metrics.ObserveSendDuration(string(job.Destination), w.now().Sub(start))
	}

	if sendErr == nil {
		var code *int
		if result != nil {
			c := result.ResponseCode
			code = &c
		}
		if err := w.repo.MarkSent(ctx, job.ID, attempts, code); err != nil {
			// Delivered but unrecorded: keep the claim off and retry the
			// bookkeeping soon rather than lose the state.
			w.releaseClaim(ctx, claimKey)
			w.logg.Error(logCtx, "delivered but failed to persist sent state", err)
			return w.repo.Reschedule(ctx, job.ID, now.Add(w.flowControlDelay()), attempts, nil)
		}
		// Long-TTL claim absorbs rapid duplicate arrivals after success.
		if err := w.claims.Set(ctx, claimKey, "sent", w.cfg.SentClaimTTL); err != nil {
			w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "failed to extend claim after send")
		}
		if w.metrics != nil {
			w.metrics.IncSent(string(job.Destination))
		}
		w.logg.Info(w.logg.WithField(logCtx, "attempts", attempts), "event dispatched")
		return nil
	}

	w.releaseClaim(ctx, claimKey)
	classification := Classify(sendErr)

	if !classification.Retryable {
		return w.deadLetter(logCtx, job, attempts, classification)
	}
	if attempts >= w.cfg.MaxAttempts {
		classification.Message = truncateError("max attempts reached: " + classification.Message)
		return w.deadLetter(logCtx, job, attempts, classification)
	}

	delay := NextDelay(attempts, classification.RetryAfter)
	if w.metrics != nil {
		w.metrics.IncRescheduled(string(job.Destination), "retry")
	}
	failCtx := w.logg.WithFields(logCtx, map[string]any{
		"attempts":   attempts,
		"error_kind": string(classification.Kind),
		"retry_in":   delay.String(),
	})
	w.logg.Warn(failCtx, "dispatch failed, retry scheduled")
	return w.repo.Reschedule(ctx, job.ID, now.Add(delay), attempts, &JobFailure{
		Kind:         classification.Kind,
		Message:      classification.Message,
		ResponseCode: classification.ResponseCode,
	})
}

func (w *Worker) deadLetter(ctx context.Context, job models.DispatchJob, attempts int, classification Classification) error {
	if w.metrics != nil {
		w.metrics.IncDeadLettered(string(job.Destination), string(classification.Kind))
	}
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"attempts":   attempts,
		"error_kind": string(classification.Kind),
	})
	w.logg.Warn(logCtx, "dispatch job dead-lettered")
	return w.repo.MarkDeadLetter(ctx, job.ID, attempts, JobFailure{
		Kind:         classification.Kind,
		Message:      classification.Message,
		ResponseCode: classification.ResponseCode,
	})
}

func (w *Worker) releaseClaim(ctx context.Context, key string) {
	if err := w.claims.Del(ctx, key); err != nil {
		w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "failed to release idempotency claim")
	}
}

// flowControlDelay spaces out retries caused by throttling or contention:
// at least one full rate-limit window, plus jitter on top.
func (w *Worker) flowControlDelay() time.Duration {
	return withPositiveJitter(w.cfg.RateLimitWindow)
}

func (w *Worker) jobLogCtx(ctx context.Context, job models.DispatchJob) context.Context {
	ctx = w.logg.WithJobID(ctx, job.ID.String())
	ctx = w.logg.WithShop(ctx, job.ShopDomain)
	ctx = w.logg.WithDestination(ctx, string(job.Destination))
	return w.logg.WithEventID(ctx, job.EventID)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextLoopBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
