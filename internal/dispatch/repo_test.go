package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/pagination"
)

func setupDispatchTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS dispatch_jobs (
  id TEXT PRIMARY KEY,
  internal_event_id TEXT NOT NULL,
  destination TEXT NOT NULL,
  shop_domain TEXT NOT NULL,
  event_id TEXT NOT NULL,
  environment TEXT NOT NULL DEFAULT 'live',
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  next_retry_at DATETIME,
  claimed_at DATETIME,
  last_error TEXT,
  last_error_kind TEXT,
  last_response_code INTEGER,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT ux_dispatch_jobs_event_destination UNIQUE (internal_event_id, destination)
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func pendingJob(eventID uuid.UUID, destination enums.Destination, due time.Time) models.DispatchJob {
	return models.DispatchJob{
		ID:              uuid.New(),
		InternalEventID: eventID,
		Destination:     destination,
		ShopDomain:      "shop.myshopify.com",
		EventID:         "ord_abc",
		Environment:     enums.EnvironmentLive,
		Status:          enums.DispatchPending,
		NextRetryAt:     &due,
	}
}

func TestEnqueuePendingIgnoresDuplicates(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	eventID := uuid.New()
	now := time.Now().UTC()
	first := pendingJob(eventID, enums.DestinationMeta, now)
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{first}))

	duplicate := pendingJob(eventID, enums.DestinationMeta, now)
	other := pendingJob(eventID, enums.DestinationGA4, now)
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{duplicate, other}))

	var count int64
	require.NoError(t, db.Model(&models.DispatchJob{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "one job per (event, destination)")
}

func TestClaimDueOrderingAndStateFlip(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	oldest := pendingJob(uuid.New(), enums.DestinationMeta, now.Add(-time.Hour))
	newer := pendingJob(uuid.New(), enums.DestinationGA4, now.Add(-time.Minute))
	future := pendingJob(uuid.New(), enums.DestinationTikTok, now.Add(time.Hour))
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{newer, oldest, future}))

	claimed, err := repo.ClaimDue(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, oldest.ID, claimed[0].ID, "oldest due first")
	assert.Equal(t, newer.ID, claimed[1].ID)
	for _, job := range claimed {
		assert.Equal(t, enums.DispatchProcessing, job.Status)
		assert.NotNil(t, job.ClaimedAt)
	}

	again, err := repo.ClaimDue(ctx, 10, now)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed jobs are no longer due")
}

func TestClaimDueRespectsLimit(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	jobs := []models.DispatchJob{
		pendingJob(uuid.New(), enums.DestinationMeta, now.Add(-3*time.Minute)),
		pendingJob(uuid.New(), enums.DestinationMeta, now.Add(-2*time.Minute)),
		pendingJob(uuid.New(), enums.DestinationMeta, now.Add(-time.Minute)),
	}
	require.NoError(t, repo.EnqueuePending(ctx, nil, jobs))

	claimed, err := repo.ClaimDue(ctx, 2, now)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestReclaimStale(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job := pendingJob(uuid.New(), enums.DestinationMeta, now.Add(-time.Hour))
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{job}))
	claimed, err := repo.ClaimDue(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Fresh claim survives the watchdog.
	reclaimed, err := repo.ReclaimStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, reclaimed)

	stale := now.Add(-10 * time.Minute)
	require.NoError(t, db.Model(&models.DispatchJob{}).
		Where("id = ?", job.ID).
		Update("claimed_at", stale).Error)

	reclaimed, err = repo.ReclaimStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	var row models.DispatchJob
	require.NoError(t, db.First(&row, "id = ?", job.ID).Error)
	assert.Equal(t, enums.DispatchPending, row.Status)
	assert.Nil(t, row.ClaimedAt)
}

func TestMarkSentClearsFailureState(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job := pendingJob(uuid.New(), enums.DestinationMeta, now)
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{job}))
	code := 500
	require.NoError(t, repo.Reschedule(ctx, job.ID, now.Add(time.Minute), 2, &JobFailure{
		Kind: enums.ErrorKindServerError, Message: "upstream 500", ResponseCode: &code,
	}))

	okCode := 200
	require.NoError(t, repo.MarkSent(ctx, job.ID, 3, &okCode))

	var row models.DispatchJob
	require.NoError(t, db.First(&row, "id = ?", job.ID).Error)
	assert.Equal(t, enums.DispatchSent, row.Status)
	assert.Equal(t, 3, row.Attempts)
	assert.Nil(t, row.NextRetryAt)
	assert.Nil(t, row.LastError)
	assert.Nil(t, row.LastErrorKind)
	require.NotNil(t, row.LastResponseCode)
	assert.Equal(t, 200, *row.LastResponseCode)
}

func TestMarkDeadLetterAndRearm(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job := pendingJob(uuid.New(), enums.DestinationMeta, now)
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{job}))
	code := 401
	require.NoError(t, repo.MarkDeadLetter(ctx, job.ID, 1, JobFailure{
		Kind: enums.ErrorKindAuth, Message: "token expired", ResponseCode: &code,
	}))

	letters, err := repo.ListDeadLetters(ctx, job.ShopDomain, 10, nil)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, enums.DispatchDeadLetter, letters[0].Status)
	require.NotNil(t, letters[0].LastErrorKind)
	assert.Equal(t, enums.ErrorKindAuth, *letters[0].LastErrorKind)

	rearmed, err := repo.Rearm(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, rearmed)

	var row models.DispatchJob
	require.NoError(t, db.First(&row, "id = ?", job.ID).Error)
	assert.Equal(t, enums.DispatchPending, row.Status)
	assert.Zero(t, row.Attempts)
	assert.Nil(t, row.LastError)
	assert.NotNil(t, row.NextRetryAt)

	// A pending job is not re-armable.
	rearmed, err = repo.Rearm(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, rearmed)
}

func TestRearmAllScopedToShop(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mine := pendingJob(uuid.New(), enums.DestinationMeta, now)
	other := pendingJob(uuid.New(), enums.DestinationGA4, now)
	other.ShopDomain = "other.myshopify.com"
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{mine, other}))
	require.NoError(t, repo.MarkDeadLetter(ctx, mine.ID, 5, JobFailure{Kind: enums.ErrorKindServerError, Message: "x"}))
	require.NoError(t, repo.MarkDeadLetter(ctx, other.ID, 5, JobFailure{Kind: enums.ErrorKindServerError, Message: "x"}))

	count, err := repo.RearmAll(ctx, "shop.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var row models.DispatchJob
	require.NoError(t, db.First(&row, "id = ?", other.ID).Error)
	assert.Equal(t, enums.DispatchDeadLetter, row.Status, "other shop untouched")
}

func TestStatusCounts(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	a := pendingJob(uuid.New(), enums.DestinationMeta, now)
	b := pendingJob(uuid.New(), enums.DestinationGA4, now)
	c := pendingJob(uuid.New(), enums.DestinationTikTok, now)
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{a, b, c}))
	require.NoError(t, repo.MarkSent(ctx, a.ID, 1, nil))
	require.NoError(t, repo.MarkDeadLetter(ctx, b.ID, 5, JobFailure{Kind: enums.ErrorKindServerError, Message: "x"}))

	counts, err := repo.StatusCounts(ctx, "shop.myshopify.com")
	require.NoError(t, err)

	byStatus := map[enums.DispatchStatus]int64{}
	for _, row := range counts {
		byStatus[row.Status] = row.Count
	}
	assert.Equal(t, int64(1), byStatus[enums.DispatchSent])
	assert.Equal(t, int64(1), byStatus[enums.DispatchDeadLetter])
	assert.Equal(t, int64(1), byStatus[enums.DispatchPending])
}

func TestDeleteTerminalOlderThan(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	sent := pendingJob(uuid.New(), enums.DestinationMeta, now)
	pending := pendingJob(uuid.New(), enums.DestinationGA4, now)
	require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{sent, pending}))
	require.NoError(t, repo.MarkSent(ctx, sent.ID, 1, nil))

	old := now.Add(-100 * 24 * time.Hour)
	require.NoError(t, db.Model(&models.DispatchJob{}).
		Where("id IN ?", []uuid.UUID{sent.ID, pending.ID}).
		Update("updated_at", old).Error)

	deleted, err := repo.DeleteTerminalOlderThan(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "pending jobs survive the purge")
}

func TestListDeadLettersPages(t *testing.T) {
	db := setupDispatchTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		job := pendingJob(uuid.New(), enums.DestinationGA4, now)
		job.EventID = fmt.Sprintf("ord_%d", i)
		require.NoError(t, repo.EnqueuePending(ctx, nil, []models.DispatchJob{job}))
		require.NoError(t, repo.MarkDeadLetter(ctx, job.ID, 5, JobFailure{
			Kind: enums.ErrorKindAuth, Message: "token expired",
		}))
	}

	first, err := repo.ListDeadLetters(ctx, "shop.myshopify.com", 2, nil)
	require.NoError(t, err)
	require.Len(t, first, 2)

	cursor := &pagination.Cursor{Timestamp: first[1].UpdatedAt, ID: first[1].ID}
	rest, err := repo.ListDeadLetters(ctx, "shop.myshopify.com", 2, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	for _, seen := range first {
		assert.NotEqual(t, seen.ID, rest[0].ID)
	}
}
