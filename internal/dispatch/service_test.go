package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	pkgerrors "github.com/trackbeam/trackbeam-backend/pkg/errors"
	"github.com/trackbeam/trackbeam-backend/pkg/pagination"
)

type serviceStoreStub struct {
	fakeJobStore
	deadLetters  []models.DispatchJob
	rearmOK      bool
	rearmedAll   int64
	listedLimit  int
	listedCursor *pagination.Cursor
}

func (s *serviceStoreStub) ListDeadLetters(ctx context.Context, shopDomain string, limit int, cursor *pagination.Cursor) ([]models.DispatchJob, error) {
	s.listedLimit = limit
	s.listedCursor = cursor
	if limit < len(s.deadLetters) {
		return s.deadLetters[:limit], nil
	}
	return s.deadLetters, nil
}

func (s *serviceStoreStub) Rearm(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.rearmOK, nil
}

func (s *serviceStoreStub) RearmAll(ctx context.Context, shopDomain string) (int64, error) {
	return s.rearmedAll, nil
}

func TestDeadLettersMapsJobs(t *testing.T) {
	kind := enums.ErrorKindAuth
	msg := "token expired"
	code := 401
	stub := &serviceStoreStub{deadLetters: []models.DispatchJob{{
		ID:               uuid.New(),
		Destination:      enums.DestinationMeta,
		EventID:          "ord_abc",
		Environment:      enums.EnvironmentLive,
		Attempts:         1,
		LastErrorKind:    &kind,
		LastError:        &msg,
		LastResponseCode: &code,
		UpdatedAt:        time.Now().UTC(),
	}}}
	svc, err := NewService(stub)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	page, err := svc.DeadLetters(context.Background(), "shop.myshopify.com", pagination.Params{})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if stub.listedLimit != pagination.DefaultLimit+1 {
		t.Fatalf("expected buffered default limit, got %d", stub.listedLimit)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	if page.NextCursor != "" {
		t.Fatalf("expected no next cursor, got %q", page.NextCursor)
	}
	item := page.Items[0]
	if item.ErrorKind == nil || *item.ErrorKind != enums.ErrorKindAuth {
		t.Fatal("classified reason must be exposed")
	}
	if item.LastError == nil || *item.LastError != msg {
		t.Fatal("raw message must be exposed")
	}
}

func TestDeadLettersRequiresShop(t *testing.T) {
	svc, _ := NewService(&serviceStoreStub{})
	_, err := svc.DeadLetters(context.Background(), "", pagination.Params{Limit: 10})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRearmNotFound(t *testing.T) {
	svc, _ := NewService(&serviceStoreStub{rearmOK: false})
	err := svc.Rearm(context.Background(), uuid.New())
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	svc, _ = NewService(&serviceStoreStub{rearmOK: true})
	if err := svc.Rearm(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Rearm: %v", err)
	}
}

func TestRearmAll(t *testing.T) {
	svc, _ := NewService(&serviceStoreStub{rearmedAll: 3})
	count, err := svc.RearmAll(context.Background(), "shop.myshopify.com")
	if err != nil {
		t.Fatalf("RearmAll: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestDeadLettersPaginates(t *testing.T) {
	now := time.Now().UTC()
	jobs := make([]models.DispatchJob, 3)
	for i := range jobs {
		jobs[i] = models.DispatchJob{
			ID:          uuid.New(),
			Destination: enums.DestinationGA4,
			EventID:     "ord_abc",
			Environment: enums.EnvironmentLive,
			UpdatedAt:   now.Add(-time.Duration(i) * time.Minute),
		}
	}
	stub := &serviceStoreStub{deadLetters: jobs}
	svc, _ := NewService(stub)

	page, err := svc.DeadLetters(context.Background(), "shop.myshopify.com", pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("DeadLetters: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor when more rows remain")
	}

	if _, err := svc.DeadLetters(context.Background(), "shop.myshopify.com", pagination.Params{
		Limit:  2,
		Cursor: page.NextCursor,
	}); err != nil {
		t.Fatalf("DeadLetters with cursor: %v", err)
	}
	if stub.listedCursor == nil {
		t.Fatal("cursor must reach the repository")
	}
	if stub.listedCursor.ID != jobs[1].ID {
		t.Fatalf("cursor should point at the last returned row")
	}
}

func TestDeadLettersRejectsBadCursor(t *testing.T) {
	svc, _ := NewService(&serviceStoreStub{})
	_, err := svc.DeadLetters(context.Background(), "shop.myshopify.com", pagination.Params{Cursor: "garbage!"})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
