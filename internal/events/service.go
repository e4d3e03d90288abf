package events

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/internal/consent"
	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	pkgerrors "github.com/trackbeam/trackbeam-backend/pkg/errors"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service accepts raw webhook/pixel events, deduplicates them and enqueues
// dispatch jobs for the destinations consent allows.
type Service interface {
	Ingest(ctx context.Context, raw RawEvent) (*Result, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	jobs     JobEnqueuer
	strategy enums.ConsentStrategy
	ingest   config.IngestConfig
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Jobs     JobEnqueuer
	Strategy enums.ConsentStrategy
	Ingest   config.IngestConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

// NewService builds the normalizer with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("job enqueuer required")
	}
	if !params.Strategy.IsValid() {
		return nil, fmt.Errorf("invalid consent strategy %q", params.Strategy)
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		jobs:     params.Jobs,
		strategy: params.Strategy,
		ingest:   params.Ingest,
		logg:     params.Logger,
		now:      now,
	}, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Ingest normalizes one raw event and persists it together with its dispatch
// jobs in a single transaction. A duplicate arrival returns the existing
// event and enqueues nothing.
func (s *service) Ingest(ctx context.Context, raw RawEvent) (*Result, error) {
	event, err := s.normalize(raw)
	if err != nil {
		return nil, err
	}

	configured, err := s.repo.EnabledDestinations(ctx, event.ShopDomain, event.Environment)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load destination configs")
	}
	signal := consent.Signal{
		Marketing: event.ConsentMarketing,
		Analytics: event.ConsentAnalytics,
		Trust:     event.ConsentTrust,
	}
	allowed := consent.AllowedDestinations(signal, configured, s.strategy)

	result := &Result{Event: event}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		created, err := repo.CreateIgnoreDuplicate(ctx, event)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist event")
		}
		if !created {
			existing, err := repo.FindByIdentity(ctx, event.ShopDomain, event.EventID, event.EventName)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing event")
			}
			result.Event = existing
			return nil
		}

		result.Created = true
		if len(allowed) == 0 {
			return nil
		}
		now := s.now().UTC()
		jobs := make([]models.DispatchJob, 0, len(allowed))
		for _, destination := range allowed {
			jobs = append(jobs, models.DispatchJob{
				ID:              uuid.New(),
				InternalEventID: event.ID,
				Destination:     destination,
				ShopDomain:      event.ShopDomain,
				EventID:         event.EventID,
				Environment:     event.Environment,
				Status:          enums.DispatchPending,
				NextRetryAt:     &now,
			})
		}
		if err := s.jobs.EnqueuePending(ctx, tx, jobs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue dispatch jobs")
		}
		result.Destinations = allowed
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithShop(ctx, result.Event.ShopDomain)
	logCtx = s.logg.WithEventID(logCtx, result.Event.EventID)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"source":       string(raw.Source),
		"created":      result.Created,
		"destinations": len(result.Destinations),
	})
	s.logg.Info(logCtx, "event ingested")
	return result, nil
}

func (s *service) normalize(raw RawEvent) (*models.InternalEvent, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload")
	}
	name, err := enums.ParseEventName(raw.EventName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event name")
	}
	if !raw.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid event source")
	}

	now := s.now().UTC()
	occurred := raw.OccurredAt.UTC()
	if occurred.Before(now.Add(-s.ingest.MaxEventAge)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event occurred too far in the past")
	}
	if occurred.After(now.Add(s.ingest.MaxFutureSkew)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event timestamp is in the future")
	}

	eventID, err := resolveEventID(raw, name)
	if err != nil {
		return nil, err
	}

	value, err := parseMoney(raw.Value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid monetary value")
	}

	items, err := normalizeItems(raw.Items)
	if err != nil {
		return nil, err
	}

	environment := raw.Environment
	if environment == "" {
		environment = enums.EnvironmentLive
	}
	if !environment.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid environment")
	}
	trust := raw.Trust
	if trust == "" {
		trust = enums.TrustUntrusted
	}

	event := &models.InternalEvent{
		ID:               uuid.New(),
		ShopDomain:       strings.ToLower(raw.ShopDomain),
		EventID:          eventID,
		EventName:        name,
		Source:           raw.Source,
		Environment:      environment,
		OccurredAt:       occurred,
		Currency:         strings.ToUpper(raw.Currency),
		Value:            value,
		Items:            items,
		ConsentMarketing: raw.Consent.Marketing,
		ConsentAnalytics: raw.Consent.Analytics,
		ConsentTrust:     trust,
	}
	if raw.TransactionID != "" {
		event.TransactionID = &raw.TransactionID
	}
	if ip := anonymizeIP(raw.IP); ip != "" {
		event.AnonymizedIP = &ip
	}
	if hash := hashUserAgent(raw.UserAgent); hash != "" {
		event.UserAgentHash = &hash
	}
	return event, nil
}

// resolveEventID picks the canonical id: order-scoped events derive it from
// the order so both sources converge; everything else uses the validated
// client id or a fresh one.
func resolveEventID(raw RawEvent, name enums.EventName) (string, error) {
	if name.IsOrderScoped() {
		if raw.OrderID == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "order id required for order events")
		}
		if !orderIDPattern.MatchString(raw.OrderID) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid order id format")
		}
		return DeriveOrderEventID(raw.ShopDomain, raw.OrderID), nil
	}
	if raw.ClientEventID != "" {
		if !clientEventIDPattern.MatchString(raw.ClientEventID) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid client event id format")
		}
		return raw.ClientEventID, nil
	}
	return "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func normalizeItems(raw []RawItem) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	items := make([]models.EventItem, 0, len(raw))
	for _, item := range raw {
		price, err := parseMoney(item.Price)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item price")
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		items = append(items, models.EventItem{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Quantity: quantity,
			Price:    price,
		})
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode line items")
	}
	return encoded, nil
}
