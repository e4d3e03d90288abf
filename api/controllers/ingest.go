package controllers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/trackbeam/trackbeam-backend/api/responses"
	"github.com/trackbeam/trackbeam-backend/api/validators"
	"github.com/trackbeam/trackbeam-backend/internal/events"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
)

// PixelTokenHeader carries the per-shop ingestion key on pixel requests.
const PixelTokenHeader = "X-Pixel-Token"

type eventItemRequest struct {
	ItemID   string `json:"item_id" validate:"required,max=128"`
	Name     string `json:"name" validate:"max=256"`
	Quantity int    `json:"quantity" validate:"min=0"`
	Price    string `json:"price" validate:"max=32"`
}

type eventConsentRequest struct {
	Marketing *bool `json:"marketing"`
	Analytics *bool `json:"analytics"`
}

type eventRequest struct {
	ShopDomain    string              `json:"shop_domain" validate:"required,hostname,max=255"`
	EventName     string              `json:"event_name" validate:"required,max=64"`
	OrderID       string              `json:"order_id" validate:"omitempty,max=64"`
	ClientEventID string              `json:"client_event_id" validate:"omitempty,max=64"`
	OccurredAt    time.Time           `json:"occurred_at" validate:"required"`
	Currency      string              `json:"currency" validate:"omitempty,len=3"`
	Value         string              `json:"value" validate:"omitempty,max=32"`
	TransactionID string              `json:"transaction_id" validate:"omitempty,max=128"`
	Items         []eventItemRequest  `json:"items" validate:"omitempty,dive"`
	Consent       eventConsentRequest `json:"consent"`
	Environment   string              `json:"environment" validate:"omitempty,oneof=live test"`
}

func (req eventRequest) toRaw(source enums.EventSource, trust enums.TrustLevel, r *http.Request) events.RawEvent {
	raw := events.RawEvent{
		Source:        source,
		ShopDomain:    req.ShopDomain,
		EventName:     req.EventName,
		OrderID:       req.OrderID,
		ClientEventID: req.ClientEventID,
		OccurredAt:    req.OccurredAt,
		Currency:      req.Currency,
		Value:         req.Value,
		TransactionID: req.TransactionID,
		Consent: events.RawConsent{
			Marketing: req.Consent.Marketing,
			Analytics: req.Consent.Analytics,
		},
		Trust:       trust,
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
		Environment: enums.Environment(req.Environment),
	}
	for _, item := range req.Items {
		raw.Items = append(raw.Items, events.RawItem{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return raw
}

type ingestResponse struct {
	EventID      string              `json:"event_id"`
	Created      bool                `json:"created"`
	Destinations []enums.Destination `json:"destinations"`
}

// WebhookIngest accepts server-side events. The delivery channel is the
// platform's signed webhook, so the consent signal counts as trusted.
func WebhookIngest(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Ingest(r.Context(), req.toRaw(enums.SourceWebhook, enums.TrustTrusted, r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeIngestResult(w, result)
	}
}

// PixelIngest accepts browser events. Trust is graded by the pixel token
// check before the event reaches normalization.
func PixelIngest(svc events.Service, verifier *events.TokenVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trust, err := verifier.Verify(r.Context(), req.ShopDomain, r.Header.Get(PixelTokenHeader))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Ingest(r.Context(), req.toRaw(enums.SourcePixel, trust, r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeIngestResult(w, result)
	}
}

func writeIngestResult(w http.ResponseWriter, result *events.Result) {
	payload := ingestResponse{
		EventID:      result.Event.EventID,
		Created:      result.Created,
		Destinations: result.Destinations,
	}
	if payload.Destinations == nil {
		payload.Destinations = []enums.Destination{}
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusAccepted
	}
	responses.WriteSuccessStatus(w, status, payload)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
