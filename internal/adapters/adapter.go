package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// SendResult is returned on a successful delivery.
type SendResult struct {
	ResponseCode int
}

// SendError is a platform failure already mapped into the shared error
// taxonomy. RetryAfter carries a platform-provided backoff hint when the
// response included one.
type SendError struct {
	Kind         enums.ErrorKind
	Message      string
	ResponseCode int
	RetryAfter   *time.Duration
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s (http %d)", e.Kind, e.Message, e.ResponseCode)
}

// Adapter delivers one canonical event to one platform. Implementations build
// their own wire payload, attach a platform-side dedupe identifier, hash or
// strip personal data, and translate their error shape into SendError.
type Adapter interface {
	Destination() enums.Destination
	Send(ctx context.Context, event *models.InternalEvent, creds credentials.Credentials) (*SendResult, error)
}

// Registry holds one adapter per destination.
type Registry map[enums.Destination]Adapter

// NewRegistry wires the production adapters over a shared HTTP client.
func NewRegistry(client *http.Client) Registry {
	return Registry{
		enums.DestinationGA4:    NewGA4Adapter(client),
		enums.DestinationMeta:   NewMetaAdapter(client),
		enums.DestinationTikTok: NewTikTokAdapter(client),
	}
}

func (r Registry) For(destination enums.Destination) (Adapter, error) {
	adapter, ok := r[destination]
	if !ok {
		return nil, fmt.Errorf("no adapter for destination %q", destination)
	}
	return adapter, nil
}

// eventItems decodes the stored line items; a missing payload is an empty set.
func eventItems(event *models.InternalEvent) ([]models.EventItem, error) {
	if len(event.Items) == 0 {
		return nil, nil
	}
	var items []models.EventItem
	if err := json.Unmarshal(event.Items, &items); err != nil {
		return nil, fmt.Errorf("decode event items: %w", err)
	}
	return items, nil
}

// retryAfterHint parses a Retry-After header expressed in seconds.
func retryAfterHint(resp *http.Response) *time.Duration {
	if resp == nil {
		return nil
	}
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return nil
	}
	var seconds int
	if _, err := fmt.Sscanf(raw, "%d", &seconds); err != nil || seconds <= 0 {
		return nil
	}
	d := time.Duration(seconds) * time.Second
	return &d
}
