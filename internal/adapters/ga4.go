package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

const ga4Endpoint = "https://www.google-analytics.com/mp/collect"

type ga4Adapter struct {
	client   *http.Client
	endpoint string
}

// NewGA4Adapter builds the GA4 Measurement Protocol adapter.
func NewGA4Adapter(client *http.Client) Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &ga4Adapter{client: client, endpoint: ga4Endpoint}
}

func (a *ga4Adapter) Destination() enums.Destination {
	return enums.DestinationGA4
}

type ga4Item struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name,omitempty"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type ga4Event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

type ga4Payload struct {
	ClientID        string     `json:"client_id"`
	TimestampMicros int64      `json:"timestamp_micros"`
	Events          []ga4Event `json:"events"`
}

func (a *ga4Adapter) Send(ctx context.Context, event *models.InternalEvent, creds credentials.Credentials) (*SendResult, error) {
	if creds.GA4 == nil {
		return nil, &SendError{Kind: enums.ErrorKindInvalidConfig, Message: "ga4 credentials missing"}
	}

	items, err := eventItems(event)
	if err != nil {
		return nil, &SendError{Kind: enums.ErrorKindValidation, Message: err.Error()}
	}

	params := map[string]any{
		"currency": event.Currency,
		"value":    event.Value.InexactFloat64(),
		// transaction_id lets GA4 deduplicate a purchase it receives twice.
		"transaction_id": transactionID(event),
	}
	if len(items) > 0 {
		wireItems := make([]ga4Item, 0, len(items))
		for _, item := range items {
			wireItems = append(wireItems, ga4Item{
				ItemID:   item.ItemID,
				ItemName: item.Name,
				Quantity: item.Quantity,
				Price:    item.Price.String(),
			})
		}
		params["items"] = wireItems
	}

	payload := ga4Payload{
		ClientID:        event.EventID,
		TimestampMicros: event.OccurredAt.UnixMicro(),
		Events: []ga4Event{{
			Name:   ga4EventName(event.EventName),
			Params: params,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SendError{Kind: enums.ErrorKindValidation, Message: fmt.Sprintf("encode payload: %s", err)}
	}

	query := url.Values{}
	query.Set("measurement_id", creds.GA4.MeasurementID)
	query.Set("api_secret", creds.GA4.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &SendResult{ResponseCode: resp.StatusCode}, nil
	}
	return nil, ga4Error(resp)
}

func ga4Error(resp *http.Response) *SendError {
	sendErr := &SendError{
		Message:      fmt.Sprintf("ga4 measurement protocol returned %d", resp.StatusCode),
		ResponseCode: resp.StatusCode,
		RetryAfter:   retryAfterHint(resp),
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sendErr.Kind = enums.ErrorKindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		sendErr.Kind = enums.ErrorKindRateLimited
	case resp.StatusCode >= 500:
		sendErr.Kind = enums.ErrorKindServerError
	case resp.StatusCode == http.StatusBadRequest:
		sendErr.Kind = enums.ErrorKindValidation
	default:
		sendErr.Kind = enums.ErrorKindUnknown
	}
	return sendErr
}

func ga4EventName(name enums.EventName) string {
	switch name {
	case enums.EventPurchase, enums.EventCheckoutCompleted:
		return "purchase"
	case enums.EventCheckoutStarted:
		return "begin_checkout"
	case enums.EventAddToCart:
		return "add_to_cart"
	}
	return string(name)
}

func transactionID(event *models.InternalEvent) string {
	if event.TransactionID != nil && *event.TransactionID != "" {
		return *event.TransactionID
	}
	return event.EventID
}
