package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

const tiktokEndpoint = "https://business-api.tiktok.com/open_api/v1.3/event/track/"

type tiktokAdapter struct {
	client   *http.Client
	endpoint string
}

// NewTikTokAdapter builds the TikTok Events API adapter.
func NewTikTokAdapter(client *http.Client) Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &tiktokAdapter{client: client, endpoint: tiktokEndpoint}
}

func (a *tiktokAdapter) Destination() enums.Destination {
	return enums.DestinationTikTok
}

type tiktokContent struct {
	ContentID string `json:"content_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type tiktokProperties struct {
	Currency string          `json:"currency,omitempty"`
	Value    string          `json:"value,omitempty"`
	OrderID  string          `json:"order_id,omitempty"`
	Contents []tiktokContent `json:"contents,omitempty"`
}

type tiktokUser struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type tiktokEvent struct {
	Event      string           `json:"event"`
	EventTime  int64            `json:"event_time"`
	EventID    string           `json:"event_id"`
	User       tiktokUser       `json:"user"`
	Properties tiktokProperties `json:"properties"`
}

type tiktokPayload struct {
	EventSource   string        `json:"event_source"`
	EventSourceID string        `json:"event_source_id"`
	Data          []tiktokEvent `json:"data"`
}

type tiktokResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *tiktokAdapter) Send(ctx context.Context, event *models.InternalEvent, creds credentials.Credentials) (*SendResult, error) {
	if creds.TikTok == nil {
		return nil, &SendError{Kind: enums.ErrorKindInvalidConfig, Message: "tiktok credentials missing"}
	}

	items, err := eventItems(event)
	if err != nil {
		return nil, &SendError{Kind: enums.ErrorKindValidation, Message: err.Error()}
	}

	user := tiktokUser{}
	if event.AnonymizedIP != nil {
		user.IP = *event.AnonymizedIP
	}
	if event.UserAgentHash != nil {
		user.UserAgent = *event.UserAgentHash
	}

	properties := tiktokProperties{
		Currency: event.Currency,
		Value:    event.Value.String(),
		OrderID:  transactionID(event),
	}
	for _, item := range items {
		properties.Contents = append(properties.Contents, tiktokContent{
			ContentID: item.ItemID,
			Quantity:  item.Quantity,
			Price:     item.Price.String(),
		})
	}

	payload := tiktokPayload{
		EventSource:   "web",
		EventSourceID: creds.TikTok.PixelCode,
		Data: []tiktokEvent{{
			Event:     tiktokEventName(event.EventName),
			EventTime: event.OccurredAt.Unix(),
			// event_id is TikTok's dedupe key for repeat deliveries.
			EventID:    event.EventID,
			User:       user,
			Properties: properties,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SendError{Kind: enums.ErrorKindValidation, Message: fmt.Sprintf("encode payload: %s", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Access-Token", creds.TikTok.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	var parsed tiktokResponse
	bodyParsed := json.Unmarshal(respBody, &parsed) == nil

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && (!bodyParsed || parsed.Code == 0) {
		return &SendResult{ResponseCode: resp.StatusCode}, nil
	}
	return nil, tiktokError(resp, parsed, bodyParsed)
}

func tiktokError(resp *http.Response, parsed tiktokResponse, bodyParsed bool) *SendError {
	sendErr := &SendError{
		Message:      fmt.Sprintf("tiktok events api returned %d", resp.StatusCode),
		ResponseCode: resp.StatusCode,
		RetryAfter:   retryAfterHint(resp),
	}
	if bodyParsed && parsed.Message != "" {
		sendErr.Message = parsed.Message
	}

	if bodyParsed {
		switch parsed.Code {
		case 40101, 40102, 40105:
			sendErr.Kind = enums.ErrorKindAuth
			return sendErr
		case 40100:
			sendErr.Kind = enums.ErrorKindRateLimited
			return sendErr
		case 40001:
			sendErr.Kind = enums.ErrorKindValidation
			return sendErr
		case 40200:
			sendErr.Kind = enums.ErrorKindQuotaExceeded
			return sendErr
		}
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

func tiktokEventName(name enums.EventName) string {
	switch name {
	case enums.EventPurchase, enums.EventCheckoutCompleted:
		return "CompletePayment"
	case enums.EventCheckoutStarted:
		return "InitiateCheckout"
	case enums.EventAddToCart:
		return "AddToCart"
	}
	return string(name)
}
