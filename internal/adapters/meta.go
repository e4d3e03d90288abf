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

const metaEndpoint = "https://graph.facebook.com/v18.0"

type metaAdapter struct {
	client   *http.Client
	endpoint string
}

// NewMetaAdapter builds the Meta Conversions API adapter.
func NewMetaAdapter(client *http.Client) Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &metaAdapter{client: client, endpoint: metaEndpoint}
}

func (a *metaAdapter) Destination() enums.Destination {
	return enums.DestinationMeta
}

type metaContent struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Price    string `json:"item_price"`
}

type metaUserData struct {
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
}

type metaCustomData struct {
	Currency string        `json:"currency,omitempty"`
	Value    string        `json:"value,omitempty"`
	Contents []metaContent `json:"contents,omitempty"`
	OrderID  string        `json:"order_id,omitempty"`
}

type metaEvent struct {
	EventName    string         `json:"event_name"`
	EventTime    int64          `json:"event_time"`
	EventID      string         `json:"event_id"`
	ActionSource string         `json:"action_source"`
	UserData     metaUserData   `json:"user_data"`
	CustomData   metaCustomData `json:"custom_data"`
}

type metaPayload struct {
	Data          []metaEvent `json:"data"`
	TestEventCode string      `json:"test_event_code,omitempty"`
}

type metaErrorBody struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

func (a *metaAdapter) Send(ctx context.Context, event *models.InternalEvent, creds credentials.Credentials) (*SendResult, error) {
	if creds.Meta == nil {
		return nil, &SendError{Kind: enums.ErrorKindInvalidConfig, Message: "meta credentials missing"}
	}

	items, err := eventItems(event)
	if err != nil {
		return nil, &SendError{Kind: enums.ErrorKindValidation, Message: err.Error()}
	}

	userData := metaUserData{}
	if event.AnonymizedIP != nil {
		userData.ClientIPAddress = *event.AnonymizedIP
	}
	if event.UserAgentHash != nil {
		userData.ClientUserAgent = *event.UserAgentHash
	}

	customData := metaCustomData{
		Currency: event.Currency,
		Value:    event.Value.String(),
		OrderID:  transactionID(event),
	}
	for _, item := range items {
		customData.Contents = append(customData.Contents, metaContent{
			ID:       item.ItemID,
			Quantity: item.Quantity,
			Price:    item.Price.String(),
		})
	}

	payload := metaPayload{
		Data: []metaEvent{{
			EventName: metaEventName(event.EventName),
			EventTime: event.OccurredAt.Unix(),
			// event_id drives Meta's own cross-channel deduplication.
			EventID:      event.EventID,
			ActionSource: "website",
			UserData:     userData,
			CustomData:   customData,
		}},
	}
	if event.Environment == enums.EnvironmentTest {
		payload.TestEventCode = creds.Meta.TestEventCode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SendError{Kind: enums.ErrorKindValidation, Message: fmt.Sprintf("encode payload: %s", err)}
	}

	endpoint := fmt.Sprintf("%s/%s/events?access_token=%s",
		a.endpoint, url.PathEscape(creds.Meta.PixelID), url.QueryEscape(creds.Meta.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &SendResult{ResponseCode: resp.StatusCode}, nil
	}
	return nil, metaError(resp, respBody)
}

func metaError(resp *http.Response, body []byte) *SendError {
	sendErr := &SendError{
		Message:      fmt.Sprintf("meta conversions api returned %d", resp.StatusCode),
		ResponseCode: resp.StatusCode,
		RetryAfter:   retryAfterHint(resp),
	}

	var parsed metaErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		sendErr.Message = parsed.Error.Message
	}

	switch parsed.Error.Code {
	case 190, 102:
		sendErr.Kind = enums.ErrorKindAuth
		return sendErr
	case 4, 17, 32, 613:
		sendErr.Kind = enums.ErrorKindRateLimited
		return sendErr
	case 100:
		sendErr.Kind = enums.ErrorKindValidation
		return sendErr
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

func metaEventName(name enums.EventName) string {
	switch name {
	case enums.EventPurchase, enums.EventCheckoutCompleted:
		return "Purchase"
	case enums.EventCheckoutStarted:
		return "InitiateCheckout"
	case enums.EventAddToCart:
		return "AddToCart"
	}
	return string(name)
}
