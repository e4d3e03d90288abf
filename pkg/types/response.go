// Package types holds the wire envelopes shared by every HTTP response.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error body. Message comes from the error code's
// metadata, never from internal error text.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
