package dispatch

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/trackbeam/trackbeam-backend/internal/adapters"
	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

const maxStoredErrorLen = 512

// Classification is the retry decision derived from one adapter failure.
type Classification struct {
	Kind         enums.ErrorKind
	Retryable    bool
	RetryAfter   *time.Duration
	ResponseCode *int
	Message      string
}

// Classify maps a raw send failure into the shared taxonomy. Adapters already
// classify their own HTTP error shapes; everything else is transport-level.
// Unrecognized errors classify as unknown and retry conservatively.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: enums.ErrorKindUnknown, Retryable: true}
	}

	var sendErr *adapters.SendError
	if errors.As(err, &sendErr) {
		classification := Classification{
			Kind:       sendErr.Kind,
			Retryable:  sendErr.Kind.Retryable(),
			RetryAfter: sendErr.RetryAfter,
			Message:    truncateError(sendErr.Message),
		}
		if sendErr.ResponseCode != 0 {
			code := sendErr.ResponseCode
			classification.ResponseCode = &code
		}
		return classification
	}

	if errors.Is(err, credentials.ErrNotConfigured) || errors.Is(err, credentials.ErrUndecryptable) {
		return Classification{
			Kind:    enums.ErrorKindInvalidConfig,
			Message: truncateError(err.Error()),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{
			Kind:      enums.ErrorKindTimeout,
			Retryable: true,
			Message:   truncateError(err.Error()),
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		kind := enums.ErrorKindNetwork
		if netErr.Timeout() {
			kind = enums.ErrorKindTimeout
		}
		return Classification{
			Kind:      kind,
			Retryable: true,
			Message:   truncateError(err.Error()),
		}
	}

	return Classification{
		Kind:      enums.ErrorKindUnknown,
		Retryable: true,
		Message:   truncateError(err.Error()),
	}
}

// truncateError bounds the raw message stored on the job for operator display.
func truncateError(msg string) string {
	if len(msg) <= maxStoredErrorLen {
		return msg
	}
	return msg[:maxStoredErrorLen]
}
