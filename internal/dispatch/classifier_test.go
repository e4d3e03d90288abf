package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/trackbeam/trackbeam-backend/internal/adapters"
	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "connection refused" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestClassifySendError(t *testing.T) {
	hint := 30 * time.Second
	err := &adapters.SendError{
		Kind:         enums.ErrorKindRateLimited,
		Message:      "too many calls",
		ResponseCode: 429,
		RetryAfter:   &hint,
	}

	classification := Classify(err)
	if classification.Kind != enums.ErrorKindRateLimited {
		t.Fatalf("unexpected kind %s", classification.Kind)
	}
	if !classification.Retryable {
		t.Fatal("rate_limited must be retryable")
	}
	if classification.RetryAfter == nil || *classification.RetryAfter != hint {
		t.Fatal("retry-after hint lost")
	}
	if classification.ResponseCode == nil || *classification.ResponseCode != 429 {
		t.Fatal("response code lost")
	}
}

func TestClassifyTerminalKinds(t *testing.T) {
	terminal := []enums.ErrorKind{
		enums.ErrorKindAuth,
		enums.ErrorKindInvalidConfig,
		enums.ErrorKindValidation,
		enums.ErrorKindQuotaExceeded,
	}
	for _, kind := range terminal {
		classification := Classify(&adapters.SendError{Kind: kind, Message: "boom"})
		if classification.Retryable {
			t.Errorf("%s must not be retryable", kind)
		}
	}
}

func TestClassifyCredentialErrors(t *testing.T) {
	for _, err := range []error{
		credentials.ErrNotConfigured,
		fmt.Errorf("resolve: %w", credentials.ErrUndecryptable),
	} {
		classification := Classify(err)
		if classification.Kind != enums.ErrorKindInvalidConfig {
			t.Errorf("expected invalid_config for %v, got %s", err, classification.Kind)
		}
		if classification.Retryable {
			t.Errorf("credential failures must be terminal")
		}
	}
}

func TestClassifyTransportErrors(t *testing.T) {
	classification := Classify(context.DeadlineExceeded)
	if classification.Kind != enums.ErrorKindTimeout || !classification.Retryable {
		t.Fatalf("deadline: got %+v", classification)
	}

	classification = Classify(&fakeNetError{timeout: true})
	if classification.Kind != enums.ErrorKindTimeout {
		t.Fatalf("net timeout: got %s", classification.Kind)
	}

	classification = Classify(&fakeNetError{})
	if classification.Kind != enums.ErrorKindNetwork || !classification.Retryable {
		t.Fatalf("net error: got %+v", classification)
	}
}

func TestClassifyUnknownDefaultsRetryable(t *testing.T) {
	classification := Classify(errors.New("something odd"))
	if classification.Kind != enums.ErrorKindUnknown {
		t.Fatalf("unexpected kind %s", classification.Kind)
	}
	if !classification.Retryable {
		t.Fatal("unknown must retry conservatively")
	}
}

func TestClassifyTruncatesMessage(t *testing.T) {
	long := strings.Repeat("x", 2000)
	classification := Classify(errors.New(long))
	if len(classification.Message) != maxStoredErrorLen {
		t.Fatalf("expected message truncated to %d, got %d", maxStoredErrorLen, len(classification.Message))
	}
}
