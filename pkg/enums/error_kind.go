package enums

import "fmt"

// ErrorKind classifies adapter failures into the shared retry taxonomy.
type ErrorKind string

const (
	ErrorKindAuth          ErrorKind = "auth_error"
	ErrorKindInvalidConfig ErrorKind = "invalid_config"
	ErrorKindRateLimited   ErrorKind = "rate_limited"
	ErrorKindServerError   ErrorKind = "server_error"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindNetwork       ErrorKind = "network_error"
	ErrorKindValidation    ErrorKind = "validation_error"
	ErrorKindQuotaExceeded ErrorKind = "quota_exceeded"
	ErrorKindUnknown       ErrorKind = "unknown"
)

var validErrorKinds = []ErrorKind{
	ErrorKindAuth,
	ErrorKindInvalidConfig,
	ErrorKindRateLimited,
	ErrorKindServerError,
	ErrorKindTimeout,
	ErrorKindNetwork,
	ErrorKindValidation,
	ErrorKindQuotaExceeded,
	ErrorKindUnknown,
}

func (k ErrorKind) IsValid() bool {
	for _, candidate := range validErrorKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Retryable reports whether a failure of this kind may be attempted again.
// Unknown failures retry conservatively.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindRateLimited, ErrorKindServerError, ErrorKindTimeout, ErrorKindNetwork, ErrorKindUnknown:
		return true
	default:
		return false
	}
}

// ParseErrorKind converts raw input into an ErrorKind.
func ParseErrorKind(value string) (ErrorKind, error) {
	for _, candidate := range validErrorKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid error kind %q", value)
}
