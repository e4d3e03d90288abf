package enums

import "fmt"

// ConsentPurpose is a privacy purpose a shopper can grant or deny.
type ConsentPurpose string

const (
	PurposeMarketing ConsentPurpose = "marketing"
	PurposeAnalytics ConsentPurpose = "analytics"
)

// ConsentStrategy controls how much corroboration a consent signal needs
// before a destination is admitted.
type ConsentStrategy string

const (
	// ConsentStrict requires an explicit grant backed by a fully trusted
	// signal. Suitable for GDPR/CCPA regimes.
	ConsentStrict ConsentStrategy = "strict"
	// ConsentBalanced also admits grants whose corroborating signal is only
	// partially trusted. Explicit denial still excludes.
	ConsentBalanced ConsentStrategy = "balanced"
)

var validConsentStrategies = []ConsentStrategy{ConsentStrict, ConsentBalanced}

func (s ConsentStrategy) IsValid() bool {
	for _, candidate := range validConsentStrategies {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseConsentStrategy converts raw input into a ConsentStrategy. Unknown
// values fall back to strict rather than erroring: misconfiguration must
// never widen data sharing.
func ParseConsentStrategy(value string) (ConsentStrategy, error) {
	for _, candidate := range validConsentStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return ConsentStrict, fmt.Errorf("invalid consent strategy %q", value)
}

// TrustLevel grades how verifiable the consent evidence attached to an
// event is.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustPartial   TrustLevel = "partial"
	TrustUntrusted TrustLevel = "untrusted"
)

var validTrustLevels = []TrustLevel{TrustTrusted, TrustPartial, TrustUntrusted}

func (l TrustLevel) IsValid() bool {
	for _, candidate := range validTrustLevels {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseTrustLevel converts raw input into a TrustLevel.
func ParseTrustLevel(value string) (TrustLevel, error) {
	for _, candidate := range validTrustLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trust level %q", value)
}
