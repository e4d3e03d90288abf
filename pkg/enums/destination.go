package enums

import "fmt"

// Destination identifies one ad-platform conversion API integration.
type Destination string

const (
	DestinationGA4    Destination = "GA4"
	DestinationMeta   Destination = "META"
	DestinationTikTok Destination = "TIKTOK"
)

var validDestinations = []Destination{
	DestinationGA4,
	DestinationMeta,
	DestinationTikTok,
}

// AllDestinations returns the fixed set of supported destinations.
func AllDestinations() []Destination {
	out := make([]Destination, len(validDestinations))
	copy(out, validDestinations)
	return out
}

// IsValid reports whether the value is a supported destination.
func (d Destination) IsValid() bool {
	for _, candidate := range validDestinations {
		if candidate == d {
			return true
		}
	}
	return false
}

// RequiredPurpose returns the consent purpose a destination needs before it
// may receive events: analytics-only integrations need analytics consent,
// advertising platforms need marketing consent.
func (d Destination) RequiredPurpose() ConsentPurpose {
	if d == DestinationGA4 {
		return PurposeAnalytics
	}
	return PurposeMarketing
}

// ParseDestination converts raw input into a Destination.
func ParseDestination(value string) (Destination, error) {
	for _, candidate := range validDestinations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid destination %q", value)
}
