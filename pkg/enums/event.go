package enums

import "fmt"

// EventSource records which transport delivered an event.
type EventSource string

const (
	SourceWebhook EventSource = "webhook"
	SourcePixel   EventSource = "pixel"
)

var validEventSources = []EventSource{SourceWebhook, SourcePixel}

func (s EventSource) IsValid() bool {
	for _, candidate := range validEventSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEventSource converts raw input into an EventSource.
func ParseEventSource(value string) (EventSource, error) {
	for _, candidate := range validEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event source %q", value)
}

// EventName is the business event taxonomy shared by both sources.
type EventName string

const (
	EventPurchase          EventName = "purchase"
	EventCheckoutCompleted EventName = "checkout_completed"
	EventCheckoutStarted   EventName = "checkout_started"
	EventAddToCart         EventName = "add_to_cart"
)

var validEventNames = []EventName{
	EventPurchase,
	EventCheckoutCompleted,
	EventCheckoutStarted,
	EventAddToCart,
}

func (e EventName) IsValid() bool {
	for _, candidate := range validEventNames {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsOrderScoped reports whether the event carries an order identifier that
// both the webhook and pixel paths can agree on. These events get a
// deterministic event id so the two sources converge on one record.
func (e EventName) IsOrderScoped() bool {
	return e == EventPurchase || e == EventCheckoutCompleted
}

// ParseEventName converts raw input into an EventName.
func ParseEventName(value string) (EventName, error) {
	for _, candidate := range validEventNames {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event name %q", value)
}

// Environment separates test traffic from live traffic end to end.
type Environment string

const (
	EnvironmentTest Environment = "test"
	EnvironmentLive Environment = "live"
)

var validEnvironments = []Environment{EnvironmentTest, EnvironmentLive}

func (e Environment) IsValid() bool {
	for _, candidate := range validEnvironments {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEnvironment converts raw input into an Environment.
func ParseEnvironment(value string) (Environment, error) {
	for _, candidate := range validEnvironments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid environment %q", value)
}
