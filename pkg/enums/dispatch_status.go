package enums

import "fmt"

// DispatchStatus is the lifecycle state of one delivery attempt row.
type DispatchStatus string

const (
	DispatchPending    DispatchStatus = "pending"
	DispatchProcessing DispatchStatus = "processing"
	DispatchSent       DispatchStatus = "sent"
	DispatchDeadLetter DispatchStatus = "dead_letter"
)

var validDispatchStatuses = []DispatchStatus{
	DispatchPending,
	DispatchProcessing,
	DispatchSent,
	DispatchDeadLetter,
}

func (s DispatchStatus) IsValid() bool {
	for _, candidate := range validDispatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status excludes the job from further
// automatic processing.
func (s DispatchStatus) IsTerminal() bool {
	return s == DispatchSent || s == DispatchDeadLetter
}

// AllDispatchStatuses returns every lifecycle state, for status-count reports.
func AllDispatchStatuses() []DispatchStatus {
	out := make([]DispatchStatus, len(validDispatchStatuses))
	copy(out, validDispatchStatuses)
	return out
}

// ParseDispatchStatus converts raw input into a DispatchStatus.
func ParseDispatchStatus(value string) (DispatchStatus, error) {
	for _, candidate := range validDispatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispatch status %q", value)
}
