package dispatch

import (
	"math/rand"
	"time"
)

// retrySchedule is the escalating delay applied after each real send attempt.
// An attempt beyond the schedule keeps the final value.
var retrySchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

const (
	maxRetryDelay  = 2 * time.Hour
	jitterFraction = 0.20
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// NextDelay computes how long to wait before the next attempt. attempt is the
// number of attempts already made (1 after the first failure). A platform
// retry-after hint overrides the schedule but is still capped and jittered.
func NextDelay(attempt int, retryAfter *time.Duration) time.Duration {
	var base time.Duration
	if retryAfter != nil && *retryAfter > 0 {
		base = *retryAfter
	} else {
		idx := attempt - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(retrySchedule) {
			idx = len(retrySchedule) - 1
		}
		base = retrySchedule[idx]
	}
	if base > maxRetryDelay {
		base = maxRetryDelay
	}
	return withJitter(base)
}

// withJitter spreads a delay by up to ±20% to avoid thundering herds.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	window := int64(float64(d) * jitterFraction)
	if window <= 0 {
		return d
	}
	offset := jitterSource.Int63n(2*window+1) - window
	return d + time.Duration(offset)
}

// withPositiveJitter extends a delay by up to 20%, never shortening it. Used
// for flow-control reschedules, which must wait out at least one full window.
func withPositiveJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	window := int64(float64(d) * jitterFraction)
	if window <= 0 {
		return d
	}
	return d + time.Duration(jitterSource.Int63n(window+1))
}
