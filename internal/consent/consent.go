package consent

import (
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
)

// Signal is the consent evidence attached to a single event, as supplied by
// the upstream consent provider. A nil purpose means no signal was captured,
// which is distinct from an explicit denial.
type Signal struct {
	Marketing *bool
	Analytics *bool
	Trust     enums.TrustLevel
}

// Granted reports the grant state for one purpose. The second return is false
// when no signal exists for that purpose.
func (s Signal) Granted(purpose enums.ConsentPurpose) (bool, bool) {
	switch purpose {
	case enums.PurposeMarketing:
		if s.Marketing == nil {
			return false, false
		}
		return *s.Marketing, true
	case enums.PurposeAnalytics:
		if s.Analytics == nil {
			return false, false
		}
		return *s.Analytics, true
	}
	return false, false
}

// AllowedDestinations decides which of the configured destinations may receive
// an event given its consent signal. Pure function, no I/O.
//
// Strict requires an explicit grant backed by a trusted signal. Balanced also
// accepts grants whose signal is only partially trusted. In both strategies an
// explicit denial excludes the destination, and an absent signal never counts
// as a grant.
func AllowedDestinations(sig Signal, configured []enums.Destination, strategy enums.ConsentStrategy) []enums.Destination {
	allowed := make([]enums.Destination, 0, len(configured))
	for _, dest := range configured {
		if destinationAllowed(sig, dest, strategy) {
			allowed = append(allowed, dest)
		}
	}
	return allowed
}

func destinationAllowed(sig Signal, dest enums.Destination, strategy enums.ConsentStrategy) bool {
	granted, present := sig.Granted(dest.RequiredPurpose())
	if !present || !granted {
		return false
	}

	switch strategy {
	case enums.ConsentBalanced:
		return sig.Trust == enums.TrustTrusted || sig.Trust == enums.TrustPartial
	default:
		return sig.Trust == enums.TrustTrusted
	}
}
