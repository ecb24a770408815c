package app

import "time"

type Tier string

const (
	TierFresh   Tier = "fresh"
	TierStale   Tier = "stale"
	TierExpired Tier = "expired"
)

const day = 24 * time.Hour

// StalenessPolicy decides whether cached data can be served as-is.
// RefreshLease is how long a refresh claim shields an entry from new refreshes.
type StalenessPolicy struct {
	CacheExpiry      time.Duration
	RefreshThreshold time.Duration
	RefreshLease     time.Duration
}

func DefaultStalenessPolicy() StalenessPolicy {
	return StalenessPolicy{CacheExpiry: 30 * day, RefreshThreshold: 25 * day, RefreshLease: 15 * time.Minute}
}

// Classify maps the age of cached data onto a tier:
// age < threshold is fresh, threshold <= age < expiry is stale, the rest expired.
func (p StalenessPolicy) Classify(age time.Duration) Tier {
	switch {
	case age < p.RefreshThreshold:
		return TierFresh
	case age < p.CacheExpiry:
		return TierStale
	default:
		return TierExpired
	}
}
