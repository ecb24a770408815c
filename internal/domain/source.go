package domain

import (
	"context"
	"time"
)

type SourceStats struct {
	Region       string    `json:"region"`
	Source       string    `json:"source"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
	LastSuccess  time.Time `json:"last_success"`
	LastFailure  time.Time `json:"last_failure"`
}

// SuccessRate returns the observed ratio, or prior when the source has no history.
func (s SourceStats) SuccessRate(prior float64) float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return prior
	}
	return float64(s.SuccessCount) / float64(total)
}

type SourceTracker interface {
	// RecordSourceResult increments exactly one counter atomically.
	RecordSourceResult(ctx context.Context, region, source string, success bool, at time.Time) error
	ListSourceStats(ctx context.Context, region string) ([]SourceStats, error)
}
