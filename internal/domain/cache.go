package domain

import (
	"context"
	"time"
)

type RefreshStatus string

const (
	RefreshIdle       RefreshStatus = "idle"
	RefreshInProgress RefreshStatus = "refreshing"
	RefreshError      RefreshStatus = "error"
)

// ParseRefreshStatus maps a stored status onto a known value, treating
// anything unrecognised as idle.
func ParseRefreshStatus(s string) RefreshStatus {
	switch RefreshStatus(s) {
	case RefreshInProgress:
		return RefreshInProgress
	case RefreshError:
		return RefreshError
	default:
		return RefreshIdle
	}
}

// NeighborhoodData is the blob stored per cache entry.
type NeighborhoodData struct {
	Neighborhood string             `json:"neighborhood"`
	City         string             `json:"city"`
	PostCount    int                `json:"post_count"`
	Analysis     AggregatedAnalysis `json:"analysis"`
	LastUpdated  time.Time          `json:"last_updated"`
	Expiry       time.Time          `json:"expiry"`
}

// CacheEntry is one row per neighborhood. Data is nil for placeholder rows
// created by access tracking or a refresh that never succeeded.
type CacheEntry struct {
	Neighborhood     string
	City             string
	Data             *NeighborhoodData
	LastUpdated      time.Time
	RefreshStatus    RefreshStatus
	RefreshStartedAt time.Time
	AccessCount      int64
	LastAccess       time.Time
}

// HasData reports whether the entry holds a completed analysis.
func (e *CacheEntry) HasData() bool {
	return e != nil && e.Data != nil && !e.LastUpdated.IsZero()
}

// RefreshClaimable reports whether a refresh may start: the entry is not
// refreshing, or its lease started before staleBefore.
func (e *CacheEntry) RefreshClaimable(staleBefore time.Time) bool {
	if e == nil || e.RefreshStatus != RefreshInProgress {
		return true
	}
	return e.RefreshStartedAt.IsZero() || e.RefreshStartedAt.Before(staleBefore)
}

// AgeDays returns whole days since the last successful refresh.
func (e *CacheEntry) AgeDays(now time.Time) int {
	return AgeDays(e.LastUpdated, now)
}

// AgeDays returns whole days between then and now, never negative.
func AgeDays(then, now time.Time) int {
	if then.IsZero() || now.Before(then) {
		return 0
	}
	return int(now.Sub(then) / (24 * time.Hour))
}

type NeighborhoodRef struct {
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
}

// RefreshCandidate is an idle, errored or abandoned entry the scheduler may pick up.
type RefreshCandidate struct {
	NeighborhoodRef
	LastUpdated time.Time
	AccessCount int64
	Status      RefreshStatus
}

type CacheRepository interface {
	GetCacheEntry(ctx context.Context, neighborhood string) (*CacheEntry, error)
	// FindCacheEntry matches by neighborhood first, then by city, and only returns entries with data.
	FindCacheEntry(ctx context.Context, key string) (*CacheEntry, error)
	// TryBeginRefresh atomically moves the entry to refreshing. It succeeds when
	// the entry is absent, idle, errored, or refreshing since before staleBefore.
	TryBeginRefresh(ctx context.Context, neighborhood, city string, now, staleBefore time.Time) (bool, error)
	CompleteRefresh(ctx context.Context, data NeighborhoodData) error
	FailRefresh(ctx context.Context, neighborhood string) error
	RecordAccess(ctx context.Context, neighborhood, city string, at time.Time) error
	// ListRefreshCandidates returns idle and errored entries plus refreshing
	// entries whose lease started before staleBefore.
	ListRefreshCandidates(ctx context.Context, staleBefore time.Time) ([]RefreshCandidate, error)
}
