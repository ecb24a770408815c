package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

const (
	reasonNoData            = "no_data"
	reasonRefreshFailed     = "refresh_failed"
	reasonRefreshInProgress = "refresh_in_progress"
	reasonInvalidInput      = "invalid_neighborhood"
	reasonCancelled         = "cancelled"
)

// Enqueuer accepts background refresh jobs without blocking.
type Enqueuer interface {
	Enqueue(job RefreshJob) bool
}

// NeighborhoodRefresher is the synchronous refresh path.
type NeighborhoodRefresher interface {
	Refresh(ctx context.Context, req RefreshRequest) (domain.NeighborhoodData, error)
}

// NeighborhoodCache serves neighborhood data behind the staleness policy.
// Callers always get a well-formed envelope.
type NeighborhoodCache struct {
	store     domain.CacheRepository
	refresher NeighborhoodRefresher
	queue     Enqueuer
	debouncer domain.RefreshDebouncer
	policy    StalenessPolicy
	clock     clockwork.Clock
	metrics   *metrics.CacheMetrics
}

// NewNeighborhoodCache wires the cache. queue nil disables background refresh;
// debouncer and m may be nil.
func NewNeighborhoodCache(store domain.CacheRepository, refresher NeighborhoodRefresher, queue Enqueuer, debouncer domain.RefreshDebouncer, policy StalenessPolicy, clock clockwork.Clock, m *metrics.CacheMetrics) *NeighborhoodCache {
	return &NeighborhoodCache{
		store:     store,
		refresher: refresher,
		queue:     queue,
		debouncer: debouncer,
		policy:    policy,
		clock:     clock,
		metrics:   m,
	}
}

// GetNeighborhoodData returns an error only for a blank neighborhood or a
// cancelled context, and even then a Generic or Fallback envelope comes with it.
func (c *NeighborhoodCache) GetNeighborhoodData(ctx context.Context, neighborhood, city string, forceRefresh bool) (domain.Envelope, error) {
	neighborhood = strings.TrimSpace(neighborhood)
	city = strings.TrimSpace(city)
	now := c.clock.Now()

	if neighborhood == "" {
		c.metrics.Lookup("generic")
		return domain.Generic{Data: genericData("", city, now), Reason: reasonInvalidInput}, domain.ErrInvalidNeighborhood
	}
	if err := ctx.Err(); err != nil {
		return domain.Generic{Data: genericData(neighborhood, city, now), Reason: reasonCancelled}, err
	}

	if err := c.store.RecordAccess(ctx, neighborhood, city, now); err != nil {
		c.metrics.StoreError("record_access")
		slog.WarnContext(ctx, "Cache: failed to record access", "neighborhood", neighborhood, "error", err)
	}

	entry, err := c.store.GetCacheEntry(ctx, neighborhood)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheEntryNotFound) {
			c.metrics.StoreError("get_entry")
			slog.WarnContext(ctx, "Cache: read failed, refreshing", "neighborhood", neighborhood, "error", err)
		}
		entry = nil
	}
	if city == "" && entry != nil {
		city = entry.City
	}

	if !forceRefresh && entry.HasData() {
		age := entry.AgeDays(now)
		switch c.policy.Classify(now.Sub(entry.LastUpdated)) {
		case TierFresh:
			c.metrics.Lookup(string(TierFresh))
			return domain.Fresh{Data: *entry.Data, AgeDays: age}, nil
		case TierStale:
			c.metrics.Lookup(string(TierStale))
			queued := c.enqueueStale(ctx, entry, city)
			return domain.Stale{Data: *entry.Data, AgeDays: age, RefreshQueued: queued}, nil
		}
	}

	return c.refreshNow(ctx, neighborhood, city, forceRefresh, entry, now)
}

func (c *NeighborhoodCache) refreshNow(ctx context.Context, neighborhood, city string, force bool, entry *domain.CacheEntry, now time.Time) (domain.Envelope, error) {
	data, err := c.refresher.Refresh(ctx, RefreshRequest{
		Neighborhood: neighborhood,
		City:         city,
		Force:        force,
		Trigger:      TriggerSync,
	})
	if err == nil {
		c.metrics.Lookup(string(TierFresh))
		return domain.Fresh{Data: data, AgeDays: 0}, nil
	}

	reason := reasonRefreshFailed
	if errors.Is(err, domain.ErrRefreshInProgress) {
		reason = reasonRefreshInProgress
	}
	// Only caller cancellation is surfaced as an error.
	ctxErr := ctx.Err()
	if ctxErr != nil {
		reason = reasonCancelled
	}

	if entry.HasData() {
		c.metrics.Lookup("fallback")
		slog.WarnContext(ctx, "Cache: refresh failed, serving previous data", "neighborhood", neighborhood, "error", err)
		return domain.Fallback{Data: *entry.Data, AgeDays: entry.AgeDays(now), Reason: reason}, ctxErr
	}

	c.metrics.Lookup("generic")
	slog.WarnContext(ctx, "Cache: refresh failed, serving generic data", "neighborhood", neighborhood, "error", err)
	if reason == reasonRefreshFailed {
		reason = reasonNoData
	}
	return domain.Generic{Data: genericData(neighborhood, city, now), Reason: reason}, ctxErr
}

func (c *NeighborhoodCache) enqueueStale(ctx context.Context, entry *domain.CacheEntry, city string) bool {
	if c.queue == nil {
		return false
	}
	if !entry.RefreshClaimable(c.clock.Now().Add(-c.policy.RefreshLease)) {
		c.metrics.StaleEnqueue("in_flight")
		return false
	}

	debounced := false
	if c.debouncer != nil {
		ok, err := c.debouncer.ShouldEnqueue(ctx, entry.Neighborhood)
		if err != nil {
			slog.WarnContext(ctx, "Cache: debouncer unavailable, enqueueing anyway", "neighborhood", entry.Neighborhood, "error", err)
		} else if !ok {
			c.metrics.StaleEnqueue("debounced")
			return false
		}
		debounced = err == nil
	}

	if !c.queue.Enqueue(RefreshJob{Neighborhood: entry.Neighborhood, City: city}) {
		c.metrics.StaleEnqueue("rejected")
		// A rejected job gives its debounce window back.
		if debounced {
			if err := c.debouncer.Release(ctx, entry.Neighborhood); err != nil {
				slog.WarnContext(ctx, "Cache: failed to release debounce", "neighborhood", entry.Neighborhood, "error", err)
			}
		}
		return false
	}
	c.metrics.StaleEnqueue("queued")
	return true
}

func genericData(neighborhood, city string, now time.Time) domain.NeighborhoodData {
	return domain.NeighborhoodData{
		Neighborhood: neighborhood,
		City:         city,
		Analysis:     domain.EmptyAnalysis(neighborhood, now),
		LastUpdated:  now,
	}
}
