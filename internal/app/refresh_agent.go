package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"github.com/pscheid92/hoodpulse/internal/sentiment"
)

const (
	ReasonRefreshed         = "refreshed"
	ReasonDataFresh         = "data_fresh"
	ReasonError             = "error"
	ReasonRefreshInProgress = "refresh_in_progress"

	summaryLimit = 200
)

type RefreshResult struct {
	Neighborhood string  `json:"neighborhood"`
	City         string  `json:"city,omitempty"`
	Refreshed    bool    `json:"refreshed"`
	Reason       string  `json:"reason"`
	AgeDays      int     `json:"age_days"`
	PostCount    int     `json:"post_count"`
	Score        float64 `json:"score"`
	Summary      string  `json:"summary,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type BatchResult struct {
	Refreshed int             `json:"refreshed"`
	Total     int             `json:"total"`
	Results   []RefreshResult `json:"results"`
}

// RefreshAgent decides what to refresh in batch mode and backs the on-demand
// ops entry point.
type RefreshAgent struct {
	store     domain.CacheRepository
	refresher NeighborhoodRefresher
	clock     clockwork.Clock
	skipAge   time.Duration
	lease     time.Duration
}

// NewRefreshAgent wires the agent. Entries younger than skipAge are not
// refreshed unless forced; refreshing entries whose claim is older than
// lease count as abandoned.
func NewRefreshAgent(store domain.CacheRepository, refresher NeighborhoodRefresher, clock clockwork.Clock, skipAge, lease time.Duration) *RefreshAgent {
	return &RefreshAgent{store: store, refresher: refresher, clock: clock, skipAge: skipAge, lease: lease}
}

// GetNeighborhoodsToRefresh returns up to limit idle, errored or abandoned
// neighborhoods, most urgent first.
func (a *RefreshAgent) GetNeighborhoodsToRefresh(ctx context.Context, limit int) ([]domain.NeighborhoodRef, error) {
	candidates, err := a.store.ListRefreshCandidates(ctx, a.clock.Now().Add(-a.lease))
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh candidates: %w", err)
	}

	ranked := rankRefreshCandidates(candidates, a.clock.Now())
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	refs := make([]domain.NeighborhoodRef, len(ranked))
	for i, c := range ranked {
		refs[i] = c.NeighborhoodRef
	}
	return refs, nil
}

// rankRefreshCandidates orders by age bucket, then access count descending, then name.
func rankRefreshCandidates(candidates []domain.RefreshCandidate, now time.Time) []domain.RefreshCandidate {
	ranked := append([]domain.RefreshCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		bi, bj := ageBucket(ranked[i], now), ageBucket(ranked[j], now)
		if bi != bj {
			return bi < bj
		}
		if ranked[i].AccessCount != ranked[j].AccessCount {
			return ranked[i].AccessCount > ranked[j].AccessCount
		}
		return ranked[i].Neighborhood < ranked[j].Neighborhood
	})
	return ranked
}

// ageBucket: 0 for never refreshed or older than 30 days, 1 for 14-30 days, 2 otherwise.
func ageBucket(c domain.RefreshCandidate, now time.Time) int {
	if c.LastUpdated.IsZero() {
		return 0
	}
	age := domain.AgeDays(c.LastUpdated, now)
	switch {
	case age > 30:
		return 0
	case age >= 14:
		return 1
	default:
		return 2
	}
}

// RefreshBatch refreshes the top candidates one after another. A failed item
// is recorded in its result and never stops the batch.
func (a *RefreshAgent) RefreshBatch(ctx context.Context, limit int) BatchResult {
	refs, err := a.GetNeighborhoodsToRefresh(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "Refresh agent: candidate lookup failed", "error", err)
		return BatchResult{Results: []RefreshResult{}}
	}

	result := BatchResult{Total: len(refs), Results: make([]RefreshResult, 0, len(refs))}
	for _, ref := range refs {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "Refresh agent: batch cancelled", "done", len(result.Results), "total", len(refs))
			break
		}
		r := a.RefreshSentimentForZip(ctx, ref.Neighborhood, ref.City, false)
		if r.Refreshed {
			result.Refreshed++
		}
		result.Results = append(result.Results, r)
	}

	slog.InfoContext(ctx, "Refresh agent: batch complete", "refreshed", result.Refreshed, "total", result.Total)
	return result
}

// RefreshSentimentForZip always returns a populated result; failures end up in Reason and Error.
func (a *RefreshAgent) RefreshSentimentForZip(ctx context.Context, key, city string, force bool) (res RefreshResult) {
	key = strings.TrimSpace(key)
	res = RefreshResult{Neighborhood: key, City: city}

	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "Refresh agent: panic during refresh", "neighborhood", key, "panic", p)
			res.Refreshed = false
			res.Reason = ReasonError
			res.Error = fmt.Sprint(p)
		}
	}()

	if key == "" {
		res.Reason = ReasonError
		res.Error = domain.ErrInvalidNeighborhood.Error()
		return res
	}

	entry, err := a.store.GetCacheEntry(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrCacheEntryNotFound) {
		slog.WarnContext(ctx, "Refresh agent: cache read failed", "neighborhood", key, "error", err)
	}
	if err == nil {
		if res.City == "" {
			res.City = entry.City
		}
		if entry.HasData() {
			age := entry.AgeDays(a.clock.Now())
			if !force && a.clock.Since(entry.LastUpdated) < a.skipAge {
				fill(&res, *entry.Data)
				res.AgeDays = age
				res.Reason = ReasonDataFresh
				return res
			}
		}
	}

	data, err := a.refresher.Refresh(ctx, RefreshRequest{
		Neighborhood: key,
		City:         res.City,
		Force:        force,
		Trigger:      TriggerAgent,
	})
	if err != nil {
		res.Reason = ReasonError
		if errors.Is(err, domain.ErrRefreshInProgress) {
			res.Reason = ReasonRefreshInProgress
		}
		res.Error = err.Error()
		return res
	}

	fill(&res, data)
	res.Refreshed = true
	res.Reason = ReasonRefreshed
	res.AgeDays = 0
	return res
}

func fill(res *RefreshResult, data domain.NeighborhoodData) {
	res.PostCount = data.PostCount
	res.Score = data.Analysis.OverallSentiment.Score
	res.Summary = sentiment.Truncate(sentiment.Summarize(data.Analysis), summaryLimit)
}
