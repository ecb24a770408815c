package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"github.com/pscheid92/hoodpulse/internal/sentiment"
	"golang.org/x/sync/errgroup"
)

const (
	maxVolumeBonus     = 20.0
	volumePerPost      = 0.5
	maxPenaltyDays     = 30
	penaltyPerDay      = 0.5
	compareConcurrency = 4
	noDataMessage      = "No data available"
)

// ReputationStore is what the index reads and writes.
type ReputationStore interface {
	FindCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error)
	domain.ReputationRepository
}

type Comparison struct {
	Neighborhoods  []domain.ReputationRecord `json:"neighborhoods"`
	Count          int                       `json:"count"`
	AverageScore   float64                   `json:"average_score"`
	Top            *domain.ReputationRecord  `json:"top_neighborhood"`
	ComparisonDate time.Time                 `json:"comparison_date"`
}

// ReputationIndex folds cached analyses into a 0-100 score. Stored snapshots
// are a cache; every score can be recomputed from the neighborhood cache.
type ReputationIndex struct {
	store          ReputationStore
	clock          clockwork.Clock
	snapshotMaxAge time.Duration
}

func NewReputationIndex(store ReputationStore, clock clockwork.Clock, snapshotMaxAge time.Duration) *ReputationIndex {
	return &ReputationIndex{store: store, clock: clock, snapshotMaxAge: snapshotMaxAge}
}

// ReputationScore applies the index formula. ageDays < 0 counts as 0.
func ReputationScore(sentimentScore float64, postCount, ageDays int) (float64, domain.ReputationComponents) {
	base := sentimentScore*50 + 50
	volume := math.Min(maxVolumeBonus, float64(postCount)*volumePerPost)
	penalty := float64(min(maxPenaltyDays, max(0, ageDays))) * penaltyPerDay

	score := math.Max(0, math.Min(100, base+volume-penalty))
	return round1(score), domain.ReputationComponents{
		BaseScore:        round1(base),
		VolumeBonus:      round1(volume),
		FreshnessPenalty: round1(penalty),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ComputeReputationIndex scores key, a neighborhood or city. Missing data
// yields a zero score with a message rather than an error.
func (r *ReputationIndex) ComputeReputationIndex(ctx context.Context, key string) (domain.ReputationRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ReputationRecord{}, domain.ErrInvalidNeighborhood
	}
	now := r.clock.Now()

	entry, err := r.store.FindCacheEntry(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ReputationRecord{}, ctxErr
		}
		if !errors.Is(err, domain.ErrCacheEntryNotFound) {
			slog.WarnContext(ctx, "Reputation: cache read failed", "key", key, "error", err)
			return noData(key, now), nil
		}
		rec := noData(key, now)
		r.save(ctx, rec)
		return rec, nil
	}
	if !entry.HasData() {
		rec := noData(key, now)
		r.save(ctx, rec)
		return rec, nil
	}

	data := entry.Data
	age := entry.AgeDays(now)
	sentimentScore := data.Analysis.OverallSentiment.Score
	score, components := ReputationScore(sentimentScore, data.PostCount, age)

	rec := domain.ReputationRecord{
		ZipCode:        key,
		Neighborhood:   entry.Neighborhood,
		City:           entry.City,
		IndexScore:     score,
		DataVolume:     data.PostCount,
		DataFreshness:  &age,
		SentimentScore: sentimentScore,
		LastUpdated:    now,
		Components:     components,
		Summary:        sentiment.Truncate(sentiment.Summarize(data.Analysis), summaryLimit),
	}
	r.save(ctx, rec)
	return rec, nil
}

func noData(key string, now time.Time) domain.ReputationRecord {
	return domain.ReputationRecord{
		ZipCode:      key,
		Neighborhood: key,
		LastUpdated:  now,
		Message:      noDataMessage,
	}
}

func (r *ReputationIndex) save(ctx context.Context, rec domain.ReputationRecord) {
	if err := r.store.SaveReputation(ctx, rec); err != nil {
		slog.WarnContext(ctx, "Reputation: failed to save snapshot", "key", rec.ZipCode, "error", err)
	}
}

// CompareNeighborhoods scores keys concurrently, reusing recent snapshots, and
// ranks them by score descending then key.
func (r *ReputationIndex) CompareNeighborhoods(ctx context.Context, keys []string) (Comparison, error) {
	keys = uniqueKeys(keys)
	records := make([]domain.ReputationRecord, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compareConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			rec, err := r.resolve(gctx, key)
			if err != nil {
				return fmt.Errorf("failed to score %s: %w", key, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].IndexScore != records[j].IndexScore {
			return records[i].IndexScore > records[j].IndexScore
		}
		return records[i].ZipCode < records[j].ZipCode
	})

	cmp := Comparison{
		Neighborhoods:  records,
		Count:          len(records),
		ComparisonDate: r.clock.Now(),
	}
	if len(records) > 0 {
		total := 0.0
		for _, rec := range records {
			total += rec.IndexScore
		}
		cmp.AverageScore = round1(total / float64(len(records)))
		top := records[0]
		cmp.Top = &top
	}
	return cmp, nil
}

func (r *ReputationIndex) resolve(ctx context.Context, key string) (domain.ReputationRecord, error) {
	stored, err := r.store.GetReputation(ctx, key)
	switch {
	case err == nil && r.clock.Since(stored.LastUpdated) < r.snapshotMaxAge:
		return *stored, nil
	case err != nil && !errors.Is(err, domain.ErrReputationNotFound):
		slog.WarnContext(ctx, "Reputation: snapshot read failed, recomputing", "key", key, "error", err)
	}
	return r.ComputeReputationIndex(ctx, key)
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
