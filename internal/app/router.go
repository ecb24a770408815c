package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

// prior is the success rate assumed for a source with no history.
const prior = 0.5

const (
	StrategyRandom      = "random"
	StrategyPrimary     = "primary"
	StrategySuccessRate = "success_rate"
)

// SelectionStrategy picks one of a region's candidate sources.
type SelectionStrategy interface {
	Select(ctx context.Context, region string, candidates []string) (string, error)
}

// NewStrategy builds the named strategy. seed only affects the random strategy.
func NewStrategy(name string, tracker domain.SourceTracker, seed uint64) (SelectionStrategy, error) {
	switch name {
	case StrategyRandom:
		return NewRandomStrategy(seed), nil
	case StrategyPrimary:
		return PrimaryStrategy{}, nil
	case StrategySuccessRate, "":
		return NewSuccessRateStrategy(tracker), nil
	default:
		return nil, fmt.Errorf("unknown router strategy %q", name)
	}
}

// RandomStrategy chooses uniformly. Used as an exploration baseline.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomStrategy(seed uint64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *RandomStrategy) Select(_ context.Context, _ string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", domain.ErrUnknownSource
	}
	s.mu.Lock()
	i := s.rng.IntN(len(candidates))
	s.mu.Unlock()
	return candidates[i], nil
}

// PrimaryStrategy always picks the first configured source.
type PrimaryStrategy struct{}

func (PrimaryStrategy) Select(_ context.Context, _ string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", domain.ErrUnknownSource
	}
	return candidates[0], nil
}

// SuccessRateStrategy picks the candidate with the highest observed success
// ratio. Unseen sources count as 0.5; ties go to the earlier candidate.
type SuccessRateStrategy struct {
	tracker domain.SourceTracker
}

func NewSuccessRateStrategy(tracker domain.SourceTracker) *SuccessRateStrategy {
	return &SuccessRateStrategy{tracker: tracker}
}

func (s *SuccessRateStrategy) Select(ctx context.Context, region string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", domain.ErrUnknownSource
	}

	stats, err := s.tracker.ListSourceStats(ctx, region)
	if err != nil {
		return "", fmt.Errorf("failed to load source stats: %w", err)
	}
	bySource := make(map[string]domain.SourceStats, len(stats))
	for _, st := range stats {
		bySource[st.Source] = st
	}

	best, bestRate := candidates[0], -1.0
	for _, c := range candidates {
		rate := bySource[c].SuccessRate(prior)
		if rate > bestRate {
			best, bestRate = c, rate
		}
	}
	return best, nil
}

// Router chooses which upstream source to crawl for a location and learns from
// reported outcomes. All state lives in the source tracker.
type Router struct {
	regions  *RegionTable
	strategy SelectionStrategy
	tracker  domain.SourceTracker
	clock    clockwork.Clock
	metrics  *metrics.RouterMetrics

	// available is nil when every region source may be picked.
	available map[string]bool
	fallback  []string
}

type RouterOption func(*Router)

// WithAvailableSources restricts picks to sources the crawler can serve. A
// region without any of them falls back to all available sources in order.
func WithAvailableSources(names []string) RouterOption {
	return func(r *Router) {
		r.available = make(map[string]bool, len(names))
		r.fallback = nil
		for _, n := range names {
			if !r.available[n] {
				r.available[n] = true
				r.fallback = append(r.fallback, n)
			}
		}
	}
}

// NewRouter wires a router. m may be nil.
func NewRouter(regions *RegionTable, strategy SelectionStrategy, tracker domain.SourceTracker, clock clockwork.Clock, m *metrics.RouterMetrics, opts ...RouterOption) *Router {
	if regions == nil {
		regions = DefaultRegionTable()
	}
	r := &Router{regions: regions, strategy: strategy, tracker: tracker, clock: clock, metrics: m}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Region(key string) string {
	return r.regions.Resolve(key)
}

// Candidates returns the sources ChooseSource may pick for key. It is empty
// only when no source is available at all.
func (r *Router) Candidates(key string) []string {
	return r.candidates(r.regions.Resolve(key))
}

func (r *Router) candidates(region string) []string {
	sources := r.regions.Sources(region)
	if r.available == nil {
		return sources
	}
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if r.available[s] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = append(out, r.fallback...)
	}
	return out
}

// ChooseSource never fails: a strategy error degrades to the first candidate.
// It returns "" only when no source is available.
func (r *Router) ChooseSource(ctx context.Context, key string) string {
	region := r.regions.Resolve(key)
	candidates := r.candidates(region)
	if len(candidates) == 0 {
		slog.WarnContext(ctx, "Router: no available source", "key", key, "region", region)
		return ""
	}

	source, err := r.strategy.Select(ctx, region, candidates)
	if err != nil {
		slog.WarnContext(ctx, "Router: strategy failed, using primary source", "region", region, "error", err)
		source = candidates[0]
	}

	r.metrics.Pick(region, source)
	slog.DebugContext(ctx, "Router: source chosen", "key", key, "region", region, "source", source)
	return source
}

// ReportResult records one crawl outcome for the key's region.
func (r *Router) ReportResult(ctx context.Context, key, source string, success bool) error {
	if source == "" {
		return domain.ErrUnknownSource
	}
	region := r.regions.Resolve(key)
	if err := r.tracker.RecordSourceResult(ctx, region, source, success, r.clock.Now()); err != nil {
		return fmt.Errorf("failed to report source result: %w", err)
	}
	r.metrics.Result(source, success)
	return nil
}
