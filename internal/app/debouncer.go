package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hoodpulse/internal/domain"
)

const debouncePruneSize = 1024

// MemoryDebouncer is the single-process RefreshDebouncer.
type MemoryDebouncer struct {
	clock    clockwork.Clock
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

var _ domain.RefreshDebouncer = (*MemoryDebouncer)(nil)

func NewMemoryDebouncer(clock clockwork.Clock, interval time.Duration) *MemoryDebouncer {
	return &MemoryDebouncer{clock: clock, interval: interval, last: make(map[string]time.Time)}
}

func (d *MemoryDebouncer) ShouldEnqueue(_ context.Context, neighborhood string) (bool, error) {
	key := strings.TrimSpace(neighborhood)
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.last[key]; ok && now.Before(at.Add(d.interval)) {
		return false, nil
	}
	if len(d.last) >= debouncePruneSize {
		d.prune(now)
	}
	d.last[key] = now
	return true, nil
}

func (d *MemoryDebouncer) Release(_ context.Context, neighborhood string) error {
	d.mu.Lock()
	delete(d.last, strings.TrimSpace(neighborhood))
	d.mu.Unlock()
	return nil
}

func (d *MemoryDebouncer) prune(now time.Time) {
	for k, at := range d.last {
		if !now.Before(at.Add(d.interval)) {
			delete(d.last, k)
		}
	}
}
