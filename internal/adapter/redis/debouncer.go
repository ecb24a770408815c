package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pscheid92/hoodpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// RefreshDebouncer lets one background refresh request per neighborhood through
// per interval, across every instance sharing the Redis server.
type RefreshDebouncer struct {
	rdb      *goredis.Client
	interval time.Duration
}

var _ domain.RefreshDebouncer = (*RefreshDebouncer)(nil)

func NewRefreshDebouncer(rdb *goredis.Client, interval time.Duration) *RefreshDebouncer {
	return &RefreshDebouncer{rdb: rdb, interval: interval}
}

// ShouldEnqueue returns true for the first caller in the interval and sets the
// debounce key; later callers get false until the key expires.
func (d *RefreshDebouncer) ShouldEnqueue(ctx context.Context, neighborhood string) (bool, error) {
	args := goredis.SetArgs{TTL: d.interval, Mode: "NX"}
	_, err := d.rdb.SetArgs(ctx, debounceKey(neighborhood), "1", args).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to set refresh debounce: %w", err)
	}
	return true, nil
}

// Release deletes the debounce key so the next request may enqueue.
func (d *RefreshDebouncer) Release(ctx context.Context, neighborhood string) error {
	if err := d.rdb.Del(ctx, debounceKey(neighborhood)).Err(); err != nil {
		return fmt.Errorf("failed to release refresh debounce: %w", err)
	}
	return nil
}

// debounceKey matches the store, which treats neighborhood names case-sensitively.
func debounceKey(neighborhood string) string {
	return "hoodpulse:refresh-debounce:" + strings.TrimSpace(neighborhood)
}
