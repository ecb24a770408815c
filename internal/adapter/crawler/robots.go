package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/temoto/robotstxt"
)

const robotsTTL = 6 * time.Hour

type robotsEntry struct {
	data    *robotstxt.RobotsData
	fetched time.Time
}

// robotsCache fetches robots.txt once per host and TTL. Fetch failures allow crawling.
type robotsCache struct {
	client *http.Client
	clock  clockwork.Clock

	mu    sync.Mutex
	hosts map[string]robotsEntry
}

func newRobotsCache(client *http.Client, clock clockwork.Clock) *robotsCache {
	return &robotsCache{client: client, clock: clock, hosts: make(map[string]robotsEntry)}
}

func (r *robotsCache) Allowed(ctx context.Context, u *url.URL, userAgent string) bool {
	data := r.lookup(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.EscapedPath(), userAgent)
}

func (r *robotsCache) lookup(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := u.Scheme + "://" + u.Host
	now := r.clock.Now()

	r.mu.Lock()
	e, ok := r.hosts[host]
	r.mu.Unlock()
	if ok && now.Sub(e.fetched) < robotsTTL {
		return e.data
	}

	data := r.fetch(ctx, host)
	r.mu.Lock()
	r.hosts[host] = robotsEntry{data: data, fetched: now}
	r.mu.Unlock()
	return data
}

func (r *robotsCache) fetch(ctx context.Context, host string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "Crawler: robots.txt unavailable, allowing", "host", host, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		slog.DebugContext(ctx, "Crawler: robots.txt unparseable, allowing", "host", host, "error", err)
		return nil
	}
	return data
}
