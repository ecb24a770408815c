package domain

import "context"

type CrawlRequest struct {
	Neighborhood string
	City         string
	// Source, when set, restricts the crawl to that source.
	Source       string
	ForceRefresh bool
}

// Crawler fetches posts from upstream sources. It may return a partial result
// with a nil error when some sources failed.
type Crawler interface {
	CrawlNeighborhood(ctx context.Context, req CrawlRequest) ([]Post, error)
}
