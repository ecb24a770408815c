package domain

import "errors"

var (
	ErrCacheEntryNotFound  = errors.New("cache entry not found")
	ErrReputationNotFound  = errors.New("reputation record not found")
	ErrAnalysisNotFound    = errors.New("analysis not found")
	ErrRefreshInProgress   = errors.New("refresh already in progress")
	ErrCrawlFailed         = errors.New("crawl failed")
	ErrNoPosts             = errors.New("no posts available")
	ErrEmptyPost           = errors.New("post has no text")
	ErrInvalidNeighborhood = errors.New("neighborhood is required")
	ErrUnknownSource       = errors.New("unknown source")
)
