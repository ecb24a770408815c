package domain

import "context"

type PostRepository interface {
	// SavePosts inserts new posts and ignores ones already stored. It returns the number inserted.
	SavePosts(ctx context.Context, posts []Post) (int, error)
	// ListPosts returns a neighborhood's posts in a stable order.
	ListPosts(ctx context.Context, neighborhood string) ([]Post, error)
}

type AnalysisRepository interface {
	GetAnalysis(ctx context.Context, neighborhood string) (*AggregatedAnalysis, error)
}

// Store is the single persistent resource shared by every component.
type Store interface {
	PostRepository
	AnalysisRepository
	CacheRepository
	SourceTracker
	ReputationRepository

	Ping(ctx context.Context) error
	Close() error
}
