package domain

import (
	"context"
)

// RefreshDebouncer limits how often a background refresh may be enqueued for one neighborhood.
type RefreshDebouncer interface {
	// ShouldEnqueue returns true at most once per debounce window for a neighborhood.
	ShouldEnqueue(ctx context.Context, neighborhood string) (bool, error)
	// Release gives back a window whose refresh was never enqueued.
	Release(ctx context.Context, neighborhood string) error
}
