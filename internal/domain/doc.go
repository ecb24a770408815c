// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (post.go, analysis.go, cache.go, envelope.go, etc.)
// with shared types and cross-cutting interfaces. No storage or transport code - just contracts.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
