// Package app provides the application service layer.
//
// Orchestrates use cases: neighborhood lookups behind the staleness policy, synchronous
// and background refreshes, batch refresh scheduling, source routing and reputation scoring.
// Sits between HTTP handlers and domain repositories. Depends on domain interfaces, not concrete implementations.
package app
