// Package status keeps the latest processed result of every check in memory
// for the read-only surfaces (status API, metrics, WebSocket stream).
//
// Store is an outcome.Observer. Entries not refreshed within the TTL, for
// example because the check record was deleted, are hidden from List and
// removed by the Run eviction loop.
package status
