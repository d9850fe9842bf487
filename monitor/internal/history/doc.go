// Package history stores every processed probe result in SQLite so the
// status API can serve per-check history and uptime over arbitrary windows.
//
// DB is an outcome.Observer: insert failures are logged and never affect
// check processing. Rows older than the configured retention are removed by
// Prune, which the scheduler calls on each rotation cycle.
package history
