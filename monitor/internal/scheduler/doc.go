// Package scheduler drives the two periodic cycles of the monitor.
//
// Check cycle (default every 60s): list the ids in the checks namespace and
// start one task per id. A task reads the record, validates it, probes the
// target and hands the outcome to the processor. Ids whose previous task is
// still running are skipped for the cycle, so two tasks never race on the
// same record. Tasks are detached from cycle cancellation: only the probe
// timeout bounds an in-flight task.
//
// Rotation cycle (default every 24h): list the live logs and rotate each
// into an artifact named <id>-<unix millis>. Rotated artifacts are offered
// to an optional Archiver, and an optional Pruner trims result history.
//
// Both cycles run once immediately on Start and then on their tickers until
// the context is cancelled. Every error stays with the record or log that
// caused it.
package scheduler
