// Package api implements the read-only HTTP status API.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /api/v1/health                  overall state and per-state counts
//	GET /api/v1/checks                  latest result for every live check
//	GET /api/v1/checks/{id}             one check; 404 if unknown or stale
//	GET /api/v1/checks/{id}/history     stored results, newest first (?limit=N)
//	GET /api/v1/logs                    live log ids (?compressed=true adds artifacts)
//	GET /api/v1/snapshot                all live checks plus generated_at
//	GET /metrics                        Prometheus text exposition
//
// All JSON endpoints respond with Content-Type: application/json and return
// 405 for non-GET methods. When deps.Auth is set it guards /api/v1 and the
// stream endpoint, but not /metrics.
package api
