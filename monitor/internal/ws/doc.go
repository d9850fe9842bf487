// Package ws streams check status to WebSocket clients.
//
// Hub sends the current snapshot to a client as soon as it connects and to
// every client on each tick of its interval. It is also an outcome observer:
// a result that raised an alert is pushed to all clients immediately instead
// of waiting for the next tick.
//
// Messages:
//
//	{"event": "snapshot", "data": { same schema as GET /api/v1/snapshot }}
//	{"event": "alert",    "data": { check_id, target, state, previous_state, alert_id, time }}
//
// The upgrader accepts all origins; restrict them at the reverse proxy.
package ws
