// Package healthsrv exposes check states over the standard gRPC health
// protocol (grpc.health.v1.Health).
//
// The empty service name reports the monitor itself and is SERVING while it
// runs. Each check is published under ServiceName(id): SERVING when up,
// NOT_SERVING when down and UNKNOWN before its first probe. Clients can Watch
// a check to get pushed transitions.
package healthsrv
