// Package server wires coven-chime together and runs it.
//
// New opens the SQLite store, builds the sound service and the web handler,
// and mounts them on a single http.ServeMux alongside:
//
//   - GET /health: liveness, always "OK"
//   - GET /health/ready: 503 while the database is unreachable
//   - GET <metrics.path>: Prometheus exposition, when metrics are enabled
//
// Every request passes through requestLogger, which assigns an
// X-Request-ID and writes one access log line.
//
// When server.grpc_addr is set (or tailscale is enabled) a gRPC server
// exposing grpc.health.v1 runs next to HTTP. Its "coven.chime" status
// follows database reachability, refreshed by the maintenance sweep that
// also purges expired sessions.
//
// With tailscale enabled, listeners are created on the tailnet through
// tsnet instead of TCP: HTTP on :80 and gRPC on :50051.
package server
