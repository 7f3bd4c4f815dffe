// Package api implements the devicelink status HTTP server.
//
// Endpoints:
//   - GET /metrics: Prometheus exposition (when a metrics handler is supplied)
//   - GET /healthz: 200 while the MQTT link is connected, 503 otherwise
//   - GET /status: JSON snapshot of the link, subscriptions and runtime
//   - GET /events: paginated link journal (kind, topic, since, limit, offset)
//
// The server is read-only and has no authentication; bind it to a loopback
// or management interface.
//
// # Graceful Degradation
//
// The journal and metrics are optional. Without them /events answers 500
// and /metrics 404; /healthz and /status keep working.
package api
