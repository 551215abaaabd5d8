// Package api hosts the optional status HTTP server for a sync run. Routes:
//   - GET /healthz for liveness probes.
//   - GET /status for a JSON snapshot of the run dashboard.
//   - GET /metrics for Prometheus scraping of the run registry.
package api
