// Package api hosts the operator HTTP surface of the harvester. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sources and /v1/sessions for configured platforms and the
//     latest session report of each.
//   - POST /v1/sessions/run to start a pass out of schedule (API key guarded
//     when auth is enabled).
//   - GET /v1/runs and /v1/runs/{run_id} for persisted run history.
package api
