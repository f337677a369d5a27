// Command harvester crawls Korean job boards incrementally.
//
// Architecture overview:
//   - Dispatcher: one session per enabled source (WANTED, SARAMIN, JOBKOREA) runs concurrently; a
//     failed or panicking session never affects its siblings. `serve` repeats passes every
//     schedule.interval; `crawl` runs one pass and prints the session reports.
//   - Sessions: each owns an HTTP client with a request gate, optional token-bucket pacing and
//     exponential backoff on transient transport faults. Redirects, 404 and 503 are soft skips.
//   - Freshness: before fetching, every listed id is checked against the relational store; only
//     unseen or stale postings are fetched. A run of empty pages means the source has caught up.
//   - Persistence: each page is written in one relational transaction (Postgres or memory) and
//     archived per item in the raw store (GCS, Redis, local disk, memory or none). Committed
//     batches can be announced on Pub/Sub or Kafka.
//   - Observability: zap logs, Prometheus metrics on /metrics, and a progress hub that records
//     run history served under /v1/runs.
//
// Quick checklist:
//   - Configure with a file (--config) or HARVESTER_* env vars, e.g. HARVESTER_DB_DSN,
//     HARVESTER_RAW_PROVIDER=gcs, HARVESTER_RAW_GCS_BUCKET, HARVESTER_SOURCES_ENABLED=wanted,saramin.
//   - One pass: go run ./cmd/harvester crawl --sources wanted
//   - Service: go run ./cmd/harvester serve (listens on server.port or PORT).
package main
