// Package crawler defines the domain model shared by the harvesting engine:
// platforms, job and company records, freshness verdicts, pagination cursors,
// persistence outcomes, and the capability interfaces implemented by source
// adapters and stores.
package crawler
