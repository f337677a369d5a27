// Package progress carries harvest session milestones from workers to sinks.
// Workers emit without blocking; a hub batches events on a background
// goroutine and hands each batch to every registered sink (run history,
// Prometheus, logs).
package progress
