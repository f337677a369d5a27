// Package sinks implements progress consumers: run history persistence,
// Prometheus session metrics, and structured logs.
package sinks
