// Package storage holds raw-store helpers shared by the concrete backends.
package storage

import (
	"context"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// NoOpRawStore discards envelopes. It is selected with raw.provider=noop for
// dry runs where only the relational store matters.
type NoOpRawStore struct{}

// Exists always reports false.
func (NoOpRawStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

// Insert does nothing and reports that nothing was written.
func (NoOpRawStore) Insert(context.Context, crawler.RawEnvelope) (bool, error) {
	return false, nil
}
