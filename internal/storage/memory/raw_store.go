package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// RawStore keeps raw envelopes keyed by source URL.
type RawStore struct {
	mu   sync.RWMutex
	data map[string]crawler.RawEnvelope
}

// NewRawStore creates a new in-memory raw store.
func NewRawStore() *RawStore {
	return &RawStore{data: make(map[string]crawler.RawEnvelope)}
}

// Exists reports whether an envelope for sourceURL is stored.
func (s *RawStore) Exists(_ context.Context, sourceURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[sourceURL]
	return ok, nil
}

// Insert stores the envelope unless one already exists for its URL.
func (s *RawStore) Insert(_ context.Context, envelope crawler.RawEnvelope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[envelope.SourceURL]; ok {
		return false, nil
	}
	s.data[envelope.SourceURL] = envelope
	return true, nil
}

// Get returns the stored envelope for sourceURL.
func (s *RawStore) Get(sourceURL string) (crawler.RawEnvelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.data[sourceURL]
	return env, ok
}

// Len returns the number of stored envelopes.
func (s *RawStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
