// Package memory contains an in-memory batch publisher for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// Publisher records published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []crawler.BatchEvent
	err    error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent Publish calls return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, evt crawler.BatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	evt.JobIDs = append([]string(nil), evt.JobIDs...)
	p.events = append(p.events, evt)
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []crawler.BatchEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.BatchEvent, len(p.events))
	copy(out, p.events)
	return out
}
