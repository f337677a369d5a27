// Package source wires the per-platform adapters behind crawler.SourceAdapter.
package source

import (
	"context"
	"fmt"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/httpclient"
)

// Fetcher is the subset of the HTTP client adapters depend on.
type Fetcher interface {
	Fetch(ctx context.Context, req httpclient.Request) (*httpclient.Response, error)
}

// Endpoints overrides the hosts an adapter talks to. Empty fields keep the
// production hosts.
type Endpoints struct {
	Web    string
	Mobile string
	API    string
}

// Factory builds an adapter bound to one session's fetcher.
type Factory func(f Fetcher, ep Endpoints) crawler.SourceAdapter

var factories = map[crawler.Platform]Factory{}

// Register makes a platform available to New. It panics on duplicates.
func Register(p crawler.Platform, f Factory) {
	if _, dup := factories[p]; dup {
		panic(fmt.Sprintf("source %s registered twice", p))
	}
	factories[p] = f
}

// New builds the adapter for p.
func New(p crawler.Platform, f Fetcher, ep Endpoints) (crawler.SourceAdapter, error) {
	factory, ok := factories[p]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform %s", p)
	}
	return factory(f, ep), nil
}

// Or returns v unless it is empty.
func Or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
