// Package freshness decides which identifiers need fetching this cycle.
package freshness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/metrics"
)

// Oracle classifies identifiers as new, renew or pass against their last
// crawl time. It only reads.
type Oracle struct {
	lookup      crawler.FreshnessLookup
	clock       crawler.Clock
	parallelism int
	logger      *zap.Logger
}

// New constructs an Oracle. parallelism bounds concurrent lookups in Partition.
func New(lookup crawler.FreshnessLookup, clock crawler.Clock, parallelism int, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism <= 0 {
		parallelism = 8
	}
	return &Oracle{lookup: lookup, clock: clock, parallelism: parallelism, logger: logger}
}

// Classify returns the verdict for one identifier. A record crawled exactly
// expiry ago is stale.
func (o *Oracle) Classify(
	ctx context.Context,
	entity crawler.Entity,
	platform crawler.Platform,
	id string,
	expiry time.Duration,
) (crawler.Verdict, error) {
	last, ok, err := o.lookup.LastCrawledAt(ctx, entity, platform, id)
	if err != nil {
		return "", fmt.Errorf("lookup %s %s/%s: %w", entity, platform, id, err)
	}
	verdict := crawler.VerdictPass
	switch {
	case !ok:
		verdict = crawler.VerdictNew
	case !last.After(o.clock.Now().Add(-expiry)):
		verdict = crawler.VerdictRenew
	}
	metrics.ObserveVerdict(string(platform), string(entity), string(verdict))
	return verdict, nil
}

// Decision is the verdict for one candidate.
type Decision struct {
	ID      string
	Verdict crawler.Verdict
}

// Partition is the outcome of classifying one listing page.
type Partition struct {
	Targets []Decision
	Passed  []string
	Failed  []string
}

// TargetIDs returns the identifiers to fetch, in listing order.
func (p Partition) TargetIDs() []string {
	ids := make([]string, 0, len(p.Targets))
	for _, d := range p.Targets {
		ids = append(ids, d.ID)
	}
	return ids
}

// Partition classifies every candidate concurrently and preserves the
// listing order. A failed lookup excludes only that identifier.
func (o *Oracle) Partition(
	ctx context.Context,
	entity crawler.Entity,
	platform crawler.Platform,
	ids []string,
	expiry time.Duration,
) (Partition, error) {
	verdicts := make([]crawler.Verdict, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("lookup %s panicked: %v", id, r)
				}
			}()
			verdicts[i], errs[i] = o.Classify(gctx, entity, platform, id, expiry)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Partition{}, fmt.Errorf("partition %s: %w", platform, err)
	}

	var out Partition
	for i, id := range ids {
		switch {
		case errs[i] != nil:
			o.logger.Warn("freshness lookup failed; excluding identifier",
				zap.String("platform", string(platform)),
				zap.String("entity", string(entity)),
				zap.String("id", id),
				zap.Error(errs[i]),
			)
			out.Failed = append(out.Failed, id)
		case verdicts[i].NeedsFetch():
			out.Targets = append(out.Targets, Decision{ID: id, Verdict: verdicts[i]})
		default:
			out.Passed = append(out.Passed, id)
		}
	}
	return out, nil
}
