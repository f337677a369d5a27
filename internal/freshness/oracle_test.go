package freshness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeLookup struct {
	mu      sync.Mutex
	records map[string]time.Time
	fail    map[string]error
	panics  map[string]bool
	calls   []string
}

func (f *fakeLookup) LastCrawledAt(
	_ context.Context,
	entity crawler.Entity,
	_ crawler.Platform,
	id string,
) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(entity)+":"+id)
	if f.panics[id] {
		panic("corrupt row " + id)
	}
	if err, ok := f.fail[id]; ok {
		return time.Time{}, false, err
	}
	ts, ok := f.records[id]
	return ts, ok, nil
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := 7 * 24 * time.Hour
	lookup := &fakeLookup{records: map[string]time.Time{
		"boundary": now.Add(-expiry),
		"inside":   now.Add(-expiry).Add(time.Nanosecond),
		"old":      now.Add(-30 * 24 * time.Hour),
	}}
	o := New(lookup, fakeClock{now: now}, 2, zap.NewNop())
	ctx := context.Background()

	cases := map[string]crawler.Verdict{
		"missing":  crawler.VerdictNew,
		"boundary": crawler.VerdictRenew,
		"inside":   crawler.VerdictPass,
		"old":      crawler.VerdictRenew,
	}
	for id, want := range cases {
		got, err := o.Classify(ctx, crawler.EntityJob, crawler.PlatformWanted, id, expiry)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestClassifyLookupError(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{fail: map[string]error{"x": errors.New("db down")}}
	o := New(lookup, fakeClock{now: time.Now()}, 1, nil)

	_, err := o.Classify(context.Background(), crawler.EntityCompany, crawler.PlatformSaramin, "x", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestPartitionPreservesOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lookup := &fakeLookup{
		records: map[string]time.Time{
			"b": now.Add(-time.Hour),
			"c": now.Add(-200 * time.Hour),
		},
		fail: map[string]error{"d": errors.New("timeout")},
	}
	o := New(lookup, fakeClock{now: now}, 3, zap.NewNop())

	part, err := o.Partition(context.Background(), crawler.EntityJob, crawler.PlatformJobKorea,
		[]string{"a", "b", "c", "d", "e"}, 168*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c", "e"}, part.TargetIDs())
	assert.Equal(t, crawler.VerdictNew, part.Targets[0].Verdict)
	assert.Equal(t, crawler.VerdictRenew, part.Targets[1].Verdict)
	assert.Equal(t, []string{"b"}, part.Passed)
	assert.Equal(t, []string{"d"}, part.Failed)
	assert.Len(t, lookup.calls, 5)
}

func TestPartitionExcludesPanickingLookup(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lookup := &fakeLookup{panics: map[string]bool{"bad": true}}
	o := New(lookup, fakeClock{now: now}, 2, zap.NewNop())

	part, err := o.Partition(context.Background(), crawler.EntityJob, crawler.PlatformWanted,
		[]string{"a", "bad", "b"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, part.TargetIDs())
	assert.Equal(t, []string{"bad"}, part.Failed)
}

func TestPartitionCanceled(t *testing.T) {
	t.Parallel()

	o := New(&fakeLookup{}, fakeClock{now: time.Now()}, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Partition(ctx, crawler.EntityJob, crawler.PlatformWanted, []string{"a"}, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
