// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adxyz/adserve/cache"
	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/metacache"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/store"
)

var errDurableDown = errors.New("durable store down")

// fakeStore serves a fixed catalog and counts durable queries. A nonzero
// failLoadAt makes that numbered Campaigns call fail once.
type fakeStore struct {
	mu         sync.Mutex
	catalog    map[int64]core.Campaign
	order      []int64
	topCalls   atomic.Int64
	loadCalls  atomic.Int64
	failLoadAt int64
}

func newFakeStore(cs ...core.Campaign) *fakeStore {
	f := &fakeStore{catalog: make(map[int64]core.Campaign)}
	for _, c := range cs {
		f.catalog[c.ID] = c
		f.order = append(f.order, c.ID)
	}
	return f
}

func (f *fakeStore) CampaignIDs(_ context.Context, offset, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.order) {
		return nil, nil
	}
	end := min(offset+limit, len(f.order))
	return append([]int64(nil), f.order[offset:end]...), nil
}

func (f *fakeStore) Campaigns(_ context.Context, ids []int64) ([]core.Campaign, error) {
	if n := f.loadCalls.Add(1); n == f.failLoadAt {
		return nil, errDurableDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Campaign, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.catalog[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) TrySpend(context.Context, int64, int64) (int64, bool, error) {
	return 0, false, nil
}

func (f *fakeStore) TopCampaignIDs(_ context.Context, key core.CoarseKey, limit int) ([]int64, error) {
	f.topCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	req := core.Request{Country: wild(key.Country), Language: wild(key.Language), Device: wild(key.Device), Platform: wild(key.Platform)}
	var out []int64
	for _, id := range f.order {
		if c := f.catalog[id]; c.Filters.MatchCoarse(req) && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) SubtractDeltas(context.Context, []store.Delta) error { return nil }

func (f *fakeStore) Save(context.Context, core.Campaign) error { return nil }

func wild(s string) string {
	if s == core.Wildcard {
		return ""
	}
	return s
}

func testCampaign(id, bid int64, country string) core.Campaign {
	c := core.Campaign{
		ID:             id,
		DeliveryLink:   "https://ads.example/c",
		BidMinor:       bid,
		TotalMinor:     10_000,
		RemainingMinor: 10_000,
	}
	if country != "" {
		c.Filters.Countries = core.NewStringSet(country)
	}
	return c
}

func newIndexer(t *testing.T, st store.Store) (*Indexer, *cache.Store) {
	t.Helper()
	cs := cache.New(log.NoOp())
	meta, err := metacache.New(st, 1000, time.Minute, log.NoOp())
	require.NoError(t, err)
	t.Cleanup(meta.Close)

	ix := New(cs, st, meta, metric.New(), log.NoOp(), Config{
		TopLimitPerKey: 50,
		SliceSize:      2,
		KeyTTL:         time.Hour,
		EmptyKeyTTL:    time.Minute,
		BuildLockLease: 30 * time.Second,
	})
	return ix, cs
}

func TestEnsureIndexedBuildsKey(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(
		testCampaign(1, 100, "US"),
		testCampaign(2, 300, "US"),
		testCampaign(3, 200, "DE"),
	)
	ix, cs := newIndexer(t, st)
	key := core.NewCoarseKey("US", "", "", "")

	require.NoError(ix.EnsureIndexed(context.Background(), key))
	require.True(cs.HasKey(key))
	require.Equal(2, cs.Size(key))

	res := cs.PickAndSpend(key, core.Request{Country: "US"})
	require.Equal(core.OutcomeServed, res.Outcome)
	require.Equal(int64(2), res.CampaignID)
}

func TestEnsureIndexedIdempotent(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(testCampaign(1, 100, "US"))
	ix, _ := newIndexer(t, st)
	key := core.NewCoarseKey("US", "", "", "")

	require.NoError(ix.EnsureIndexed(context.Background(), key))
	require.NoError(ix.EnsureIndexed(context.Background(), key))
	require.Equal(int64(1), st.topCalls.Load())
}

func TestEnsureIndexedConcurrentBuildsOnce(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(
		testCampaign(1, 100, "US"),
		testCampaign(2, 200, "US"),
		testCampaign(3, 300, "US"),
	)
	ix, cs := newIndexer(t, st)
	key := core.NewCoarseKey("US", "", "", "")

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ix.EnsureIndexed(context.Background(), key)
		}()
	}
	wg.Wait()

	require.Equal(int64(1), st.topCalls.Load())
	require.Equal(3, cs.Size(key))
}

func TestEnsureIndexedEmptyKeyMarker(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(testCampaign(1, 100, "US"))
	ix, cs := newIndexer(t, st)
	key := core.NewCoarseKey("ZZ", "", "", "")

	require.NoError(ix.EnsureIndexed(context.Background(), key))
	require.True(cs.HasKey(key))
	require.Zero(cs.Size(key))

	// The marker suppresses an immediate rebuild.
	require.NoError(ix.EnsureIndexed(context.Background(), key))
	require.Equal(int64(1), st.topCalls.Load())
}

func TestEnsureIndexedPartialBuildExpiresAndRetries(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(
		testCampaign(1, 100, "US"),
		testCampaign(2, 200, "US"),
		testCampaign(3, 300, "US"),
	)
	st.failLoadAt = 2 // second slice load fails

	cs := cache.New(log.NoOp())
	meta, err := metacache.New(st, 1000, time.Minute, log.NoOp())
	require.NoError(err)
	t.Cleanup(meta.Close)

	ix := New(cs, st, meta, metric.New(), log.NoOp(), Config{
		TopLimitPerKey: 50,
		SliceSize:      2,
		KeyTTL:         time.Hour,
		EmptyKeyTTL:    50 * time.Millisecond,
		BuildLockLease: 30 * time.Second,
	})
	key := core.NewCoarseKey("US", "", "", "")

	require.ErrorIs(ix.EnsureIndexed(context.Background(), key), errDurableDown)
	require.Equal(2, cs.Size(key))

	// The partial key carries the short TTL, so it expires instead of
	// serving a frozen partial tie group forever.
	require.Eventually(func() bool { return !cs.HasKey(key) },
		time.Second, 10*time.Millisecond)

	// The store is healthy again; the next miss completes the build.
	require.NoError(ix.EnsureIndexed(context.Background(), key))
	require.Equal(3, cs.Size(key))
}

func TestWarmOne(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(testCampaign(5, 100, "US"))
	ix, cs := newIndexer(t, st)

	found, err := ix.WarmOne(context.Background(), 5)
	require.NoError(err)
	require.True(found)
	rem, ok := cs.Remaining(5)
	require.True(ok)
	require.Equal(int64(10_000), rem)

	found, err = ix.WarmOne(context.Background(), 99)
	require.NoError(err)
	require.False(found)
}

func TestWarmOneResetsBalance(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(testCampaign(5, 100, "US"))
	ix, cs := newIndexer(t, st)

	_, err := ix.WarmOne(context.Background(), 5)
	require.NoError(err)
	cs.TrySpend(5, 400)

	// Re-warm is a snapshot: durable balance wins, delta discarded.
	_, err = ix.WarmOne(context.Background(), 5)
	require.NoError(err)
	rem, _ := cs.Remaining(5)
	require.Equal(int64(10_000), rem)
	d, _ := cs.Delta(5)
	require.Zero(d)
}

func TestWarmAllPaged(t *testing.T) {
	require := require.New(t)
	st := newFakeStore(
		testCampaign(1, 100, "US"),
		testCampaign(2, 200, "DE"),
		testCampaign(3, 300, "FR"),
		testCampaign(4, 400, "US"),
		testCampaign(5, 500, "DE"),
	)
	ix, cs := newIndexer(t, st)

	n, err := ix.WarmAllPaged(context.Background(), 2, 2)
	require.NoError(err)
	require.Equal(5, n)

	for id := int64(1); id <= 5; id++ {
		_, ok := cs.Remaining(id)
		require.True(ok)
	}
	require.Equal(2, cs.Size(core.NewCoarseKey("US", "", "", "")))
}
