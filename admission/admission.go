// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admission layers the memoization and backpressure that keep
// fast-path misses from hammering the durable store.
package admission

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/semaphore"
)

// NegativeCache remembers request signatures that recently found no eligible
// candidate, so a burst of identical unmatched requests resolves without
// repeating the fallback lookup.
type NegativeCache struct {
	c   *ristretto.Cache[string, struct{}]
	ttl time.Duration
}

// NewNegative builds a negative-result memo bounded to maxEntries with the
// given default TTL.
func NewNegative(maxEntries int64, ttl time.Duration) (*NegativeCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &NegativeCache{c: c, ttl: ttl}, nil
}

// RecentlyMissed reports whether the signature missed within the TTL.
func (n *NegativeCache) RecentlyMissed(sig string) bool {
	_, ok := n.c.Get(sig)
	return ok
}

// MarkMiss records a miss with the default TTL.
func (n *NegativeCache) MarkMiss(sig string) {
	n.c.SetWithTTL(sig, struct{}{}, 1, n.ttl)
}

// MarkMissFor records a miss with an explicit TTL. A rejected bulkhead entry
// uses a very short one to dampen retry storms without hiding capacity for
// long.
func (n *NegativeCache) MarkMissFor(sig string, ttl time.Duration) {
	n.c.SetWithTTL(sig, struct{}{}, 1, ttl)
}

// Close releases the memo's resources.
func (n *NegativeCache) Close() { n.c.Close() }

// PositiveCache remembers the campaign last chosen for a request signature
// so bursts of identical requests skip selection work. Entries are
// invalidated as soon as a memoized pick loses a budget race.
type PositiveCache struct {
	c   *ristretto.Cache[string, int64]
	ttl time.Duration
}

// NewPositive builds a positive-pick memo bounded to maxEntries with a
// sub-second TTL.
func NewPositive(maxEntries int64, ttl time.Duration) (*PositiveCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &PositiveCache{c: c, ttl: ttl}, nil
}

// Get returns the memoized campaign id for a signature.
func (p *PositiveCache) Get(sig string) (int64, bool) {
	return p.c.Get(sig)
}

// Put records a successful pick.
func (p *PositiveCache) Put(sig string, id int64) {
	p.c.SetWithTTL(sig, id, 1, p.ttl)
}

// Invalidate drops a memoized pick that failed to spend.
func (p *PositiveCache) Invalidate(sig string) {
	p.c.Del(sig)
}

// Close releases the memo's resources.
func (p *PositiveCache) Close() { p.c.Close() }

// Bulkhead is the bounded-concurrency admission gate in front of the
// durable-store fallback path. Enter fails fast instead of queuing.
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead creates a gate with the given number of permits; keep it
// strictly below the durable store's connection ceiling.
func NewBulkhead(permits int64) *Bulkhead {
	return &Bulkhead{sem: semaphore.NewWeighted(permits)}
}

// Enter acquires a permit without blocking.
func (b *Bulkhead) Enter() bool { return b.sem.TryAcquire(1) }

// Leave returns a permit.
func (b *Bulkhead) Leave() { b.sem.Release(1) }
