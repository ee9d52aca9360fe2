// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package indexer builds cache-resident state from the durable store: lazily
// per coarse key on a fast-path miss, and in bulk at warmup.
package indexer

import (
	"context"
	"time"

	"github.com/adxyz/adserve/cache"
	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/metacache"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/store"
)

// Config bounds the indexer's working set.
type Config struct {
	// TopLimitPerKey caps how many campaigns one coarse key loads.
	TopLimitPerKey int
	// SliceSize bounds each load-and-apply slice.
	SliceSize int
	// KeyTTL expires built keys so cold segments self-evict.
	KeyTTL time.Duration
	// EmptyKeyTTL marks legitimately empty keys briefly to stop rebuild
	// storms.
	EmptyKeyTTL time.Duration
	// BuildLockLease bounds how long a builder may hold a key.
	BuildLockLease time.Duration
}

// Indexer populates the cache store and metadata cache from the durable
// store.
type Indexer struct {
	cache   *cache.Store
	store   store.Store
	meta    *metacache.Cache
	metrics *metric.Metrics
	log     log.Logger
	cfg     Config
}

// New creates an indexer.
func New(cs *cache.Store, st store.Store, meta *metacache.Cache, m *metric.Metrics, logger log.Logger, cfg Config) *Indexer {
	return &Indexer{cache: cs, store: st, meta: meta, metrics: m, log: logger, cfg: cfg}
}

// EnsureIndexed builds the coarse key's fast-path structures if missing.
// Idempotent and safe under concurrent first-callers: a cheap existence
// check, a non-blocking per-key lock with bounded lease, and a re-check
// under the lock guarantee the build happens at most once. Losing the lock
// race is not an error; the caller proceeds without the index.
func (ix *Indexer) EnsureIndexed(ctx context.Context, key core.CoarseKey) error {
	if ix.cache.HasKey(key) {
		return nil
	}
	if !ix.cache.TryLockKey(key, ix.cfg.BuildLockLease) {
		return nil
	}
	defer ix.cache.UnlockKey(key)

	if ix.cache.HasKey(key) {
		return nil
	}

	ids, err := ix.store.TopCampaignIDs(ctx, key, ix.cfg.TopLimitPerKey)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ix.cache.MarkBuilt(key, ix.cfg.EmptyKeyTTL)
		ix.log.Debug("coarse key built empty", "key", key.String())
		return nil
	}

	for start := 0; start < len(ids); start += ix.cfg.SliceSize {
		end := min(start+ix.cfg.SliceSize, len(ids))
		slice, err := ix.store.Campaigns(ctx, ids[start:end])
		if err != nil {
			// A partial build must not freeze: stamp the short TTL so the
			// key expires and the next miss retries it.
			ix.cache.MarkBuilt(key, ix.cfg.EmptyKeyTTL)
			return err
		}
		for _, c := range slice {
			ix.meta.Put(c)
			ix.cache.Apply(c, false)
			// The request key may carry wildcard slots the campaign's own
			// combinations never produce; index it explicitly so the caller's
			// retry hits.
			ix.cache.Insert(c.ID, key, c.BidMinor)
		}
	}

	ix.cache.MarkBuilt(key, ix.cfg.KeyTTL)
	ix.metrics.IndexBuilds.Inc()
	ix.log.Debug("coarse key built", "key", key.String(), "campaigns", len(ids))
	return nil
}
