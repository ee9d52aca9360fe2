// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"context"
)

// WarmOne rebuilds a single campaign's full cache footprint from the durable
// store with snapshot semantics: the cached balance is reset to the durable
// value and the unflushed delta discarded. Reports false when the durable
// store no longer knows the campaign, purging any cached remnants.
func (ix *Indexer) WarmOne(ctx context.Context, id int64) (bool, error) {
	cs, err := ix.store.Campaigns(ctx, []int64{id})
	if err != nil {
		return false, err
	}
	if len(cs) == 0 {
		ix.cache.Purge(id)
		ix.meta.Invalidate(id)
		return false, nil
	}

	c := cs[0]
	ix.meta.Put(c)
	ix.cache.Apply(c, true)
	ix.log.Info("campaign rewarmed", "campaign", id)
	return true, nil
}

// WarmAllPaged pages through the durable store and populates the cache with
// the whole catalog: ids first (to bound memory), then full records in
// bounded sub-batches, each applied as one batch of cache writes plus a
// metadata refresh. Memory stays bounded by batchSize regardless of catalog
// size. Returns the number of campaigns processed.
func (ix *Indexer) WarmAllPaged(ctx context.Context, pageSize, batchSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 5000
	}
	if batchSize <= 0 || batchSize > pageSize {
		batchSize = min(1000, pageSize)
	}

	processed := 0
	for offset := 0; ; offset += pageSize {
		page, err := ix.store.CampaignIDs(ctx, offset, pageSize)
		if err != nil {
			return processed, err
		}
		if len(page) == 0 {
			break
		}

		for start := 0; start < len(page); start += batchSize {
			end := min(start+batchSize, len(page))
			batch, err := ix.store.Campaigns(ctx, page[start:end])
			if err != nil {
				return processed, err
			}
			for _, c := range batch {
				ix.cache.Apply(c, true)
			}
			ix.meta.WarmAll(batch)
			processed += len(batch)
		}

		if len(page) < pageSize {
			break
		}
	}

	ix.log.Info("warmup complete", "campaigns", processed)
	return processed, nil
}
