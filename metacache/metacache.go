// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metacache is the read-through cache of immutable presentation
// fields keyed by campaign id.
package metacache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/store"
)

// Meta carries the fields the serve response needs. RemainingMinor is the
// balance observed at load time, not live.
type Meta struct {
	ID             int64
	DeliveryLink   string
	BidMinor       int64
	RemainingMinor int64
}

// Cache is a TTL- and size-bounded read-through cache over the durable
// store.
type Cache struct {
	c     *ristretto.Cache[int64, Meta]
	store store.Store
	ttl   time.Duration
	log   log.Logger
}

// New builds the cache bounded to roughly maxEntries items.
func New(st store.Store, maxEntries int64, ttl time.Duration, logger log.Logger) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[int64, Meta]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, store: st, ttl: ttl, log: logger}, nil
}

// Get returns the campaign's metadata, loading from the durable store on a
// miss. ok is false when the campaign does not exist.
func (m *Cache) Get(ctx context.Context, id int64) (Meta, bool, error) {
	if v, ok := m.c.Get(id); ok {
		return v, true, nil
	}
	cs, err := m.store.Campaigns(ctx, []int64{id})
	if err != nil {
		return Meta{}, false, err
	}
	if len(cs) == 0 {
		m.log.Debug("metadata load found no campaign", "campaign", id)
		return Meta{}, false, nil
	}
	v := fromCampaign(cs[0])
	m.c.SetWithTTL(id, v, 1, m.ttl)
	return v, true, nil
}

// Put overwrites an entry from a fresh campaign snapshot.
func (m *Cache) Put(c core.Campaign) {
	m.c.SetWithTTL(c.ID, fromCampaign(c), 1, m.ttl)
}

// WarmAll bulk-populates entries without per-item durable-store round trips.
func (m *Cache) WarmAll(cs []core.Campaign) {
	for _, c := range cs {
		m.Put(c)
	}
	m.c.Wait()
}

// Invalidate forces the next Get for the id to reload.
func (m *Cache) Invalidate(id int64) {
	m.c.Del(id)
}

// Close releases the cache's resources.
func (m *Cache) Close() { m.c.Close() }

func fromCampaign(c core.Campaign) Meta {
	return Meta{
		ID:             c.ID,
		DeliveryLink:   c.DeliveryLink,
		BidMinor:       c.BidMinor,
		RemainingMinor: c.RemainingMinor,
	}
}
