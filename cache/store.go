// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache is the in-process cache-resident store: the ranked targeting
// index, per-campaign filter sets and the budget ledger, together with the
// atomic pick-filter-spend procedure that serves the hot path.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/pkg/log"
)

// Store holds all cache-resident state. All mutation of a campaign's balance
// goes through atomic compare-and-swap; locks are held only for structure
// maintenance and never across a spend on another structure.
type Store struct {
	log log.Logger

	mu   sync.RWMutex
	keys map[core.CoarseKey]*rankedSet

	cmu       sync.RWMutex
	campaigns map[int64]*entry

	tmu     sync.Mutex
	touched map[int64]struct{}

	lmu   sync.Mutex
	locks map[core.CoarseKey]time.Time

	now func() time.Time
}

// New creates an empty store.
func New(logger log.Logger) *Store {
	return &Store{
		log:       logger,
		keys:      make(map[core.CoarseKey]*rankedSet),
		campaigns: make(map[int64]*entry),
		touched:   make(map[int64]struct{}),
		locks:     make(map[core.CoarseKey]time.Time),
		now:       time.Now,
	}
}

// entry is the per-campaign cache footprint: ledger counters, fine filter
// sets and reverse membership in coarse keys.
type entry struct {
	ledger ledger

	fine atomicFilters

	kmu  sync.Mutex
	keys map[core.CoarseKey]struct{}
}

func newEntry() *entry {
	return &entry{keys: make(map[core.CoarseKey]struct{})}
}

func (s *Store) entry(id int64) *entry {
	s.cmu.RLock()
	e := s.campaigns[id]
	s.cmu.RUnlock()
	return e
}

func (s *Store) entryOrCreate(id int64) (*entry, bool) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	if e, ok := s.campaigns[id]; ok {
		return e, false
	}
	e := newEntry()
	s.campaigns[id] = e
	return e, true
}

// Apply writes one campaign's full cache footprint: ledger entry, fine
// filter sets and ranked-set membership for every coarse combination the
// campaign's filters imply.
//
// With overwrite false the ledger entry is initialized only if absent, so an
// in-cache balance that is ahead of the durable store (unflushed spend) is
// never clobbered by a lazy build or a fallback warm-back. Overwrite true is
// snapshot semantics for explicit admin re-warms: balance reset to the
// durable value and the unflushed delta discarded.
func (s *Store) Apply(c core.Campaign, overwrite bool) {
	e, created := s.entryOrCreate(c.ID)
	if created || overwrite {
		e.ledger.reset(c.RemainingMinor)
	}
	e.fine.store(c.Filters)

	for _, key := range c.Filters.CoarseCombos() {
		s.Insert(c.ID, key, c.BidMinor)
	}
}

// Purge removes a campaign from every structure, ledger included. Used when
// the durable store no longer knows the campaign.
func (s *Store) Purge(id int64) {
	s.RemoveEverywhere(id)
	s.cmu.Lock()
	delete(s.campaigns, id)
	s.cmu.Unlock()
	s.tmu.Lock()
	delete(s.touched, id)
	s.tmu.Unlock()
}

// atomicFilters publishes a campaign's fine filter sets with a pointer swap
// so a replace is atomic from a reader's point of view.
type atomicFilters struct {
	p atomic.Pointer[core.Filters]
}

func (a *atomicFilters) store(f core.Filters) { a.p.Store(&f) }

func (a *atomicFilters) load() *core.Filters { return a.p.Load() }
