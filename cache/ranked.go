// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/adxyz/adserve/core"
)

// rankedSet is one coarse key's ranked set: campaign id -> bid score, plus
// the rotation counter that spreads load across tied top bidders. A zero
// expireAt means the key never expires; an expired set is treated as missing
// and reaped on access.
type rankedSet struct {
	mu       sync.Mutex
	scores   map[int64]int64
	rotation uint64
	expireAt time.Time
}

func newRankedSet() *rankedSet {
	return &rankedSet{scores: make(map[int64]int64)}
}

// topTies returns the maximal score and the tied campaign ids in ascending
// id order, so rotation is deterministic. Caller must hold rs.mu.
func (rs *rankedSet) topTies() (int64, []int64) {
	var (
		top  int64
		ties []int64
	)
	for id, score := range rs.scores {
		switch {
		case len(ties) == 0 || score > top:
			top = score
			ties = append(ties[:0], id)
		case score == top:
			ties = append(ties, id)
		}
	}
	sort.Slice(ties, func(i, j int) bool { return ties[i] < ties[j] })
	return top, ties
}

// ranked returns the live ranked set for a key, reaping it first if its TTL
// has lapsed.
func (s *Store) ranked(key core.CoarseKey) *rankedSet {
	s.mu.RLock()
	rs := s.keys[key]
	s.mu.RUnlock()
	if rs == nil {
		return nil
	}
	if rs.expired(s.now()) {
		s.reap(key)
		return nil
	}
	return rs
}

func (rs *rankedSet) expired(now time.Time) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return !rs.expireAt.IsZero() && now.After(rs.expireAt)
}

// Insert adds or updates one campaign's score under a coarse key and records
// the reverse membership. Re-insert with the same bid is a no-op; a changed
// bid updates the score.
//
// Membership is recorded before the score and the score is written while
// still holding s.mu, so a reap that interleaves either sees the score in its
// member snapshot and detaches it, or runs first and the write lands in a
// freshly mapped set. Neither order leaves a dangling membership record.
func (s *Store) Insert(id int64, key core.CoarseKey, bid int64) {
	e, _ := s.entryOrCreate(id)
	e.kmu.Lock()
	e.keys[key] = struct{}{}
	e.kmu.Unlock()

	s.mu.Lock()
	rs := s.keys[key]
	if rs == nil {
		rs = newRankedSet()
		s.keys[key] = rs
	}
	rs.mu.Lock()
	rs.scores[id] = bid
	rs.mu.Unlock()
	s.mu.Unlock()
}

// HasKey reports whether the coarse key has been built (possibly empty) and
// is not expired. The lazy indexer's existence check.
func (s *Store) HasKey(key core.CoarseKey) bool {
	return s.ranked(key) != nil
}

// Size returns the number of campaigns indexed under a key.
func (s *Store) Size(key core.CoarseKey) int {
	rs := s.ranked(key)
	if rs == nil {
		return 0
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.scores)
}

// MarkBuilt stamps a key as constructed with a bounded time-to-live,
// creating it empty if needed. An empty key with a TTL is the
// "built but empty" marker that prevents rebuild storms.
func (s *Store) MarkBuilt(key core.CoarseKey, ttl time.Duration) {
	s.mu.Lock()
	rs := s.keys[key]
	if rs == nil {
		rs = newRankedSet()
		s.keys[key] = rs
	}
	s.mu.Unlock()

	rs.mu.Lock()
	rs.expireAt = s.now().Add(ttl)
	rs.mu.Unlock()
}

// RemoveEverywhere removes the campaign from every coarse key it joined and
// clears the membership record. O(keys joined), never O(total keys). The
// ledger entry survives so the exhausted balance stays observable.
func (s *Store) RemoveEverywhere(id int64) {
	e := s.entry(id)
	if e == nil {
		return
	}

	e.kmu.Lock()
	keys := make([]core.CoarseKey, 0, len(e.keys))
	for k := range e.keys {
		keys = append(keys, k)
	}
	e.keys = make(map[core.CoarseKey]struct{})
	e.kmu.Unlock()

	for _, key := range keys {
		s.mu.RLock()
		rs := s.keys[key]
		s.mu.RUnlock()
		if rs == nil {
			continue
		}
		rs.mu.Lock()
		delete(rs.scores, id)
		rs.mu.Unlock()
	}
}

// reap drops one expired key and detaches its members' reverse records.
func (s *Store) reap(key core.CoarseKey) {
	s.mu.Lock()
	rs := s.keys[key]
	if rs == nil || !rs.expired(s.now()) {
		s.mu.Unlock()
		return
	}
	delete(s.keys, key)
	s.mu.Unlock()

	s.log.Debug("coarse key expired", "key", key.String())

	rs.mu.Lock()
	members := make([]int64, 0, len(rs.scores))
	for id := range rs.scores {
		members = append(members, id)
	}
	rs.mu.Unlock()

	for _, id := range members {
		if e := s.entry(id); e != nil {
			e.kmu.Lock()
			delete(e.keys, key)
			e.kmu.Unlock()
		}
	}
}

// Sweep reaps every expired key. Piggybacked on the flusher tick so cold
// keys self-evict without a dedicated janitor.
func (s *Store) Sweep() {
	s.mu.RLock()
	expired := make([]core.CoarseKey, 0)
	now := s.now()
	for key, rs := range s.keys {
		if rs.expired(now) {
			expired = append(expired, key)
		}
	}
	s.mu.RUnlock()

	for _, key := range expired {
		s.reap(key)
	}
}
