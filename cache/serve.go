// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"github.com/adxyz/adserve/core"
)

// Result is the outcome of a spend attempt against the cache-resident state.
type Result struct {
	Outcome        core.Outcome
	CampaignID     int64
	BidMinor       int64
	RemainingMinor int64
}

// PickAndSpend is the atomic pick-filter-spend procedure for one coarse key:
//
//  1. find the maximal bid score; absent or empty key is no candidate;
//  2. collect the tie group at that score;
//  3. rotate by the per-key counter modulo the group size;
//  4. walk the group from the offset, wrapping: reject candidates failing
//     the allow/block lists, then attempt the conditional debit. A candidate
//     that cannot afford its own bid is skipped, never replaced by a lower
//     bid, so the highest eligible bid always wins.
//
// The ranked set's lock pins the tie group for the duration; the debit
// itself is a compare-and-swap on the campaign's ledger, so no other spend
// on the same campaign can interleave between check and decrement.
func (s *Store) PickAndSpend(key core.CoarseKey, req core.Request) Result {
	rs := s.ranked(key)
	if rs == nil {
		return Result{Outcome: core.OutcomeNoCandidate}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	top, ties := rs.topTies()
	if len(ties) == 0 {
		return Result{Outcome: core.OutcomeNoCandidate}
	}

	offset := int(rs.rotation % uint64(len(ties)))
	rs.rotation++

	for i := 0; i < len(ties); i++ {
		id := ties[(offset+i)%len(ties)]

		e := s.entry(id)
		if e == nil {
			continue
		}
		if f := e.fine.load(); f != nil && !f.MatchFine(req) {
			continue
		}

		newRem, ok := e.ledger.trySpend(top)
		if !ok {
			continue
		}
		e.ledger.delta.Add(top)
		s.touch(id)

		outcome := core.OutcomeServed
		if newRem <= 0 {
			outcome = core.OutcomeServedExhausted
		}
		return Result{
			Outcome:        outcome,
			CampaignID:     id,
			BidMinor:       top,
			RemainingMinor: newRem,
		}
	}
	return Result{Outcome: core.OutcomeNoCandidate}
}

// TrySpend debits one known campaign directly, recording the delta and
// touched membership exactly like PickAndSpend. Used by the positive-pick
// memo short-circuit.
func (s *Store) TrySpend(id int64, amountMinor int64) Result {
	e := s.entry(id)
	if e == nil {
		return Result{Outcome: core.OutcomeNoCandidate}
	}
	newRem, ok := e.ledger.trySpend(amountMinor)
	if !ok {
		return Result{Outcome: core.OutcomeNoCandidate, CampaignID: id, RemainingMinor: newRem}
	}
	e.ledger.delta.Add(amountMinor)
	s.touch(id)

	outcome := core.OutcomeServed
	if newRem <= 0 {
		outcome = core.OutcomeServedExhausted
	}
	return Result{
		Outcome:        outcome,
		CampaignID:     id,
		BidMinor:       amountMinor,
		RemainingMinor: newRem,
	}
}
