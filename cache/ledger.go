// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import "sync/atomic"

// ledger is one campaign's budget counters. remaining is authoritative for
// fast-path decisions; delta accumulates spend since the last reconciliation
// and is reset with a single atomic swap.
type ledger struct {
	remaining atomic.Int64
	delta     atomic.Int64
}

func (l *ledger) reset(remaining int64) {
	l.remaining.Store(remaining)
	l.delta.Store(0)
}

// trySpend conditionally debits amount. The compare-and-swap loop linearizes
// concurrent spends on the same campaign; the balance can never go negative.
func (l *ledger) trySpend(amount int64) (int64, bool) {
	for {
		rem := l.remaining.Load()
		if rem < amount {
			return rem, false
		}
		if l.remaining.CompareAndSwap(rem, rem-amount) {
			return rem - amount, true
		}
	}
}

// Remaining reads a campaign's cached balance.
func (s *Store) Remaining(id int64) (int64, bool) {
	e := s.entry(id)
	if e == nil {
		return 0, false
	}
	return e.ledger.remaining.Load(), true
}

// Delta reads a campaign's unflushed spend delta.
func (s *Store) Delta(id int64) (int64, bool) {
	e := s.entry(id)
	if e == nil {
		return 0, false
	}
	return e.ledger.delta.Load(), true
}

// ResetDelta atomically reads and zeroes a campaign's unflushed delta. A
// plain read-then-clear would drop increments landing in between.
func (s *Store) ResetDelta(id int64) int64 {
	e := s.entry(id)
	if e == nil {
		return 0
	}
	return e.ledger.delta.Swap(0)
}

// AddDelta re-adds spend to a campaign's delta and marks it touched. Used by
// the flusher to resurface deltas after a failed write-back.
func (s *Store) AddDelta(id int64, amount int64) {
	e := s.entry(id)
	if e == nil {
		return
	}
	e.ledger.delta.Add(amount)
	s.touch(id)
}

func (s *Store) touch(id int64) {
	s.tmu.Lock()
	s.touched[id] = struct{}{}
	s.tmu.Unlock()
}

// DrainTouched removes and returns up to n campaigns awaiting reconciliation.
func (s *Store) DrainTouched(n int) []int64 {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	ids := make([]int64, 0, n)
	for id := range s.touched {
		if len(ids) == n {
			break
		}
		ids = append(ids, id)
		delete(s.touched, id)
	}
	return ids
}

// TouchedLen reports how many campaigns await reconciliation.
func (s *Store) TouchedLen() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.touched)
}
