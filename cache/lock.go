// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"time"

	"github.com/adxyz/adserve/core"
)

// TryLockKey acquires the per-coarse-key build lock without blocking. The
// lease bounds how long a crashed or stuck builder can hold the key; a
// lapsed lease is stolen. Callers that fail to acquire proceed without the
// index rather than waiting.
func (s *Store) TryLockKey(key core.CoarseKey, lease time.Duration) bool {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	now := s.now()
	if until, held := s.locks[key]; held && now.Before(until) {
		return false
	}
	s.locks[key] = now.Add(lease)
	return true
}

// UnlockKey releases the build lock.
func (s *Store) UnlockKey(key core.CoarseKey) {
	s.lmu.Lock()
	delete(s.locks, key)
	s.lmu.Unlock()
}
