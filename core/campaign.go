// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

// Campaign is a snapshot of an advertiser campaign as loaded from the
// durable store. Monetary fields are integer minor units (cents); the
// decimal representation exists only at the durable-store boundary.
type Campaign struct {
	ID             int64
	DeliveryLink   string
	BidMinor       int64
	TotalMinor     int64
	RemainingMinor int64
	Filters        Filters
}

// StringSet is the membership representation used by all filter dimensions.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values, dropping blanks.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports membership. An empty (or nil) set contains nothing.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Empty reports whether the set has no members.
func (s StringSet) Empty() bool { return len(s) == 0 }

// Values returns the members in unspecified order.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	return out
}
