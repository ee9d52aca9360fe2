// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import "strings"

// Filters holds a campaign's targeting rules.
//
// Coarse dimensions (country, language, device, platform) are required-match:
// a request value must be a member unless the request leaves the slot blank,
// in which case the slot is a wildcard.
//
// Fine dimensions are allow lists (empty = unrestricted) or block lists
// (empty = nothing blocked). A request that omits a fine value bypasses a
// non-empty allow list and can never be blocked; this single semantic applies
// to all four fine dimensions.
type Filters struct {
	Countries StringSet
	Languages StringSet
	Devices   StringSet
	Platforms StringSet

	AllowBrowsers   StringSet
	AllowCategories StringSet
	AllowIPs        StringSet
	AllowDomains    StringSet // stored lowercased

	BlockIPs     StringSet
	BlockDomains StringSet // stored lowercased
}

// MatchCoarse reports whether the request's coarse attributes are eligible.
func (f Filters) MatchCoarse(r Request) bool {
	if r.Country != "" && !f.Countries.Has(r.Country) {
		return false
	}
	if r.Language != "" && !f.Languages.Has(r.Language) {
		return false
	}
	if r.Device != "" && !f.Devices.Has(r.Device) {
		return false
	}
	if r.Platform != "" && !f.Platforms.Has(r.Platform) {
		return false
	}
	return true
}

// MatchFine evaluates the allow and block lists against the request's fine
// attributes. Used both inside the atomic pick-filter-spend procedure and by
// the fallback matcher so the semantics cannot drift apart.
func (f Filters) MatchFine(r Request) bool {
	if r.Browser != "" && !f.AllowBrowsers.Empty() && !f.AllowBrowsers.Has(r.Browser) {
		return false
	}
	if r.Category != "" && !f.AllowCategories.Empty() && !f.AllowCategories.Has(r.Category) {
		return false
	}
	if r.IP != "" {
		if f.BlockIPs.Has(r.IP) {
			return false
		}
		if !f.AllowIPs.Empty() && !f.AllowIPs.Has(r.IP) {
			return false
		}
	}
	if r.Domain != "" {
		dom := strings.ToLower(r.Domain)
		if f.BlockDomains.Has(dom) {
			return false
		}
		if !f.AllowDomains.Empty() && !f.AllowDomains.Has(dom) {
			return false
		}
	}
	return true
}

// Matches combines the coarse and fine checks.
func (f Filters) Matches(r Request) bool {
	return f.MatchCoarse(r) && f.MatchFine(r)
}

// CoarseCombos enumerates every coarse key implied by the campaign's coarse
// sets. Used to warm the targeting index with the full cross product.
func (f Filters) CoarseCombos() []CoarseKey {
	countries := orWildcard(f.Countries)
	languages := orWildcard(f.Languages)
	devices := orWildcard(f.Devices)
	platforms := orWildcard(f.Platforms)

	combos := make([]CoarseKey, 0, len(countries)*len(languages)*len(devices)*len(platforms))
	for _, c := range countries {
		for _, l := range languages {
			for _, d := range devices {
				for _, p := range platforms {
					combos = append(combos, NewCoarseKey(c, l, d, p))
				}
			}
		}
	}
	return combos
}

func orWildcard(s StringSet) []string {
	if s.Empty() {
		return []string{Wildcard}
	}
	return s.Values()
}
