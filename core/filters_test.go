// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchCoarse(t *testing.T) {
	require := require.New(t)

	f := Filters{
		Countries: NewStringSet("US", "DE"),
		Languages: NewStringSet("en"),
	}

	require.True(f.MatchCoarse(Request{Country: "US", Language: "en"}))
	require.False(f.MatchCoarse(Request{Country: "FR", Language: "en"}))
	require.False(f.MatchCoarse(Request{Country: "US", Language: "de"}))

	// A blank request slot is a wildcard even against a restricted set.
	require.True(f.MatchCoarse(Request{Language: "en"}))
	require.True(f.MatchCoarse(Request{}))

	// Dimensions the campaign leaves unrestricted accept anything.
	require.True(f.MatchCoarse(Request{Country: "US", Language: "en", Device: "Mobile", Platform: "Android"}))
}

func TestMatchFineAllowLists(t *testing.T) {
	require := require.New(t)

	f := Filters{
		AllowBrowsers:   NewStringSet("Chrome"),
		AllowCategories: NewStringSet("IAB1"),
	}

	require.True(f.MatchFine(Request{Browser: "Chrome", Category: "IAB1"}))
	require.False(f.MatchFine(Request{Browser: "Firefox", Category: "IAB1"}))
	require.False(f.MatchFine(Request{Browser: "Chrome", Category: "IAB7"}))

	// An omitted value bypasses a non-empty allow list.
	require.True(f.MatchFine(Request{Category: "IAB1"}))
	require.True(f.MatchFine(Request{Browser: "Chrome"}))
	require.True(f.MatchFine(Request{}))
}

func TestMatchFineBlockLists(t *testing.T) {
	require := require.New(t)

	f := Filters{
		BlockIPs:     NewStringSet("10.0.0.1"),
		BlockDomains: NewStringSet("bad.example"),
	}

	require.False(f.MatchFine(Request{IP: "10.0.0.1"}))
	require.True(f.MatchFine(Request{IP: "10.0.0.2"}))

	// Domain comparison is case-insensitive; blocks win over everything.
	require.False(f.MatchFine(Request{Domain: "Bad.Example"}))
	require.True(f.MatchFine(Request{Domain: "good.example"}))

	// Omitted values can never be blocked.
	require.True(f.MatchFine(Request{}))
}

func TestMatchFineAllowAndBlockIPs(t *testing.T) {
	require := require.New(t)

	f := Filters{
		AllowIPs: NewStringSet("10.0.0.1", "10.0.0.2"),
		BlockIPs: NewStringSet("10.0.0.2"),
	}

	require.True(f.MatchFine(Request{IP: "10.0.0.1"}))
	require.False(f.MatchFine(Request{IP: "10.0.0.2"}))
	require.False(f.MatchFine(Request{IP: "10.0.0.3"}))
	require.True(f.MatchFine(Request{}))
}

func TestCoarseCombos(t *testing.T) {
	require := require.New(t)

	f := Filters{
		Countries: NewStringSet("US", "DE"),
		Devices:   NewStringSet("Mobile"),
	}

	combos := f.CoarseCombos()
	require.Len(combos, 2)

	seen := make(map[CoarseKey]struct{})
	for _, k := range combos {
		seen[k] = struct{}{}
	}
	require.Contains(seen, NewCoarseKey("US", "", "Mobile", ""))
	require.Contains(seen, NewCoarseKey("DE", "", "Mobile", ""))
}

func TestCoarseCombosAllWildcards(t *testing.T) {
	require := require.New(t)

	combos := Filters{}.CoarseCombos()
	require.Len(combos, 1)
	require.Equal(NewCoarseKey("", "", "", ""), combos[0])
	require.Equal(Wildcard, combos[0].Country)
}

func TestCoarseKeyString(t *testing.T) {
	require := require.New(t)

	k := NewCoarseKey("US", "en", "", "Android")
	require.Equal("campaign:filters:Android:any:en:US", k.String())
}

func TestRequestSignature(t *testing.T) {
	require := require.New(t)

	a := Request{Country: "US", Browser: "Chrome", Domain: "News.Example"}
	b := Request{Country: "US", Browser: "Chrome", Domain: "news.example"}
	require.Equal(a.Signature(), b.Signature())

	c := Request{Country: "US", Browser: "Firefox", Domain: "news.example"}
	require.NotEqual(a.Signature(), c.Signature())
}

func TestOutcomeString(t *testing.T) {
	require := require.New(t)

	require.Equal("no_candidate", OutcomeNoCandidate.String())
	require.Equal("served", OutcomeServed.String())
	require.Equal("served_exhausted", OutcomeServedExhausted.String())
}
