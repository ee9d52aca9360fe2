// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import "strings"

// Wildcard is the token a coarse key slot takes when the request leaves the
// dimension blank.
const Wildcard = "any"

// Request carries the targeting attributes of one serve call. Every field is
// optional; a blank field means wildcard (coarse) or unrestricted (fine).
type Request struct {
	Country  string
	Language string
	Device   string
	Platform string

	Browser  string
	Category string
	IP       string
	Domain   string
}

// CoarseKey buckets the ranked targeting index by the four coarse dimensions.
type CoarseKey struct {
	Country  string
	Language string
	Device   string
	Platform string
}

// NewCoarseKey normalizes blank slots to the wildcard token.
func NewCoarseKey(country, language, device, platform string) CoarseKey {
	return CoarseKey{
		Country:  slot(country),
		Language: slot(language),
		Device:   slot(device),
		Platform: slot(platform),
	}
}

func slot(s string) string {
	if strings.TrimSpace(s) == "" {
		return Wildcard
	}
	return s
}

// String renders the key in the platform:device:language:country form used
// for lock names and logging.
func (k CoarseKey) String() string {
	return "campaign:filters:" + k.Platform + ":" + k.Device + ":" + k.Language + ":" + k.Country
}

// CoarseKey resolves the request's coarse bucket.
func (r Request) CoarseKey() CoarseKey {
	return NewCoarseKey(r.Country, r.Language, r.Device, r.Platform)
}

// Signature identifies the full request shape for memoization.
func (r Request) Signature() string {
	return strings.Join([]string{
		r.Country, r.Language, r.Device, r.Platform,
		r.Browser, r.Category, r.IP, strings.ToLower(r.Domain),
	}, "|")
}

// Outcome classifies the result of a spend attempt.
type Outcome int

const (
	// OutcomeNoCandidate means no campaign matched, or all matching
	// campaigns were filtered or could not afford their bid.
	OutcomeNoCandidate Outcome = iota
	// OutcomeServed means a campaign was selected and its budget debited.
	OutcomeServed
	// OutcomeServedExhausted means the debit succeeded and drove the
	// remaining balance to zero; the caller must evict the campaign.
	OutcomeServedExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeServed:
		return "served"
	case OutcomeServedExhausted:
		return "served_exhausted"
	default:
		return "no_candidate"
	}
}
