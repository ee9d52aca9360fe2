// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"math/rand/v2"

	"github.com/adxyz/adserve/core"
)

// serveFallback is the last tier: a full matcher over the durable store,
// used only when neither the fast index nor lazy indexing yielded a
// candidate. It is gated by the bulkhead, bounded by a timeout, and on
// success warms the fast-path structures so subsequent identical or broader
// requests never come back here.
func (e *Engine) serveFallback(ctx context.Context, req core.Request, sig string) (*Response, error) {
	if !e.cfg.FallbackEnabled {
		return e.miss(sig)
	}
	if !e.bulkhead.Enter() {
		e.metrics.BulkheadRejected.Inc()
		e.neg.MarkMissFor(sig, e.cfg.BulkheadNegativeTTL)
		e.metrics.ServesTotal.WithLabelValues(core.OutcomeNoCandidate.String()).Inc()
		return nil, nil
	}
	defer e.bulkhead.Leave()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.FallbackTimeout)
	defer cancel()

	chosen, err := e.matchBest(ctx, req)
	if err != nil {
		// Durable-store trouble degrades to "no eligible campaign" rather
		// than failing the request.
		e.log.Warn("fallback match failed", "error", err)
		return e.miss(sig)
	}
	if chosen == nil {
		return e.miss(sig)
	}

	newRem, ok, err := e.store.TrySpend(ctx, chosen.ID, chosen.BidMinor)
	if err != nil {
		e.log.Warn("fallback spend failed", "campaign", chosen.ID, "error", err)
		return e.miss(sig)
	}
	if !ok {
		return e.miss(sig)
	}

	// Warm the fast path with the post-spend balance; the spend above went
	// straight to the durable ledger, so no delta is recorded for it.
	warmed := *chosen
	warmed.RemainingMinor = newRem
	e.meta.Put(warmed)
	e.cache.Apply(warmed, false)
	if newRem <= 0 {
		e.cache.RemoveEverywhere(chosen.ID)
	}

	outcome := core.OutcomeServed
	if newRem <= 0 {
		outcome = core.OutcomeServedExhausted
	} else {
		e.pos.Put(sig, chosen.ID)
	}
	e.metrics.FallbackServes.Inc()
	e.metrics.ServesTotal.WithLabelValues(outcome.String()).Inc()
	e.metrics.SpendMinor.Add(float64(chosen.BidMinor))

	return &Response{
		CampaignID:     chosen.ID,
		DeliveryLink:   chosen.DeliveryLink,
		BidMinor:       chosen.BidMinor,
		RemainingMinor: newRem,
	}, nil
}

// matchBest scans durable campaigns page by page, keeps those whose filters
// match the request with positive remaining balance, and picks uniformly at
// random among the maximal bids.
func (e *Engine) matchBest(ctx context.Context, req core.Request) (*core.Campaign, error) {
	var (
		topBid int64
		top    []core.Campaign
	)

	for offset := 0; ; offset += e.cfg.FallbackPageSize {
		ids, err := e.store.CampaignIDs(ctx, offset, e.cfg.FallbackPageSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		page, err := e.store.Campaigns(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			if c.RemainingMinor <= 0 || !c.Filters.Matches(req) {
				continue
			}
			switch {
			case len(top) == 0 || c.BidMinor > topBid:
				topBid = c.BidMinor
				top = append(top[:0], c)
			case c.BidMinor == topBid:
				top = append(top, c)
			}
		}
		if len(ids) < e.cfg.FallbackPageSize {
			break
		}
	}

	if len(top) == 0 {
		return nil, nil
	}
	chosen := top[rand.IntN(len(top))]
	return &chosen, nil
}

func (e *Engine) miss(sig string) (*Response, error) {
	e.neg.MarkMiss(sig)
	e.metrics.ServesTotal.WithLabelValues(core.OutcomeNoCandidate.String()).Inc()
	return nil, nil
}
