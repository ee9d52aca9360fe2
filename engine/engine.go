// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine runs the serve decision: fast-path pick-filter-spend,
// lazy-index retry, and the admission-controlled durable-store fallback.
package engine

import (
	"context"
	"time"

	"github.com/adxyz/adserve/admission"
	"github.com/adxyz/adserve/cache"
	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/indexer"
	"github.com/adxyz/adserve/metacache"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/store"
)

// Config tunes the miss path.
type Config struct {
	FallbackEnabled  bool
	FallbackTimeout  time.Duration
	FallbackPageSize int
	// BulkheadNegativeTTL is the very short negative memo recorded when the
	// bulkhead rejects an entry.
	BulkheadNegativeTTL time.Duration
}

// Response is one served campaign. A nil Response with a nil error is a
// legitimate no-match.
type Response struct {
	CampaignID     int64
	DeliveryLink   string
	BidMinor       int64
	RemainingMinor int64
}

// Engine owns the serve decision. All collaborators are explicit
// dependencies; the engine holds no global state.
type Engine struct {
	cache    *cache.Store
	store    store.Store
	meta     *metacache.Cache
	indexer  *indexer.Indexer
	neg      *admission.NegativeCache
	pos      *admission.PositiveCache
	bulkhead *admission.Bulkhead
	metrics  *metric.Metrics
	log      log.Logger
	cfg      Config
}

// New wires an engine.
func New(
	cs *cache.Store,
	st store.Store,
	meta *metacache.Cache,
	ix *indexer.Indexer,
	neg *admission.NegativeCache,
	pos *admission.PositiveCache,
	bulkhead *admission.Bulkhead,
	m *metric.Metrics,
	logger log.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		cache:    cs,
		store:    st,
		meta:     meta,
		indexer:  ix,
		neg:      neg,
		pos:      pos,
		bulkhead: bulkhead,
		metrics:  m,
		log:      logger,
		cfg:      cfg,
	}
}

// Serve resolves one request to a winning campaign, or to nil when no
// eligible campaign exists. A spend committed inside the atomic procedure is
// final even if the caller's context has since been cancelled.
func (e *Engine) Serve(ctx context.Context, req core.Request) (*Response, error) {
	start := time.Now()
	resp, err := e.serve(ctx, req)
	e.metrics.ServeDuration.Observe(time.Since(start).Seconds())
	return resp, err
}

func (e *Engine) serve(ctx context.Context, req core.Request) (*Response, error) {
	sig := req.Signature()

	if resp := e.servePositiveMemo(ctx, sig); resp != nil {
		return resp, nil
	}

	if e.neg.RecentlyMissed(sig) {
		e.metrics.MemoHits.WithLabelValues("negative").Inc()
		e.metrics.ServesTotal.WithLabelValues(core.OutcomeNoCandidate.String()).Inc()
		return nil, nil
	}

	key := req.CoarseKey()
	res := e.cache.PickAndSpend(key, req)

	if res.Outcome == core.OutcomeNoCandidate {
		if err := e.indexer.EnsureIndexed(ctx, key); err != nil {
			e.log.Warn("lazy index build failed", "key", key.String(), "error", err)
		}
		res = e.cache.PickAndSpend(key, req)
	}

	if res.Outcome == core.OutcomeNoCandidate {
		return e.serveFallback(ctx, req, sig)
	}
	return e.finish(ctx, sig, res)
}

// servePositiveMemo retries the campaign last chosen for this signature with
// a direct conditional debit, skipping selection entirely. A lost budget
// race invalidates the memo and falls through to the full path.
func (e *Engine) servePositiveMemo(ctx context.Context, sig string) *Response {
	id, ok := e.pos.Get(sig)
	if !ok {
		return nil
	}
	meta, ok, err := e.meta.Get(ctx, id)
	if err != nil || !ok {
		e.pos.Invalidate(sig)
		return nil
	}

	res := e.cache.TrySpend(id, meta.BidMinor)
	if res.Outcome == core.OutcomeNoCandidate {
		e.pos.Invalidate(sig)
		return nil
	}
	e.metrics.MemoHits.WithLabelValues("positive").Inc()
	e.metrics.ServesTotal.WithLabelValues(res.Outcome.String()).Inc()
	e.metrics.SpendMinor.Add(float64(res.BidMinor))

	if res.Outcome == core.OutcomeServedExhausted {
		e.cache.RemoveEverywhere(id)
		e.pos.Invalidate(sig)
	}
	return &Response{
		CampaignID:     id,
		DeliveryLink:   meta.DeliveryLink,
		BidMinor:       res.BidMinor,
		RemainingMinor: res.RemainingMinor,
	}
}

// finish turns a successful cache spend into a response: metadata lookup,
// exhaustion eviction, memo bookkeeping.
func (e *Engine) finish(ctx context.Context, sig string, res cache.Result) (*Response, error) {
	if res.Outcome == core.OutcomeServedExhausted {
		e.cache.RemoveEverywhere(res.CampaignID)
	}

	meta, ok, err := e.meta.Get(ctx, res.CampaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Spent against a campaign the durable store no longer knows; evict
		// it and report no candidate like the durable source of truth would.
		e.log.Warn("served campaign has no metadata, evicting", "campaign", res.CampaignID)
		e.cache.RemoveEverywhere(res.CampaignID)
		e.metrics.ServesTotal.WithLabelValues(core.OutcomeNoCandidate.String()).Inc()
		return nil, nil
	}

	if res.Outcome == core.OutcomeServed {
		e.pos.Put(sig, res.CampaignID)
	}
	e.metrics.ServesTotal.WithLabelValues(res.Outcome.String()).Inc()
	e.metrics.SpendMinor.Add(float64(res.BidMinor))

	return &Response{
		CampaignID:     res.CampaignID,
		DeliveryLink:   meta.DeliveryLink,
		BidMinor:       res.BidMinor,
		RemainingMinor: res.RemainingMinor,
	}, nil
}
