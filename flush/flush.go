// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package flush drains accumulated spend deltas into the durable ledger on a
// fixed interval, decoupled from request goroutines.
package flush

import (
	"context"
	"sync"
	"time"

	"github.com/adxyz/adserve/cache"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/store"
)

// Config bounds one flush tick.
type Config struct {
	Interval   time.Duration
	MaxPerTick int
	ChunkSize  int
}

// Flusher is the background delta reconciler.
type Flusher struct {
	cache   *cache.Store
	store   store.Store
	metrics *metric.Metrics
	log     log.Logger
	cfg     Config

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a flusher; call Start to begin ticking.
func New(cs *cache.Store, st store.Store, m *metric.Metrics, logger log.Logger, cfg Config) *Flusher {
	return &Flusher{cache: cs, store: st, metrics: m, log: logger, cfg: cfg}
}

// Start launches the flush loop.
func (f *Flusher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := f.RunOnce(ctx); err != nil && ctx.Err() == nil {
					f.log.Error("flush tick failed", "error", err)
				}
				f.cache.Sweep()
			}
		}
	}()
}

// Stop halts the loop and performs one final drain so a clean shutdown does
// not abandon in-flight deltas.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
		}
		f.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for f.cache.TouchedLen() > 0 {
			if _, err := f.RunOnce(ctx); err != nil {
				f.log.Error("final flush failed, deltas resurfaced in memory", "error", err)
				return
			}
		}
	})
}

// RunOnce drains up to MaxPerTick touched campaigns: each delta is taken
// with an atomic read-and-reset, zero deltas are skipped without a write,
// and the rest are written back in bounded chunks. A failed chunk has every
// delta re-added and re-touched so spend is never silently dropped.
func (f *Flusher) RunOnce(ctx context.Context) (int, error) {
	ids := f.cache.DrainTouched(f.cfg.MaxPerTick)
	if len(ids) == 0 {
		return 0, nil
	}

	deltas := make([]store.Delta, 0, len(ids))
	for _, id := range ids {
		if d := f.cache.ResetDelta(id); d > 0 {
			deltas = append(deltas, store.Delta{CampaignID: id, Minor: d})
		}
	}

	flushed := 0
	var firstErr error
	for start := 0; start < len(deltas); start += f.cfg.ChunkSize {
		end := min(start+f.cfg.ChunkSize, len(deltas))
		chunk := deltas[start:end]

		if err := f.store.SubtractDeltas(ctx, chunk); err != nil {
			for _, d := range chunk {
				f.cache.AddDelta(d.CampaignID, d.Minor)
			}
			f.metrics.FlushFailures.Inc()
			f.log.Error("flush chunk failed, deltas resurfaced",
				"campaigns", len(chunk), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		flushed += len(chunk)
		f.metrics.FlushedCampaigns.Add(float64(len(chunk)))
		for _, d := range chunk {
			f.metrics.FlushedMinor.Add(float64(d.Minor))
		}
	}
	return flushed, firstErr
}
