// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the ad delivery engine.
type Metrics struct {
	registry *prometheus.Registry

	// Serve path metrics
	ServesTotal   *prometheus.CounterVec
	SpendMinor    prometheus.Counter
	ServeDuration prometheus.Histogram
	MemoHits      *prometheus.CounterVec

	// Miss path metrics
	FallbackServes   prometheus.Counter
	BulkheadRejected prometheus.Counter
	IndexBuilds      prometheus.Counter

	// Reconciliation metrics
	FlushedCampaigns prometheus.Counter
	FlushedMinor     prometheus.Counter
	FlushFailures    prometheus.Counter
}

// New creates a metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ServesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adserve_serves_total",
			Help: "Serve decisions by outcome",
		}, []string{"outcome"}),
		SpendMinor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_spend_minor_units_total",
			Help: "Budget debited on the serve path, in minor currency units",
		}),
		ServeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adserve_serve_duration_seconds",
			Help:    "Time to resolve one serve request",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		MemoHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adserve_memo_hits_total",
			Help: "Admission-control memo hits by kind",
		}, []string{"kind"}),
		FallbackServes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_fallback_serves_total",
			Help: "Serve requests resolved by the durable-store fallback matcher",
		}),
		BulkheadRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_bulkhead_rejected_total",
			Help: "Fallback attempts rejected by the bulkhead",
		}),
		IndexBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_index_builds_total",
			Help: "Lazy builds of coarse targeting keys",
		}),
		FlushedCampaigns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_flushed_campaigns_total",
			Help: "Campaigns whose spend delta was written back to the durable ledger",
		}),
		FlushedMinor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_flushed_minor_units_total",
			Help: "Spend delta written back to the durable ledger, in minor units",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adserve_flush_failures_total",
			Help: "Flush chunks that failed and had their deltas resurfaced",
		}),
	}

	reg.MustRegister(
		m.ServesTotal,
		m.SpendMinor,
		m.ServeDuration,
		m.MemoHits,
		m.FallbackServes,
		m.BulkheadRejected,
		m.IndexBuilds,
		m.FlushedCampaigns,
		m.FlushedMinor,
		m.FlushFailures,
	)

	return m
}

// Registry returns the prometheus registry for metrics export.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
