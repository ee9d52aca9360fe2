// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads runtime configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of the delivery daemon.
type Config struct {
	Port     int    `env:"ADSERVE_PORT" envDefault:"8080"`
	DBPath   string `env:"ADSERVE_DB_PATH" envDefault:"adserve.db"`
	LogLevel string `env:"ADSERVE_LOG_LEVEL" envDefault:"info"`

	// Delta flusher
	FlushInterval   time.Duration `env:"ADSERVE_FLUSH_INTERVAL" envDefault:"200ms"`
	FlushMaxPerTick int           `env:"ADSERVE_FLUSH_MAX_PER_TICK" envDefault:"4096"`
	FlushChunkSize  int           `env:"ADSERVE_FLUSH_CHUNK_SIZE" envDefault:"256"`

	// Lazy indexer
	TopLimitPerKey int           `env:"ADSERVE_TOP_LIMIT_PER_KEY" envDefault:"50"`
	SliceSize      int           `env:"ADSERVE_SLICE_SIZE" envDefault:"50"`
	KeyTTL         time.Duration `env:"ADSERVE_KEY_TTL" envDefault:"6h"`
	EmptyKeyTTL    time.Duration `env:"ADSERVE_EMPTY_KEY_TTL" envDefault:"60s"`
	BuildLockLease time.Duration `env:"ADSERVE_BUILD_LOCK_LEASE" envDefault:"30s"`

	// Admission control
	MemoEntries         int64         `env:"ADSERVE_MEMO_ENTRIES" envDefault:"500000"`
	NegativeTTL         time.Duration `env:"ADSERVE_NEGATIVE_TTL" envDefault:"3s"`
	PositiveTTL         time.Duration `env:"ADSERVE_POSITIVE_TTL" envDefault:"500ms"`
	BulkheadPermits     int64         `env:"ADSERVE_BULKHEAD_PERMITS" envDefault:"32"`
	BulkheadNegativeTTL time.Duration `env:"ADSERVE_BULKHEAD_NEGATIVE_TTL" envDefault:"250ms"`

	// Metadata cache
	MetaEntries int64         `env:"ADSERVE_META_ENTRIES" envDefault:"200000"`
	MetaTTL     time.Duration `env:"ADSERVE_META_TTL" envDefault:"10m"`

	// Fallback matcher
	FallbackEnabled  bool          `env:"ADSERVE_DB_FALLBACK_ENABLED" envDefault:"true"`
	FallbackTimeout  time.Duration `env:"ADSERVE_FALLBACK_TIMEOUT" envDefault:"750ms"`
	FallbackPageSize int           `env:"ADSERVE_FALLBACK_PAGE_SIZE" envDefault:"500"`

	// Warmup
	WarmOnStart   bool `env:"ADSERVE_WARM_ON_START" envDefault:"false"`
	WarmPageSize  int  `env:"ADSERVE_WARM_PAGE_SIZE" envDefault:"5000"`
	WarmBatchSize int  `env:"ADSERVE_WARM_BATCH_SIZE" envDefault:"1000"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
