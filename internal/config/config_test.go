// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load()
	require.NoError(err)
	require.Equal(8080, cfg.Port)
	require.Equal("adserve.db", cfg.DBPath)
	require.Equal(200*time.Millisecond, cfg.FlushInterval)
	require.Equal(50, cfg.TopLimitPerKey)
	require.Equal(int64(32), cfg.BulkheadPermits)
	require.Equal(500*time.Millisecond, cfg.PositiveTTL)
	require.Equal(3*time.Second, cfg.NegativeTTL)
	require.True(cfg.FallbackEnabled)
	require.False(cfg.WarmOnStart)
}

func TestLoadOverrides(t *testing.T) {
	require := require.New(t)
	t.Setenv("ADSERVE_PORT", "9090")
	t.Setenv("ADSERVE_KEY_TTL", "30m")
	t.Setenv("ADSERVE_DB_FALLBACK_ENABLED", "false")

	cfg, err := Load()
	require.NoError(err)
	require.Equal(9090, cfg.Port)
	require.Equal(30*time.Minute, cfg.KeyTTL)
	require.False(cfg.FallbackEnabled)
}
