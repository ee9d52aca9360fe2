// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adxyz/adserve/admission"
	"github.com/adxyz/adserve/cache"
	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/engine"
	"github.com/adxyz/adserve/indexer"
	"github.com/adxyz/adserve/metacache"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLStore) {
	t.Helper()
	logger := log.NoOp()
	m := metric.New()

	st, err := store.Open(filepath.Join(t.TempDir(), "adserve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cs := cache.New(logger)
	meta, err := metacache.New(st, 1000, time.Minute, logger)
	require.NoError(t, err)
	t.Cleanup(meta.Close)

	neg, err := admission.NewNegative(1000, 3*time.Second)
	require.NoError(t, err)
	t.Cleanup(neg.Close)

	pos, err := admission.NewPositive(1000, time.Second)
	require.NoError(t, err)
	t.Cleanup(pos.Close)

	ix := indexer.New(cs, st, meta, m, logger, indexer.Config{
		TopLimitPerKey: 50,
		SliceSize:      50,
		KeyTTL:         time.Hour,
		EmptyKeyTTL:    time.Minute,
		BuildLockLease: 30 * time.Second,
	})

	eng := engine.New(cs, st, meta, ix, neg, pos, admission.NewBulkhead(8), m, logger, engine.Config{
		FallbackEnabled:     true,
		FallbackTimeout:     time.Second,
		FallbackPageSize:    500,
		BulkheadNegativeTTL: 250 * time.Millisecond,
	})

	srv := httptest.NewServer(New(eng, ix, st, m, logger).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func seed(t *testing.T, st *store.SQLStore, c core.Campaign) {
	t.Helper()
	require.NoError(t, st.Save(context.Background(), c))
}

func TestServeByParams(t *testing.T) {
	require := require.New(t)
	srv, st := newTestServer(t)

	c := core.Campaign{ID: 1, DeliveryLink: "https://ads.example/1", BidMinor: 250, TotalMinor: 10_000, RemainingMinor: 10_000}
	c.Filters.Countries = core.NewStringSet("US")
	seed(t, st, c)

	resp, err := http.Get(srv.URL + "/api/v1/serve/params?country=US")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		CampaignID      int64  `json:"campaignId"`
		DeliveryLink    string `json:"deliveryLink"`
		BiddingRate     string `json:"biddingRate"`
		RemainingBudget string `json:"remainingBudget"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(int64(1), body.CampaignID)
	require.Equal("https://ads.example/1", body.DeliveryLink)
	require.Equal("2.50", body.BiddingRate)
	require.Equal("97.50", body.RemainingBudget)
}

func TestServeNoContent(t *testing.T) {
	require := require.New(t)
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/serve/params?country=ZZ")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusNoContent, resp.StatusCode)
}

func TestServeByHeaders(t *testing.T) {
	require := require.New(t)
	srv, st := newTestServer(t)

	// Header inference always produces concrete coarse values, so the
	// campaign must carry all four.
	c := core.Campaign{ID: 1, DeliveryLink: "https://ads.example/1", BidMinor: 100, TotalMinor: 10_000, RemainingMinor: 10_000}
	c.Filters.Countries = core.NewStringSet("US")
	c.Filters.Languages = core.NewStringSet("en-US")
	c.Filters.Devices = core.NewStringSet("Desktop")
	c.Filters.Platforms = core.NewStringSet("Windows")
	seed(t, st, c)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/serve", nil)
	require.NoError(err)
	req.Header.Set("X-Country", "US")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/124.0")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
}

func TestCreateAndListCampaigns(t *testing.T) {
	require := require.New(t)
	srv, _ := newTestServer(t)

	payload := map[string]any{
		"campaignId":      7,
		"deliveryLink":    "https://ads.example/7",
		"biddingRate":     "1.25",
		"totalBudget":     "500.00",
		"remainingBudget": "500.00",
		"countries":       []string{"DE"},
	}
	buf, err := json.Marshal(payload)
	require.NoError(err)

	resp, err := http.Post(srv.URL+"/api/v1/campaigns", "application/json", bytes.NewReader(buf))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/campaigns")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var list []map[string]any
	require.NoError(json.NewDecoder(resp.Body).Decode(&list))
	require.Len(list, 1)
	require.Equal("1.25", list[0]["biddingRate"])
}

func TestCreateCampaignRejectsFractionalCents(t *testing.T) {
	require := require.New(t)
	srv, _ := newTestServer(t)

	payload := map[string]any{
		"campaignId":      7,
		"deliveryLink":    "https://ads.example/7",
		"biddingRate":     "1.255",
		"totalBudget":     "500.00",
		"remainingBudget": "500.00",
	}
	buf, err := json.Marshal(payload)
	require.NoError(err)

	resp, err := http.Post(srv.URL+"/api/v1/campaigns", "application/json", bytes.NewReader(buf))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestReindexUnknownCampaign(t *testing.T) {
	require := require.New(t)
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/admin/reindex/99", "application/json", nil)
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestWarmAll(t *testing.T) {
	require := require.New(t)
	srv, st := newTestServer(t)

	for id := int64(1); id <= 3; id++ {
		seed(t, st, core.Campaign{ID: id, DeliveryLink: "x", BidMinor: 100, TotalMinor: 1000, RemainingMinor: 1000})
	}

	resp, err := http.Post(srv.URL+"/admin/warm-all", "application/json", nil)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var body map[string]int
	require.NoError(json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(3, body["warmed"])
}

func TestHealthAndMetrics(t *testing.T) {
	require := require.New(t)
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
}
