// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api is the HTTP boundary: the serve endpoint, campaign
// administration and metrics export. It only translates between the wire
// and the engine; selection and spend logic lives below it.
package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adxyz/adserve/core"
	"github.com/adxyz/adserve/engine"
	"github.com/adxyz/adserve/indexer"
	"github.com/adxyz/adserve/pkg/log"
	"github.com/adxyz/adserve/pkg/metric"
	"github.com/adxyz/adserve/pkg/money"
	"github.com/adxyz/adserve/pkg/uaparse"
	"github.com/adxyz/adserve/store"
)

// Server holds the HTTP handlers.
type Server struct {
	engine  *engine.Engine
	indexer *indexer.Indexer
	store   store.Store
	metrics *metric.Metrics
	log     log.Logger
}

// New creates the HTTP surface.
func New(e *engine.Engine, ix *indexer.Indexer, st store.Store, m *metric.Metrics, logger log.Logger) *Server {
	return &Server{engine: e, indexer: ix, store: st, metrics: m, log: logger}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/serve", s.handleServe).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/serve/params", s.handleServeByParams).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/campaigns", s.handleListCampaigns).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/campaigns", s.handleSaveCampaign).Methods(http.MethodPost)

	r.HandleFunc("/admin/reindex/{id:[0-9]+}", s.handleReindexOne).Methods(http.MethodPost)
	r.HandleFunc("/admin/warm-all", s.handleWarmAll).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// serveResponse is the wire form of a served campaign. Monetary values go
// out as decimal major-unit strings.
type serveResponse struct {
	CampaignID      int64  `json:"campaignId"`
	DeliveryLink    string `json:"deliveryLink"`
	BiddingRate     string `json:"biddingRate"`
	RemainingBudget string `json:"remainingBudget"`
}

// handleServe infers targeting attributes from request headers.
func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	ua := r.Header.Get("User-Agent")
	req := core.Request{
		Country:  r.Header.Get("X-Country"),
		Language: uaparse.ParseLanguage(r.Header.Get("Accept-Language")),
		Device:   uaparse.ParseDevice(ua, r.Header.Get("X-Device")),
		Platform: uaparse.ParseOS(ua),
		Browser:  uaparse.ParseBrowser(ua),
		Category: r.Header.Get("X-IAB-Category"),
		IP:       clientIP(r),
		Domain:   uaparse.ExtractHost(r.Header.Get("X-Domain"), r.Header.Get("Origin"), r.Header.Get("Referer")),
	}
	s.serve(w, r, req)
}

// handleServeByParams takes targeting attributes as explicit query
// parameters; anything absent is a wildcard.
func (s *Server) handleServeByParams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := core.Request{
		Country:  q.Get("country"),
		Language: q.Get("language"),
		Device:   q.Get("device"),
		Platform: q.Get("os"),
		Browser:  q.Get("browser"),
		Category: q.Get("iab"),
		IP:       q.Get("ip"),
		Domain:   q.Get("domain"),
	}
	s.serve(w, r, req)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, req core.Request) {
	reqID := uuid.NewString()

	resp, err := s.engine.Serve(r.Context(), req)
	if err != nil {
		s.log.Error("serve failed", "request", reqID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, serveResponse{
		CampaignID:      resp.CampaignID,
		DeliveryLink:    resp.DeliveryLink,
		BiddingRate:     money.FormatMinor(resp.BidMinor),
		RemainingBudget: money.FormatMinor(resp.RemainingMinor),
	})
}

// campaignPayload is the wire form of a campaign record.
type campaignPayload struct {
	CampaignID      int64    `json:"campaignId"`
	DeliveryLink    string   `json:"deliveryLink"`
	BiddingRate     string   `json:"biddingRate"`
	TotalBudget     string   `json:"totalBudget"`
	RemainingBudget string   `json:"remainingBudget"`
	Countries       []string `json:"countries,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	Devices         []string `json:"devices,omitempty"`
	Platforms       []string `json:"platforms,omitempty"`
	AllowBrowsers   []string `json:"allowBrowsers,omitempty"`
	AllowCategories []string `json:"allowCategories,omitempty"`
	AllowIPs        []string `json:"allowIPs,omitempty"`
	AllowDomains    []string `json:"allowDomains,omitempty"`
	BlockIPs        []string `json:"blockIPs,omitempty"`
	BlockDomains    []string `json:"blockDomains,omitempty"`
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	ids, err := s.store.CampaignIDs(r.Context(), 0, limit)
	if err != nil {
		s.log.Error("campaign list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	cs, err := s.store.Campaigns(r.Context(), ids)
	if err != nil {
		s.log.Error("campaign list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]campaignPayload, 0, len(cs))
	for _, c := range cs {
		out = append(out, toPayload(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveCampaign(w http.ResponseWriter, r *http.Request) {
	var p campaignPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	c, err := fromPayload(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.Save(r.Context(), c); err != nil {
		s.log.Error("campaign save failed", "campaign", c.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := s.indexer.WarmOne(r.Context(), c.ID); err != nil {
		s.log.Warn("campaign saved but warm failed", "campaign", c.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, toPayload(c))
}

func (s *Server) handleReindexOne(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	found, err := s.indexer.WarmOne(r.Context(), id)
	if err != nil {
		s.log.Error("reindex failed", "campaign", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reindexed": id})
}

func (s *Server) handleWarmAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageSize := intParam(q.Get("pageSize"), 5000)
	batchSize := intParam(q.Get("batchSize"), 1000)

	count, err := s.indexer.WarmAllPaged(r.Context(), pageSize, batchSize)
	if err != nil {
		s.log.Error("warm-all failed", "processed", count, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"warmed": count})
}

func toPayload(c core.Campaign) campaignPayload {
	return campaignPayload{
		CampaignID:      c.ID,
		DeliveryLink:    c.DeliveryLink,
		BiddingRate:     money.FormatMinor(c.BidMinor),
		TotalBudget:     money.FormatMinor(c.TotalMinor),
		RemainingBudget: money.FormatMinor(c.RemainingMinor),
		Countries:       c.Filters.Countries.Values(),
		Languages:       c.Filters.Languages.Values(),
		Devices:         c.Filters.Devices.Values(),
		Platforms:       c.Filters.Platforms.Values(),
		AllowBrowsers:   c.Filters.AllowBrowsers.Values(),
		AllowCategories: c.Filters.AllowCategories.Values(),
		AllowIPs:        c.Filters.AllowIPs.Values(),
		AllowDomains:    c.Filters.AllowDomains.Values(),
		BlockIPs:        c.Filters.BlockIPs.Values(),
		BlockDomains:    c.Filters.BlockDomains.Values(),
	}
}

func fromPayload(p campaignPayload) (core.Campaign, error) {
	c := core.Campaign{
		ID:           p.CampaignID,
		DeliveryLink: p.DeliveryLink,
		Filters: core.Filters{
			Countries:       core.NewStringSet(p.Countries...),
			Languages:       core.NewStringSet(p.Languages...),
			Devices:         core.NewStringSet(p.Devices...),
			Platforms:       core.NewStringSet(p.Platforms...),
			AllowBrowsers:   core.NewStringSet(p.AllowBrowsers...),
			AllowCategories: core.NewStringSet(p.AllowCategories...),
			AllowIPs:        core.NewStringSet(p.AllowIPs...),
			AllowDomains:    core.NewStringSet(p.AllowDomains...),
			BlockIPs:        core.NewStringSet(p.BlockIPs...),
			BlockDomains:    core.NewStringSet(p.BlockDomains...),
		},
	}
	var err error
	if c.BidMinor, err = money.ParseMinor(p.BiddingRate); err != nil {
		return core.Campaign{}, err
	}
	if c.TotalMinor, err = money.ParseMinor(p.TotalBudget); err != nil {
		return core.Campaign{}, err
	}
	if c.RemainingMinor, err = money.ParseMinor(p.RemainingBudget); err != nil {
		return core.Campaign{}, err
	}
	return c, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
