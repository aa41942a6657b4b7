package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CTAG07/Vitrine/pkg/store"
)

const (
	defaultStatsLimit = 100
	maxStatsLimit     = 1000
)

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *store.Store
	logger *slog.Logger
}

func NewStatsAPI(st *store.Store, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  st,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(r chi.Router) {
	r.Get("/api/stats/summary", s.handleSummary)
	r.Get("/api/stats/templates", s.handleTopTemplates)
	r.Get("/api/stats/downloads", s.handleRecentDownloads)
	r.Get("/api/stats/top_ips", s.handleTopIPs)
}

// limitParam reads the optional ?limit= parameter, clamped to maxStatsLimit.
func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultStatsLimit
	}
	return min(limit, maxStatsLimit)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "stats:read") {
		return
	}
	summary, err := s.store.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to summarize stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopTemplates(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "stats:read") {
		return
	}
	rows, err := s.store.TopTemplates(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to query top templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}

	type templateStats struct {
		store.Stats
		Rating float64 `json:"rating"`
	}
	results := make([]templateStats, 0, len(rows))
	for _, st := range rows {
		results = append(results, templateStats{Stats: st, Rating: st.Average()})
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (s *StatsAPI) handleRecentDownloads(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "stats:read") {
		return
	}
	entries, err := s.store.RecentDownloads(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to query download log", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	if entries == nil {
		entries = []store.DownloadEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (s *StatsAPI) handleTopIPs(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "stats:read") {
		return
	}
	downloaders, err := s.store.TopDownloaders(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to query top IPs", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	if downloaders == nil {
		downloaders = []store.Downloader{}
	}
	respondWithJSON(w, http.StatusOK, downloaders)
}
