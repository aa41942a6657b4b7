package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/CTAG07/Vitrine/pkg/catalog"
	"github.com/CTAG07/Vitrine/pkg/metrics"
	"github.com/CTAG07/Vitrine/pkg/store"
)

// RatingResponse is the body of a successful rating.
type RatingResponse struct {
	Success bool `json:"success"`
	*store.RatingResult
}

// handleDownload packages a template and serves it as a zip, within the
// per-IP download limit.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "template")
	ip := s.clientIP(r)

	dir, err := s.catalog.Lookup(name)
	if err != nil {
		if errors.Is(err, catalog.ErrNoManifest) {
			s.reject(w, r, http.StatusNotFound, "Template info not found", fmt.Sprintf("info.json missing for %s", name))
			return
		}
		s.reject(w, r, http.StatusNotFound, "Template not found", fmt.Sprintf("Template %s not found", name))
		return
	}

	decision, err := s.downloads.Reserve(r.Context(), ip, s.store.DownloadSlots(name))
	if err != nil {
		s.logger.Error("Failed to reserve download", "ip", ip, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !decision.Allowed {
		s.metrics.RateLimited.WithLabelValues(metrics.ActionDownload).Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter/time.Second)))
		s.reject(w, r, http.StatusTooManyRequests,
			fmt.Sprintf("You have exceeded the download limit. Please wait %s before trying again.", waitText(decision.RetryAfter)),
			fmt.Sprintf("Download rate limit exceeded for %s (Count: %d)", name, decision.Count))
		return
	}

	archive, size, err := s.packager.WriteTemp(r.Context(), dir)
	if err != nil {
		s.logger.Error("Failed to package template", "template", name, "error", err)
		s.releaseDownload(r, decision.ID)
		s.reject(w, r, http.StatusInternalServerError, "Could not create zip file", fmt.Sprintf("Could not create zip file for %s", name))
		return
	}
	defer func(f *os.File) {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}(archive)

	if err = s.store.IncrementDownloads(r.Context(), name); err != nil {
		s.logger.Error("Failed to record download", "template", name, "ip", ip, "error", err)
		s.releaseDownload(r, decision.ID)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	s.metrics.Downloads.WithLabelValues(name).Inc()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, name))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err = io.Copy(w, archive); err != nil {
		s.logger.Warn("Failed to send archive", "template", name, "ip", ip, "error", err)
		return
	}
	s.logger.Info("Served template download", "template", name, "ip", ip, "size", humanize.Bytes(uint64(size)),
		"remaining", decision.Remaining(), "exempt", decision.Exempt)
}

// releaseDownload gives a reserved download slot back after a failure, so
// the visitor's limit is not consumed by a download they never received.
func (s *Server) releaseDownload(r *http.Request, id int64) {
	if err := s.store.ReleaseDownload(context.WithoutCancel(r.Context()), id); err != nil {
		s.logger.Error("Failed to release download slot", "id", id, "error", err)
	}
}

// handleView counts a template view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "template")
	if !s.requireTemplate(w, r, name) {
		return
	}
	if err := s.store.IncrementViews(r.Context(), name); err != nil {
		s.logger.Error("Failed to track view", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	s.metrics.Views.WithLabelValues(name).Inc()
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleFavorite adds a favorite for action=add and removes one otherwise.
func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "template")
	if !s.requireTemplate(w, r, name) {
		return
	}
	add := r.FormValue("action") == "add"
	if err := s.store.AdjustFavorites(r.Context(), name, add); err != nil {
		s.logger.Error("Failed to update favorites", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	action := "remove"
	if add {
		action = "add"
	}
	s.metrics.Favorites.WithLabelValues(name, action).Inc()

	st, err := s.store.Stats(r.Context(), name)
	if err != nil {
		s.logger.Error("Failed to read favorites", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "favorites": st.Favorites})
}

// handleRate records a 1 to 5 rating from the visitor.
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "template")
	ip := s.clientIP(r)
	if !s.requireTemplate(w, r, name) {
		return
	}

	raw := strings.TrimSpace(r.FormValue("rating"))
	rating, err := strconv.Atoi(raw)
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "Invalid rating", fmt.Sprintf("Invalid rating %s for %s", raw, name))
		return
	}

	cfg := s.cm.Get()
	cooldown := cfg.RatingCooldown()
	result, err := s.store.Rate(r.Context(), name, ip, rating, cooldown)
	var cooldownErr *store.CooldownError
	switch {
	case err == nil:
	case errors.Is(err, store.ErrInvalidRating):
		s.reject(w, r, http.StatusBadRequest, "Invalid rating", fmt.Sprintf("Invalid rating %d for %s", rating, name))
		return
	case errors.Is(err, store.ErrSameRating):
		s.reject(w, r, http.StatusBadRequest, "You already gave this rating to this template",
			fmt.Sprintf("Already gave rating %d to %s", rating, name))
		return
	case errors.As(err, &cooldownErr):
		s.metrics.RateLimited.WithLabelValues(metrics.ActionRate).Inc()
		elapsed := (time.Duration(cooldown) - cooldownErr.Wait) / time.Second
		s.weblog.Error(ip, fmt.Sprintf("Rate limit for %s too frequent (%d seconds since last)", name, elapsed))
		respondWithJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:       true,
			Message:     "You can only re-rate a template once per minute",
			WaitSeconds: cooldownErr.WaitSeconds(),
		})
		return
	default:
		s.logger.Error("Failed to rate template", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	s.metrics.Ratings.WithLabelValues(name, strconv.Itoa(rating)).Inc()
	respondWithJSON(w, http.StatusOK, RatingResponse{Success: true, RatingResult: result})
}

// requireTemplate rejects names that are not listed templates, including
// folders whose manifest is missing or incomplete.
func (s *Server) requireTemplate(w http.ResponseWriter, r *http.Request, name string) bool {
	_, err := s.catalog.Get(r.Context(), name)
	switch {
	case err == nil:
		return true
	case errors.Is(err, catalog.ErrInvalidName), errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, catalog.ErrNoManifest), errors.Is(err, catalog.ErrInvalidManifest):
		s.reject(w, r, http.StatusNotFound, "Template not found", fmt.Sprintf("Template %s not found", name))
	default:
		s.logger.Error("Failed to load template", "template", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
	return false
}

// waitText renders a limit window as "10 minutes" or "45 seconds".
func waitText(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	case d == time.Second:
		return "1 second"
	default:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
}
