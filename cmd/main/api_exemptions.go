package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ExemptionAPI manages the IP addresses that bypass the download limit.
type ExemptionAPI struct {
	db     *sql.DB
	logger *slog.Logger
	cache  *ExemptionCache
}

// setupExemptionSchema creates the table for storing exempted IPs.
func setupExemptionSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS exemptions (
		id INTEGER PRIMARY KEY,
		ip TEXT NOT NULL UNIQUE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ExemptionCache is the in-memory copy of the exemptions table consulted on
// every limited request.
type ExemptionCache struct {
	mu  sync.RWMutex
	ips map[string]struct{}
}

func NewExemptionCache() *ExemptionCache {
	return &ExemptionCache{ips: make(map[string]struct{})}
}

// LoadFromDB reads all exemptions from the database into the cache.
func (c *ExemptionCache) LoadFromDB(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT ip FROM exemptions")
	if err != nil {
		return err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	ips := make(map[string]struct{})
	for rows.Next() {
		var ip string
		if err = rows.Scan(&ip); err != nil {
			return err
		}
		ips[canonicalIP(ip)] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.ips = ips
	c.mu.Unlock()
	return nil
}

// Add safely adds a single entry to the cache.
func (c *ExemptionCache) Add(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ips[canonicalIP(ip)] = struct{}{}
}

// Remove safely removes a single entry from the cache.
func (c *ExemptionCache) Remove(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ips, canonicalIP(ip))
}

// IsExempt safely checks if an IP is in the cache.
func (c *ExemptionCache) IsExempt(ip string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := c.ips[canonicalIP(ip)]
	return found
}

// NewExemptionAPI creates a new instance of the ExemptionAPI.
func NewExemptionAPI(db *sql.DB, logger *slog.Logger, cache *ExemptionCache) *ExemptionAPI {
	return &ExemptionAPI{
		db:     db,
		logger: logger,
		cache:  cache,
	}
}

// RegisterRoutes sets up the routing for all /api/exemptions endpoints.
func (a *ExemptionAPI) RegisterRoutes(r chi.Router) {
	r.Get("/api/exemptions/ip", a.getList)
	r.Post("/api/exemptions/ip", a.addToList)
	r.Delete("/api/exemptions/ip", a.removeFromList)
}

// getList retrieves all exempted IPs.
func (a *ExemptionAPI) getList(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "exemptions:read") {
		return
	}

	rows, err := a.db.QueryContext(r.Context(), "SELECT ip FROM exemptions ORDER BY ip")
	if err != nil {
		a.logger.Error("Failed to query exemptions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve exemptions")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	values := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			a.logger.Error("Failed to scan exemption", "error", err)
			continue
		}
		values = append(values, value)
	}

	respondWithJSON(w, http.StatusOK, values)
}

// readIP decodes and validates the {"value": "..."} body shared by add and remove.
func readIP(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return "", false
	}
	value := strings.TrimSpace(payload.Value)
	if value == "" {
		respondWithError(w, http.StatusBadRequest, "Exemption value cannot be empty")
		return "", false
	}
	ip := net.ParseIP(value)
	if ip == nil {
		respondWithError(w, http.StatusBadRequest, "Exemption value must be an IP address")
		return "", false
	}
	return ip.String(), true
}

// canonicalIP returns the net.IP.String form of an address, so that
// IPv4-mapped and differently spelled IPv6 addresses compare equal.
// Values that are not addresses are returned unchanged.
func canonicalIP(value string) string {
	if ip := net.ParseIP(value); ip != nil {
		return ip.String()
	}
	return value
}

// addToList exempts a new IP.
func (a *ExemptionAPI) addToList(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "exemptions:write") {
		return
	}
	value, ok := readIP(w, r)
	if !ok {
		return
	}

	_, err := a.db.ExecContext(r.Context(), "INSERT INTO exemptions (ip) VALUES (?)", value)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			respondWithError(w, http.StatusConflict, "IP is already exempted")
		} else {
			a.logger.Error("Failed to insert exemption", "ip", value, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to add exemption")
		}
		return
	}

	a.cache.Add(value)
	a.logger.Info("Added rate limit exemption", "ip", value)
	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "IP exempted"})
}

// removeFromList removes an exempted IP.
func (a *ExemptionAPI) removeFromList(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "exemptions:write") {
		return
	}
	value, ok := readIP(w, r)
	if !ok {
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM exemptions WHERE ip = ?", value)
	if err != nil {
		a.logger.Error("Failed to delete exemption", "ip", value, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to remove exemption")
		return
	}

	rowsAffected, _ := res.RowsAffected()
	if rowsAffected == 0 {
		respondWithError(w, http.StatusNotFound, "IP is not exempted")
		return
	}

	a.cache.Remove(value)
	a.logger.Info("Removed rate limit exemption", "ip", value)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Exemption removed"})
}
