package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CTAG07/Vitrine/pkg/views"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the dependencies for the main application API handlers.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	vm         *views.Manager
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(cm *ConfigManager, actionChan chan string, vm *views.Manager, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		actionChan: actionChan,
		vm:         vm,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server and /api/views endpoints.
func (a *ServerAPI) RegisterRoutes(r chi.Router) {
	r.Get("/api/server/config", a.handleGetConfig)
	r.Put("/api/server/config", a.handlePutConfig)
	r.Get("/api/server/version", a.handleVersion)
	r.Post("/api/server/shutdown", a.handleShutdown)
	r.Post("/api/server/restart", a.handleRestart)
	r.Post("/api/views/refresh", a.handleRefreshViews)
}

func (a *ServerAPI) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "server:config") {
		return
	}
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handlePutConfig replaces the configuration. Limits, catalog settings and
// trusted proxies apply immediately; addresses and paths need a restart.
func (a *ServerAPI) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "server:config") {
		return
	}
	var newConfig Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	if err := a.cm.Update(newConfig); err != nil {
		a.logger.Error("Failed to update configuration", "error", err)
		respondWithError(w, http.StatusBadRequest, "Failed to update configuration: "+err.Error())
		return
	}

	a.logger.Info("Application configuration updated and saved via API. Some changes may require a restart.")
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "stats:read") {
		return
	}
	respondWithJSON(w, http.StatusOK, currentVersion())
}

// handleShutdown initiates a graceful shutdown of the server.
func (a *ServerAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "server:control") {
		return
	}

	a.logger.Warn("Shutdown initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is shutting down..."})

	go func() {
		a.actionChan <- actionShutdown
	}()
}

// handleRestart initiates a graceful restart of the server.
func (a *ServerAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "server:control") {
		return
	}

	a.logger.Warn("Restart initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is restarting..."})

	go func() {
		a.actionChan <- actionRestart
	}()
}

// handleRefreshViews re-parses the page templates from disk.
func (a *ServerAPI) handleRefreshViews(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "views:write") {
		return
	}
	if err := a.vm.Refresh(); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Failed to reload views: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"message": "Views reloaded", "pages": a.vm.Names()})
}

// handleHealthCheck is left unauthenticated so orchestrators can probe it.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
