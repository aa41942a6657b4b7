package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CTAG07/Vitrine/pkg/auth"
)

const (
	authHeader = "vitrine-auth"
	keyPrefix  = "vit_"
)

// AuthAPI authenticates admin requests and manages the API keys.
type AuthAPI struct {
	keys   *auth.Keyring
	logger *slog.Logger
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse carries the raw key, shown only once.
type CreateKeyResponse struct {
	ID     int64    `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

func NewAuthAPI(keys *auth.Keyring, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{keys: keys, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(r chi.Router) {
	r.Get("/api/auth/me", a.handleCheckMe)
	r.Get("/api/auth/keys", a.listKeys)
	r.Post("/api/auth/keys", a.createKey)
	r.Delete("/api/auth/keys/{id}", a.deleteKey)
}

// Authenticate resolves the key in the vitrine-auth header to its scopes.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scopes, err := a.keys.Resolve(r.Context(), r.Header.Get(authHeader))
		if errors.Is(err, auth.ErrUnknownKey) {
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		}
		if err != nil {
			a.logger.Error("Failed to authenticate request", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithScopes(r.Context(), scopes)))
	})
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	scopes, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": scopes.List()})
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "auth:manage") {
		return
	}
	keys, err := a.keys.List(r.Context())
	if err != nil {
		a.logger.Error("Failed to list API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "auth:manage") {
		return
	}
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	key, raw, err := a.keys.Create(r.Context(), req.Scopes, req.Description)
	if err != nil {
		a.logger.Error("Failed to create API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}
	a.logger.Info("Created API key", "id", key.ID, "scopes", key.Scopes)
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: key.ID, RawKey: raw, Scopes: key.Scopes})
}

func (a *AuthAPI) deleteKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "auth:manage") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}

	switch err = a.keys.Delete(r.Context(), id); {
	case err == nil:
		a.logger.Info("Deleted API key", "id", id)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrProtected):
		respondWithError(w, http.StatusBadRequest, "Cannot delete the primary master key (ID 1)")
	case errors.Is(err, auth.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	default:
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	}
}

// requireScope writes a 403 unless the authenticated caller holds scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if scopes, ok := auth.FromContext(r.Context()); ok && scopes.Has(scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, "Forbidden: requires '"+scope+"' scope")
	return false
}
