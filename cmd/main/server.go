package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CTAG07/Vitrine/pkg/auth"
	"github.com/CTAG07/Vitrine/pkg/browse"
	"github.com/CTAG07/Vitrine/pkg/catalog"
	"github.com/CTAG07/Vitrine/pkg/metrics"
	"github.com/CTAG07/Vitrine/pkg/packager"
	"github.com/CTAG07/Vitrine/pkg/ratelimit"
	"github.com/CTAG07/Vitrine/pkg/store"
	"github.com/CTAG07/Vitrine/pkg/views"
	"github.com/CTAG07/Vitrine/pkg/weblog"
)

const homePage = "home.gohtml"

// Server wires the marketplace components to the public and admin routers.
type Server struct {
	cm           *ConfigManager
	db           *sql.DB
	logger       *slog.Logger
	store        *store.Store
	catalog      *catalog.Catalog
	vm           *views.Manager
	packager     *packager.Packager
	downloads    *ratelimit.Limiter
	exemptions   *ExemptionCache
	weblog       *weblog.Logger
	metrics      *metrics.Metrics
	authAPI      *AuthAPI
	statsAPI     *StatsAPI
	serverAPI    *ServerAPI
	exemptionAPI *ExemptionAPI
	publicRouter chi.Router
	apiRouter    chi.Router
	now          func() time.Time
}

// HomePage is the data rendered by the home page.
type HomePage struct {
	Page        browse.Page
	Categories  []string
	TopTags     []string
	Countdown   browse.Countdown
	Total       int64
	BackendData BackendData
}

// BackendData is embedded in the home page for the client-side script.
type BackendData struct {
	Templates           []catalog.Template `json:"templates"`
	CountdownTargetDate string             `json:"countdownTargetDate"`
}

// TemplateList is the response of GET /api/templates.
type TemplateList struct {
	browse.Page
	Categories []string `json:"categories"`
	TopTags    []string `json:"top_tags"`
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, wl *weblog.Logger, actionChan chan string) (*Server, error) {
	cfg := cm.Get()

	st := store.New(db, store.WithLogger(logger))
	cat := catalog.New(cfg.CatalogSettings(), st, logger)

	vm, err := views.NewManager(logger, cfg.Server.UIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create view manager: %w", err)
	}

	exemptions := NewExemptionCache()
	if err = exemptions.LoadFromDB(context.Background(), db); err != nil {
		return nil, fmt.Errorf("failed to load exemptions from db: %w", err)
	}
	downloads := ratelimit.New(cfg.DownloadWindow(), ratelimit.WithExempter(exemptions))
	cm.Attach(cat, downloads)

	s := &Server{
		cm:           cm,
		db:           db,
		logger:       logger,
		store:        st,
		catalog:      cat,
		vm:           vm,
		packager:     packager.New(),
		downloads:    downloads,
		exemptions:   exemptions,
		weblog:       wl,
		metrics:      metrics.New(),
		authAPI:      NewAuthAPI(auth.New(db, keyPrefix), logger),
		statsAPI:     NewStatsAPI(st, logger),
		serverAPI:    NewServerAPI(cm, actionChan, vm, logger),
		exemptionAPI: NewExemptionAPI(db, logger, exemptions),
		now:          time.Now,
	}
	s.publicRouter = s.buildPublicRouter(cfg)
	s.apiRouter = s.buildAPIRouter()
	return s, nil
}

func (s *Server) buildPublicRouter(cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(s.weblog.Middleware(s.clientIP), s.metrics.Middleware, middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusNotFound, "Not found")
	})

	r.Get("/", s.handleHome)
	r.Get("/favicon.ico", handleFavicon)
	r.Get("/download/{template}", s.handleDownload)
	r.Post("/api/view/{template}", s.handleView)
	r.Post("/api/rate/{template}", s.handleRate)
	r.Post("/api/favorite/{template}", s.handleFavorite)
	r.Get("/api/templates", s.handleListTemplates)
	r.Get("/api/templates/{template}/related", s.handleRelated)

	assets := http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Server.AssetsPath)))
	r.Handle("/assets/*", assets)
	r.Get("/{template}/*", s.handleTemplateFile)
	return r
}

func (s *Server) buildAPIRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// The health check is unauthed so something like docker can use it.
	r.Get("/api/health", s.serverAPI.handleHealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(s.authAPI.Authenticate)
		s.authAPI.RegisterRoutes(r)
		s.statsAPI.RegisterRoutes(r)
		s.serverAPI.RegisterRoutes(r)
		s.exemptionAPI.RegisterRoutes(r)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "stats:read") {
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// handleHome renders the catalog page for the current search state.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	cfg := s.cm.Get()
	templates, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list templates", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	q := browse.ParseQuery(r.URL.Query(), cfg.Catalog.PerPage)
	data := HomePage{
		Page:       browse.Run(templates, q),
		Categories: browse.Categories(templates),
		TopTags:    browse.TopTags(templates, browse.DefaultTopTags),
		Countdown:  browse.Countdown{Done: true},
		Total:      int64(len(templates)),
		BackendData: BackendData{
			Templates:           templates,
			CountdownTargetDate: cfg.Server.CountdownTarget,
		},
	}
	if cfg.Server.CountdownTarget != "" {
		if target, err := browse.ParseCountdownTarget(cfg.Server.CountdownTarget, time.Local); err == nil {
			data.Countdown = browse.CountdownTo(s.now(), target)
		}
	}

	var buf bytes.Buffer
	if err = s.vm.Execute(&buf, homePage, data); err != nil {
		s.logger.Error("Failed to render home page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleListTemplates is the JSON form of the home page listing.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	q := browse.ParseQuery(r.URL.Query(), s.cm.Get().Catalog.PerPage)
	categories := browse.Categories(templates)
	if categories == nil {
		categories = []string{}
	}
	respondWithJSON(w, http.StatusOK, TemplateList{
		Page:       browse.Run(templates, q),
		Categories: categories,
		TopTags:    browse.TopTags(templates, browse.DefaultTopTags),
	})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "template")
	templates, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	found := false
	for _, t := range templates {
		if t.Folder == name {
			found = true
			break
		}
	}
	if !found {
		s.reject(w, r, http.StatusNotFound, "Template not found", fmt.Sprintf("Template %s not found", name))
		return
	}
	related := browse.Related(templates, name, browse.MaxRelated)
	if related == nil {
		related = []catalog.Template{}
	}
	respondWithJSON(w, http.StatusOK, related)
}

// handleTemplateFile serves the previews and demo files of a template.
func (s *Server) handleTemplateFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.catalog.AssetPath(chi.URLParam(r, "template"), chi.URLParam(r, "*"))
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) && !errors.Is(err, catalog.ErrNoManifest) && !errors.Is(err, catalog.ErrInvalidName) {
			s.logger.Error("Failed to resolve template file", "path", r.URL.Path, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// reject answers a refused request with a JSON error and records the reason
// in the error log.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, code int, message, reason string) {
	s.weblog.Error(s.clientIP(r), reason)
	respondWithError(w, code, message)
}

// clientIP returns the visitor's address. Forwarding headers are only
// honored when the direct peer is a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), use the address as is.
		peer = r.RemoteAddr
	}
	peer = canonicalIP(peer)
	if !s.cm.IsTrusted(peer) {
		return peer
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return canonicalIP(realIP)
	}

	// The first IP in X-Forwarded-For is the original client IP.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		if first := strings.TrimSpace(ips[0]); first != "" {
			return canonicalIP(first)
		}
	}
	return peer
}

// handleFavicon returns no content so favicon requests never reach the
// template routes.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
