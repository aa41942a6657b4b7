package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Vitrine/pkg/auth"
	"github.com/CTAG07/Vitrine/pkg/store"
	"github.com/CTAG07/Vitrine/pkg/weblog"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	viewWatchDebounce = 250 * time.Millisecond
	pruneInterval     = time.Hour
)

func currentVersion() VersionInfo {
	return VersionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vitrine",
		Short:         "Template marketplace server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the public site and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.json", "path to the JSON configuration file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			v := currentVersion()
			cmd.Printf("vitrine %s (commit %s, built %s)\n", v.Version, v.Commit, v.BuildDate)
		},
	}
}

// serve runs server cycles until a shutdown is requested.
func serve(configPath string) error {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}

		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Vitrine has shut down.")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run hosts both servers, and returns whenever the server is shutdown or restarted.
func run(configPath string, actionChan chan string) (string, error) {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...", "version", Version)

	if err = ensureParentDir(config.Server.DatabasePath); err != nil {
		return "", err
	}
	db, err := store.Open(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to setup counter schema: %w", err)
	}
	if err = auth.SetupSchema(db); err != nil {
		logger.Error("Failed to setup auth schema", "error", err)
	}
	if err = setupExemptionSchema(db); err != nil {
		logger.Error("Failed to setup exemption schema", "error", err)
	}

	wl := weblog.Open(*config.Logs)

	server, err := NewServer(cm, logger, db, wl, actionChan)
	if err != nil {
		_ = wl.Close()
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if config.Server.WatchUI {
		if err = server.vm.Watch(ctx, viewWatchDebounce); err != nil {
			logger.Warn("Failed to watch view templates, hot reload disabled", "error", err)
		}
	}
	go server.pruneDownloads(ctx, pruneInterval)

	publicHttpServer := &http.Server{Addr: config.Server.ServerAddr, Handler: server.publicRouter}
	apiHttpServer := &http.Server{Addr: config.Server.ApiAddr, Handler: server.apiRouter}

	go func() {
		logger.Info("Starting admin api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting Vitrine public server", "address", publicHttpServer.Addr)
		if err := publicHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Public server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping servers for " + action + "...")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	if err = publicHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Public server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	if err = wl.Close(); err != nil {
		logger.Error("Failed to close access logs", "error", err)
	}

	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}

// ensureParentDir creates the directory holding a SQLite data source, which
// may carry query parameters.
func ensureParentDir(dataSource string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dataSource, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// pruneDownloads periodically deletes download log rows older than the
// configured retention, never shorter than the download limit window.
func (s *Server) pruneDownloads(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.pruneOnce(ctx); err != nil {
				s.logger.Error("Failed to prune download log", "error", err)
			}
		}
	}
}

func (s *Server) pruneOnce(ctx context.Context) (int64, error) {
	cfg := s.cm.Get()
	if cfg.Limits.LogRetentionHours <= 0 {
		return 0, nil
	}
	retention := max(time.Duration(cfg.Limits.LogRetentionHours)*time.Hour, cfg.DownloadWindow().Period)
	n, err := s.store.PruneDownloads(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Pruned download log", "rows", n, "retention", retention.String())
	}
	return n, nil
}
