package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Vitrine/pkg/browse"
	"github.com/CTAG07/Vitrine/pkg/catalog"
	"github.com/CTAG07/Vitrine/pkg/ratelimit"
	"github.com/CTAG07/Vitrine/pkg/weblog"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr      string   `json:"server_addr"`
	ApiAddr         string   `json:"api_addr"`
	LogLevel        string   `json:"log_level"`
	TrustedProxies  []string `json:"trusted_proxies"`
	DatabasePath    string   `json:"database_path"`
	UIPath          string   `json:"ui_path"`
	AssetsPath      string   `json:"assets_path"`
	WatchUI         bool     `json:"watch_ui"`
	CountdownTarget string   `json:"countdown_target"`
}

// LimitConfig holds the per-IP limits of the public site.
type LimitConfig struct {
	DownloadLimit     int `json:"download_limit"`
	DownloadWindowSec int `json:"download_window_sec"`
	RatingCooldownSec int `json:"rating_cooldown_sec"`
	// LogRetentionHours is how long download log rows are kept. 0 keeps them forever.
	LogRetentionHours int `json:"log_retention_hours"`
}

// CatalogConfig holds the catalog location and listing settings.
type CatalogConfig struct {
	Root        string   `json:"root"`
	ExcludeDirs []string `json:"exclude_dirs"`
	PerPage     int      `json:"per_page"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server  *ServerConfig  `json:"server_config"`
	Limits  *LimitConfig   `json:"limit_config"`
	Catalog *CatalogConfig `json:"catalog_config"`
	Logs    *weblog.Config `json:"log_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:      ":8080",
		ApiAddr:         ":8081",
		LogLevel:        "info",
		TrustedProxies:  []string{},
		DatabasePath:    "./tmp/db.sqlite",
		UIPath:          "./data/ui/",
		AssetsPath:      "./data/assets/",
		WatchUI:         false,
		CountdownTarget: "2026-02-20T00:00:00",
	}
}

// DefaultLimitConfig allows 5 downloads per 10 minutes and one re-rating per minute.
func DefaultLimitConfig() *LimitConfig {
	return &LimitConfig{
		DownloadLimit:     5,
		DownloadWindowSec: 600,
		RatingCooldownSec: 60,
		LogRetentionHours: 0,
	}
}

// DefaultCatalogConfig scans the working directory.
func DefaultCatalogConfig() *CatalogConfig {
	def := catalog.DefaultConfig()
	return &CatalogConfig{
		Root:        def.Root,
		ExcludeDirs: def.ExcludeDirs,
		PerPage:     browse.DefaultPerPage,
	}
}

// DefaultConfig returns a complete configuration with default values.
func DefaultConfig() *Config {
	logs := weblog.DefaultConfig()
	return &Config{
		Server:  DefaultServerConfig(),
		Limits:  DefaultLimitConfig(),
		Catalog: DefaultCatalogConfig(),
		Logs:    &logs,
	}
}

// Validate reports the first setting that would break the running server.
func (c Config) Validate() error {
	if c.Server == nil || c.Limits == nil || c.Catalog == nil || c.Logs == nil {
		return errors.New("all configuration sections are required")
	}
	if c.Server.CountdownTarget != "" {
		if _, err := browse.ParseCountdownTarget(c.Server.CountdownTarget, time.Local); err != nil {
			return fmt.Errorf("invalid countdown_target: %w", err)
		}
	}
	if c.Limits.DownloadWindowSec < 0 || c.Limits.RatingCooldownSec < 0 || c.Limits.LogRetentionHours < 0 {
		return errors.New("limit durations cannot be negative")
	}
	if c.Catalog.PerPage < 0 {
		return errors.New("per_page cannot be negative")
	}
	if c.Catalog.Root == "" {
		return errors.New("catalog root cannot be empty")
	}
	return nil
}

// CatalogSettings converts the catalog section for the catalog package.
func (c Config) CatalogSettings() catalog.Config {
	return catalog.Config{Root: c.Catalog.Root, ExcludeDirs: c.Catalog.ExcludeDirs}
}

// DownloadWindow converts the download limit for the rate limiter.
func (c Config) DownloadWindow() ratelimit.Window {
	return ratelimit.Window{
		Limit:  c.Limits.DownloadLimit,
		Period: time.Duration(c.Limits.DownloadWindowSec) * time.Second,
	}
}

// RatingCooldown converts the rating cooldown for the store.
func (c Config) RatingCooldown() ratelimit.Cooldown {
	return ratelimit.Cooldown(time.Duration(c.Limits.RatingCooldownSec) * time.Second)
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// ConfigManager handles thread-safe access to configuration and derived state
// (trusted proxies, catalog and limiter settings).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
	catalog      *catalog.Catalog
	downloads    *ratelimit.Limiter
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// Attach registers the live components that follow configuration updates.
func (cm *ConfigManager) Attach(cat *catalog.Catalog, downloads *ratelimit.Limiter) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.catalog = cat
	cm.downloads = downloads
	cm.applyLocked()
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Get returns a thread-safe copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates the configuration, applies it to the attached components,
// saves it to disk, and refreshes derived state. Listener addresses, paths and
// the database only change on restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	*cm.config = newConfig
	cm.refreshCache()
	cm.applyLocked()

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (cm *ConfigManager) applyLocked() {
	if cm.catalog != nil {
		cm.catalog.SetConfig(cm.config.CatalogSettings())
	}
	if cm.downloads != nil {
		cm.downloads.SetWindow(cm.config.DownloadWindow())
	}
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}

	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}

	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
		} else {
			ip := net.ParseIP(t)
			if ip != nil {
				ips = append(ips, ip)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
			}
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}
