// Package catalog discovers the templates offered by the marketplace.
//
// Every immediate subdirectory of the catalog root holding a valid info.json
// manifest is a template. The directory name is the template's identity: it
// is the folder shown to visitors, the key of its counters and the name of
// its download.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/CTAG07/Vitrine/pkg/store"
)

// ManifestFile is the name of the manifest inside a template directory.
const ManifestFile = "info.json"

var (
	// ErrInvalidName is returned for names that cannot be a template folder.
	ErrInvalidName = errors.New("invalid template name")
	// ErrNotFound is returned when the template directory does not exist.
	ErrNotFound = errors.New("template not found")
	// ErrNoManifest is returned when the directory has no info.json.
	ErrNoManifest = errors.New("template info not found")
	// ErrInvalidManifest is returned when info.json is unreadable or incomplete.
	ErrInvalidManifest = errors.New("invalid template manifest")
)

// Config controls where templates are discovered.
type Config struct {
	// Root is the directory whose subdirectories are templates.
	Root string `json:"root"`
	// ExcludeDirs are subdirectory names that are never templates.
	ExcludeDirs []string `json:"exclude_dirs"`
}

// DefaultConfig returns a Config scanning the working directory.
func DefaultConfig() Config {
	return Config{
		Root:        ".",
		ExcludeDirs: []string{"vendor", "tmp", "assets", "templates", "data"},
	}
}

// Manifest is the content of a template's info.json.
type Manifest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Demo        string   `json:"demo"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Date        string   `json:"date,omitempty"`
	Author      string   `json:"author,omitempty"`
	Version     string   `json:"version,omitempty"`
}

// Template is a listed template: its manifest with public paths, plus counters.
type Template struct {
	Manifest
	Folder string      `json:"folder"`
	Stats  store.Stats `json:"stats"`
	Rating float64     `json:"rating"`
}

// StatsSource provides the counters merged into listed templates.
type StatsSource interface {
	AllStats(ctx context.Context) (map[string]store.Stats, error)
	Stats(ctx context.Context, name string) (store.Stats, error)
}

// Catalog scans the catalog root. All methods are concurrent-safe.
type Catalog struct {
	logger  *slog.Logger
	stats   StatsSource
	policy  *bluemonday.Policy
	mu      sync.RWMutex
	root    string
	exclude map[string]struct{}
}

// New creates a catalog over cfg.Root. stats may be nil, in which case every
// template reports zero counters.
func New(cfg Config, stats StatsSource, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Catalog{
		logger: logger,
		stats:  stats,
		policy: bluemonday.StrictPolicy(),
	}
	c.SetConfig(cfg)
	return c
}

// SetConfig replaces the root and exclusions.
func (c *Catalog) SetConfig(cfg Config) {
	exclude := make(map[string]struct{}, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		exclude[d] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = cfg.Root
	c.exclude = exclude
}

// Root returns the catalog root directory.
func (c *Catalog) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// ValidName reports whether name can be a template folder: a single, non-hidden
// path segment that is not excluded.
func (c *Catalog) ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, excluded := c.exclude[name]
	return !excluded
}

// Lookup resolves a template folder to its directory. It fails with
// ErrInvalidName, ErrNotFound or ErrNoManifest.
func (c *Catalog) Lookup(name string) (string, error) {
	if !c.ValidName(name) {
		return "", ErrInvalidName
	}
	dir := filepath.Join(c.Root(), name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", ErrNotFound
	}
	if _, err = os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
		return "", ErrNoManifest
	}
	return dir, nil
}

// List returns every valid template ordered by folder name, with counters.
// Directories with a missing or incomplete manifest are skipped.
func (c *Catalog) List(ctx context.Context) ([]Template, error) {
	root := c.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog root %q: %w", root, err)
	}

	all := map[string]store.Stats{}
	if c.stats != nil {
		if all, err = c.stats.AllStats(ctx); err != nil {
			return nil, fmt.Errorf("failed to load template stats: %w", err)
		}
	}

	templates := make([]Template, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !c.ValidName(name) {
			continue
		}
		m, err := c.readManifest(filepath.Join(root, name))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.logger.Debug("Skipping template directory", "folder", name, "error", err)
			}
			continue
		}
		templates = append(templates, c.build(name, m, all[name]))
	}
	return templates, nil
}

// Get returns a single listed template.
func (c *Catalog) Get(ctx context.Context, name string) (Template, error) {
	dir, err := c.Lookup(name)
	if err != nil {
		return Template{}, err
	}
	m, err := c.readManifest(dir)
	if err != nil {
		return Template{}, err
	}
	var st store.Stats
	if c.stats != nil {
		if st, err = c.stats.Stats(ctx, name); err != nil {
			return Template{}, fmt.Errorf("failed to load stats for %q: %w", name, err)
		}
	}
	return c.build(name, m, st), nil
}

// AssetPath resolves a file inside a template directory for static serving.
// Hidden path segments (such as .git) are refused.
func (c *Catalog) AssetPath(name, rel string) (string, error) {
	dir, err := c.Lookup(name)
	if err != nil {
		return "", err
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", ErrInvalidName
		}
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve template directory: %w", err)
	}
	path := filepath.Join(absDir, filepath.FromSlash(rel))
	if path != absDir && !strings.HasPrefix(path, absDir+string(filepath.Separator)) {
		return "", ErrInvalidName
	}
	return path, nil
}

func (c *Catalog) build(name string, m Manifest, st store.Stats) Template {
	m.Image = "/" + name + "/" + strings.TrimPrefix(m.Image, "/")
	m.Demo = "/" + strings.TrimPrefix(m.Demo, "/")
	st.ID = name
	return Template{
		Manifest: m,
		Folder:   name,
		Stats:    st,
		Rating:   st.Average(),
	}
}

// requiredKeys must be present and non-null in every manifest. Empty strings
// are accepted.
var requiredKeys = []string{"image", "title", "description", "demo"}

// readManifest loads and validates dir/info.json. Title and description are
// reduced to plain text.
func (c *Catalog) readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var fields map[string]json.RawMessage
	if err = json.Unmarshal(data, &fields); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	for _, key := range requiredKeys {
		if raw, ok := fields[key]; !ok || string(raw) == "null" {
			return Manifest{}, fmt.Errorf("%w: %s is required", ErrInvalidManifest, key)
		}
	}
	var m Manifest
	if err = json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.Title = c.plainText(m.Title)
	m.Description = c.plainText(m.Description)
	return m, nil
}

func (c *Catalog) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}
