// Package views loads and renders the server-side HTML pages.
//
// Pages are html/template files named *.gohtml in a single directory. They
// are parsed together so that every page can use the partials defined by
// the others, and can be reloaded while the server is running, either on
// demand through Refresh or automatically through Watch.
package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"

	"github.com/CTAG07/Vitrine/pkg/browse"
)

const pagePattern = "*.gohtml"

// Manager holds the parsed page set. All methods are concurrent-safe.
type Manager struct {
	logger    *slog.Logger
	dir       string
	funcMap   template.FuncMap
	mu        sync.RWMutex
	templates *template.Template
	names     []string
}

// NewManager parses every page in dir. It fails if the initial parse fails
// or if the directory holds no pages.
func NewManager(logger *slog.Logger, dir string) (*Manager, error) {
	m := &Manager{
		logger:  logger,
		dir:     dir,
		funcMap: makeFuncMap(),
	}
	if err := m.Refresh(); err != nil {
		return nil, err
	}
	logger.Info("View manager initialized", "dir", dir, "pages", len(m.Names()))
	return m, nil
}

func makeFuncMap() template.FuncMap {
	return template.FuncMap{
		"comma":    func(n int64) string { return humanize.Comma(n) },
		"compact":  compactNumber,
		"json":     toJSON,
		"pageURL":  pageURL,
		"tagURL":   tagURL,
		"stars":    stars,
		"ratingOf": func(r float64) string { return fmt.Sprintf("%.1f", r) },
		"lower":    strings.ToLower,
		"add1":     func(i int) int { return i + 1 },
		"sub1":     func(i int) int { return i - 1 },
	}
}

// Refresh re-parses all pages from disk. If parsing fails, the previously
// loaded pages stay in service and the error is returned.
func (m *Manager) Refresh() error {
	parsed, err := template.New("").Funcs(m.funcMap).ParseGlob(filepath.Join(m.dir, pagePattern))
	if err != nil {
		m.logger.Error("Failed to parse view templates", "dir", m.dir, "error", err)
		return fmt.Errorf("failed to parse views in %q: %w", m.dir, err)
	}

	var names []string
	for _, t := range parsed.Templates() {
		if strings.HasSuffix(t.Name(), ".gohtml") {
			names = append(names, t.Name())
		}
	}

	m.mu.Lock()
	m.templates = parsed
	m.names = names
	m.mu.Unlock()

	m.logger.Info("Loaded view templates", "count", len(names))
	return nil
}

// Execute renders the named page.
func (m *Manager) Execute(w io.Writer, name string, data any) error {
	m.mu.RLock()
	t := m.templates
	m.mu.RUnlock()
	return t.ExecuteTemplate(w, name, data)
}

// Names returns the loaded page file names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...)
}

// Dir returns the directory pages are loaded from.
func (m *Manager) Dir() string {
	return m.dir
}

// Watch reloads the pages whenever a *.gohtml file in the directory changes,
// until ctx is cancelled. Bursts of events (editors often write a file in
// several steps) are coalesced into a single reload after debounce.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create view watcher: %w", err)
	}
	if err = watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %q: %w", m.dir, err)
	}

	go func() {
		defer func(watcher *fsnotify.Watcher) {
			_ = watcher.Close()
		}(watcher)

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if matched, _ := filepath.Match(pagePattern, filepath.Base(event.Name)); !matched {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				m.logger.Debug("View file changed", "file", event.Name, "op", event.Op.String())
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				_ = m.Refresh()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if !errors.Is(err, fsnotify.ErrEventOverflow) {
					m.logger.Warn("View watcher error", "error", err)
				}
			}
		}
	}()
	return nil
}

func toJSON(v any) (template.JS, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(data), nil
}

func pageURL(q browse.Query, page int) string {
	v := q.WithPage(page).Values()
	if len(v) == 0 {
		return "/"
	}
	return "/?" + v.Encode()
}

func tagURL(q browse.Query, tag string) string {
	v := q.WithTag(tag).Values()
	if len(v) == 0 {
		return "/"
	}
	return "/?" + v.Encode()
}

// compactNumber renders large counters as 1.2k, 3.4M.
func compactNumber(n int64) string {
	if n < 1000 {
		return humanize.Comma(n)
	}
	value, prefix := humanize.ComputeSI(float64(n))
	return humanize.FtoaWithDigits(value, 1) + prefix
}

// stars returns five booleans, true for each star filled by the rounded rating.
func stars(rating float64) []bool {
	filled := int(math.Round(rating))
	out := make([]bool, 5)
	for i := range out {
		out[i] = i < filled
	}
	return out
}
