package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Vitrine/pkg/auth"
	"github.com/CTAG07/Vitrine/pkg/store"
	"github.com/CTAG07/Vitrine/pkg/weblog"
)

const testHomePage = `{{range .Page.Templates}}<h2>{{.Title}}</h2>{{end}}` +
	`<p>{{comma .Total}} templates</p><script>window.backendData = {{json .BackendData}};</script>`

type testEnv struct {
	server  *Server
	actions *bytes.Buffer
	errors  *bytes.Buffer
	dir     string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	root := filepath.Join(dir, "catalog")
	writeFile(t, filepath.Join(root, "blog", "info.json"),
		`{"title":"Blog Starter","description":"A <b>clean</b> blog","image":"cover.png","demo":"blog/index.html","category":"blog","tags":["dark","minimal"]}`)
	writeFile(t, filepath.Join(root, "blog", "index.html"), "<h1>blog</h1>")
	writeFile(t, filepath.Join(root, "blog", "cover.png"), "png")
	writeFile(t, filepath.Join(root, "blog", ".git", "config"), "[core]")
	writeFile(t, filepath.Join(root, "shop", "info.json"),
		`{"title":"Shop","description":"Store front","image":"cover.png","demo":"shop/index.html","category":"shop","tags":["dark"]}`)
	writeFile(t, filepath.Join(root, "broken", "index.html"), "no manifest")

	ui := filepath.Join(dir, "ui")
	writeFile(t, filepath.Join(ui, homePage), testHomePage)
	assets := filepath.Join(dir, "assets")
	writeFile(t, filepath.Join(assets, "app.css"), "body{}")

	cfg := DefaultConfig()
	cfg.Server.UIPath = ui
	cfg.Server.AssetsPath = assets
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	cfg.Catalog.Root = root
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	cm, err := NewConfigManager(configPath)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm.SetLogger(logger)

	db, err := store.Open(filepath.Join(dir, "db.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.SetupSchema(db))
	require.NoError(t, auth.SetupSchema(db))
	require.NoError(t, setupExemptionSchema(db))

	env := &testEnv{actions: &bytes.Buffer{}, errors: &bytes.Buffer{}, dir: dir}
	env.server, err = NewServer(cm, logger, db, weblog.New(env.actions, env.errors), make(chan string, 1))
	require.NoError(t, err)
	return env
}

func (e *testEnv) public(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.publicRouter.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.apiRouter.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.public(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.public(req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, code int, message string) map[string]any {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["error"])
	assert.Equal(t, message, body["message"])
	return body
}

func TestHome(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h2>Blog Starter</h2>")
	assert.Contains(t, body, "<h2>Shop</h2>")
	assert.Contains(t, body, "<p>2 templates</p>")
	assert.Contains(t, body, `"countdownTargetDate":"2026-02-20T00:00:00"`)
	assert.NotContains(t, body, "broken")

	rec = env.get("/?category=shop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<h2>Blog Starter</h2>")

	assert.Contains(t, env.actions.String(), `"GET /?category=shop" 200 -`)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/download/blog")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="blog.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"index.html", "cover.png"}, names)

	st, err := env.server.store.Stats(t.Context(), "blog")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Downloads)
}

func TestDownloadNotFound(t *testing.T) {
	env := newTestEnv(t)

	requireError(t, env.get("/download/missing"), http.StatusNotFound, "Template not found")
	requireError(t, env.get("/download/broken"), http.StatusNotFound, "Template info not found")

	assert.Contains(t, env.errors.String(), "[error] 192.0.2.1: Template missing not found")
	assert.Contains(t, env.errors.String(), "[error] 192.0.2.1: info.json missing for broken")
}

func TestDownloadLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec := env.get("/download/blog")
		require.Equal(t, http.StatusOK, rec.Code, "download %d", i+1)
	}
	rec := env.get("/download/shop")
	requireError(t, rec, http.StatusTooManyRequests,
		"You have exceeded the download limit. Please wait 10 minutes before trying again.")
	assert.Equal(t, "600", rec.Header().Get("Retry-After"))
	assert.Contains(t, env.errors.String(), "Download rate limit exceeded for shop (Count: 5)")

	st, err := env.server.store.Stats(t.Context(), "shop")
	require.NoError(t, err)
	assert.Zero(t, st.Downloads)

	// Another client is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/download/shop", nil)
	req.RemoteAddr = "198.51.100.20:4000"
	assert.Equal(t, http.StatusOK, env.public(req).Code)
}

func TestDownloadExemption(t *testing.T) {
	env := newTestEnv(t)

	add := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/exemptions/ip", strings.NewReader(`{"value":"192.0.2.1"}`))
		return env.admin(req)
	}
	require.Equal(t, http.StatusCreated, add().Code)
	assert.Equal(t, http.StatusConflict, add().Code)

	for i := 0; i < 7; i++ {
		require.Equal(t, http.StatusOK, env.get("/download/blog").Code, "download %d", i+1)
	}

	rec := env.admin(httptest.NewRequest(http.MethodGet, "/api/exemptions/ip", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["192.0.2.1"]`, rec.Body.String())

	rec = env.admin(httptest.NewRequest(http.MethodPost, "/api/exemptions/ip", strings.NewReader(`{"value":"not-an-ip"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.admin(httptest.NewRequest(http.MethodDelete, "/api/exemptions/ip", strings.NewReader(`{"value":"192.0.2.1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	requireError(t, env.get("/download/blog"), http.StatusTooManyRequests,
		"You have exceeded the download limit. Please wait 10 minutes before trying again.")
}

func TestDownloadLimitConcurrent(t *testing.T) {
	env := newTestEnv(t)
	large := make([]byte, 2<<20)
	for i := range large {
		large[i] = byte(i * 7919 >> 3)
	}
	writeFile(t, filepath.Join(env.dir, "catalog", "blog", "bundle.bin"), string(large))

	var wg sync.WaitGroup
	codes := make(chan int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- env.get("/download/blog").Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 5, http.StatusTooManyRequests: 15}, counts)

	st, err := env.server.store.Stats(t.Context(), "blog")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Downloads)
	logged, err := env.server.store.RecentDownloads(t.Context(), 100)
	require.NoError(t, err)
	assert.Len(t, logged, 5)
}

func TestDownloadPackagingFailureReleasesSlot(t *testing.T) {
	env := newTestEnv(t)

	t.Setenv("TMPDIR", filepath.Join(env.dir, "missing"))
	for i := 0; i < 6; i++ {
		requireError(t, env.get("/download/blog"), http.StatusInternalServerError, "Could not create zip file")
	}
	assert.Contains(t, env.errors.String(), "Could not create zip file for blog")

	logged, err := env.server.store.RecentDownloads(t.Context(), 100)
	require.NoError(t, err)
	assert.Empty(t, logged)
	st, err := env.server.store.Stats(t.Context(), "blog")
	require.NoError(t, err)
	assert.Zero(t, st.Downloads)

	require.NoError(t, os.Setenv("TMPDIR", env.dir))
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, env.get("/download/blog").Code, "download %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, env.get("/download/blog").Code)
}

func TestExemptionMatchesCanonicalAddress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.admin(httptest.NewRequest(http.MethodPost, "/api/exemptions/ip", strings.NewReader(`{"value":"::FFFF:192.0.2.1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.admin(httptest.NewRequest(http.MethodPost, "/api/exemptions/ip", strings.NewReader(`{"value":"192.0.2.1"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.admin(httptest.NewRequest(http.MethodPost, "/api/exemptions/ip", strings.NewReader(`{"value":"2001:DB8:0:0::1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.admin(httptest.NewRequest(http.MethodGet, "/api/exemptions/ip", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["192.0.2.1","2001:db8::1"]`, rec.Body.String())

	assert.True(t, env.server.exemptions.IsExempt("2001:db8::1"))
	assert.True(t, env.server.exemptions.IsExempt("::ffff:192.0.2.1"))

	for i := 0; i < 7; i++ {
		require.Equal(t, http.StatusOK, env.get("/download/blog").Code, "download %d", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/download/blog", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Real-Ip", "2001:0db8::0001")
	assert.Equal(t, "2001:db8::1", env.server.clientIP(req))
}

func TestActionsRequireListedTemplate(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, filepath.Join(env.dir, "catalog", "draft", "info.json"), `{"title":"Draft"}`)

	requireError(t, env.postForm("/api/view/draft", nil), http.StatusNotFound, "Template not found")
	requireError(t, env.postForm("/api/favorite/draft", url.Values{"action": {"add"}}), http.StatusNotFound, "Template not found")
	requireError(t, env.postForm("/api/rate/draft", url.Values{"rating": {"4"}}), http.StatusNotFound, "Template not found")
	requireError(t, env.postForm("/api/view/broken", nil), http.StatusNotFound, "Template not found")

	st, err := env.server.store.Stats(t.Context(), "draft")
	require.NoError(t, err)
	assert.Zero(t, st.Views)
	assert.Zero(t, st.Favorites)
	assert.Zero(t, st.RatingCount)
}

func TestRate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm("/api/rate/blog", url.Values{"rating": {"4"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"rating":4,"rating_count":1,"userRating":4}`, rec.Body.String())

	requireError(t, env.postForm("/api/rate/blog", url.Values{"rating": {"4"}}),
		http.StatusBadRequest, "You already gave this rating to this template")

	body := requireError(t, env.postForm("/api/rate/blog", url.Values{"rating": {"2"}}),
		http.StatusTooManyRequests, "You can only re-rate a template once per minute")
	assert.InDelta(t, 60, body["waitSeconds"], 1)

	requireError(t, env.postForm("/api/rate/blog", url.Values{"rating": {"9"}}), http.StatusBadRequest, "Invalid rating")
	requireError(t, env.postForm("/api/rate/blog", url.Values{"rating": {"abc"}}), http.StatusBadRequest, "Invalid rating")
	requireError(t, env.postForm("/api/rate/missing", url.Values{"rating": {"3"}}), http.StatusNotFound, "Template not found")

	errs := env.errors.String()
	assert.Contains(t, errs, "Already gave rating 4 to blog")
	assert.Contains(t, errs, "Rate limit for blog too frequent (")
	assert.Contains(t, errs, "Invalid rating 9 for blog")

	st, err := env.server.store.Stats(t.Context(), "blog")
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.RatingSum)
	assert.Equal(t, int64(1), st.RatingCount)
}

func TestFavoriteAndView(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm("/api/favorite/shop", url.Values{"action": {"add"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"favorites":1}`, rec.Body.String())

	for i := 0; i < 2; i++ {
		rec = env.postForm("/api/favorite/shop", url.Values{"action": {"remove"}})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.JSONEq(t, `{"success":true,"favorites":0}`, rec.Body.String())

	rec = env.postForm("/api/view/shop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	requireError(t, env.postForm("/api/view/missing", nil), http.StatusNotFound, "Template not found")

	st, err := env.server.store.Stats(t.Context(), "shop")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Views)
	assert.Equal(t, int64(0), st.Favorites)
}

func TestListTemplatesAndRelated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/templates?tag=minimal")
	require.Equal(t, http.StatusOK, rec.Code)
	var list TemplateList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "blog", list.Templates[0].Folder)
	assert.Equal(t, "/blog/cover.png", list.Templates[0].Image)
	assert.Equal(t, "A clean blog", list.Templates[0].Description)
	assert.Equal(t, []string{"blog", "shop"}, list.Categories)
	assert.Equal(t, []string{"dark", "minimal"}, list.TopTags)

	rec = env.get("/api/templates/blog/related")
	require.Equal(t, http.StatusOK, rec.Code)
	var related []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &related))
	require.Len(t, related, 1)
	assert.Equal(t, "shop", related[0]["folder"])

	requireError(t, env.get("/api/templates/missing/related"), http.StatusNotFound, "Template not found")
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/blog/cover.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, env.get("/blog/.git/config").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/broken/index.html").Code)
	assert.Equal(t, http.StatusOK, env.get("/assets/app.css").Code)
	assert.Equal(t, http.StatusNoContent, env.get("/favicon.ico").Code)
}

func TestClientIP(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	assert.Equal(t, "203.0.113.7", env.server.clientIP(req))

	req.Header.Set("X-Real-Ip", "203.0.113.8")
	assert.Equal(t, "203.0.113.8", env.server.clientIP(req))

	req.RemoteAddr = "198.51.100.1:5555"
	assert.Equal(t, "198.51.100.1", env.server.clientIP(req))
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.admin(httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)

	rec := env.admin(httptest.NewRequest(http.MethodPost, "/api/auth/keys", strings.NewReader(`{"scopes":["stats:read"],"description":"first"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var master CreateKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &master))
	assert.Equal(t, []string{"*"}, master.Scopes)
	assert.True(t, strings.HasPrefix(master.RawKey, "vit_"))

	assert.Equal(t, http.StatusUnauthorized, env.admin(httptest.NewRequest(http.MethodGet, "/api/stats/summary", nil)).Code)

	withKey := func(method, path, body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(authHeader, key)
		return env.admin(req)
	}

	rec = withKey(http.MethodPost, "/api/auth/keys", `{"scopes":["stats:read"],"description":"reader"}`, master.RawKey)
	require.Equal(t, http.StatusCreated, rec.Code)
	var reader CreateKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reader))
	assert.Equal(t, []string{"stats:read"}, reader.Scopes)

	assert.Equal(t, http.StatusOK, withKey(http.MethodGet, "/api/stats/summary", "", reader.RawKey).Code)
	assert.Equal(t, http.StatusForbidden, withKey(http.MethodGet, "/api/server/config", "", reader.RawKey).Code)
	assert.Equal(t, http.StatusBadRequest, withKey(http.MethodDelete, "/api/auth/keys/1", "", master.RawKey).Code)
	assert.Equal(t, http.StatusNoContent, withKey(http.MethodDelete, "/api/auth/keys/2", "", master.RawKey).Code)
	assert.Equal(t, http.StatusUnauthorized, withKey(http.MethodGet, "/api/stats/summary", "", reader.RawKey).Code)
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.get("/download/blog").Code)
	require.Equal(t, http.StatusOK, env.postForm("/api/view/blog", nil).Code)

	rec := env.admin(httptest.NewRequest(http.MethodGet, "/api/stats/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary store.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, store.Summary{Templates: 1, Views: 1, Downloads: 1, UniqueDownloaders: 1}, summary)

	rec = env.admin(httptest.NewRequest(http.MethodGet, "/api/stats/top_ips", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ip":"192.0.2.1"`)

	rec = env.admin(httptest.NewRequest(http.MethodGet, "/api/stats/downloads?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"template":"blog"`)

	rec = env.admin(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vitrine_template_downloads_total{template="blog"} 1`)
	assert.Contains(t, rec.Body.String(), `vitrine_template_views_total{template="blog"} 1`)
}

func TestConfigUpdateAppliesLimits(t *testing.T) {
	env := newTestEnv(t)

	rec := env.admin(httptest.NewRequest(http.MethodGet, "/api/server/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	cfg.Limits.DownloadLimit = 1
	cfg.Limits.DownloadWindowSec = 60

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	rec = env.admin(httptest.NewRequest(http.MethodPut, "/api/server/config", bytes.NewReader(data)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, env.get("/download/blog").Code)
	requireError(t, env.get("/download/blog"), http.StatusTooManyRequests,
		"You have exceeded the download limit. Please wait 1 minute before trying again.")

	saved, err := LoadConfig(filepath.Join(env.dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Limits.DownloadLimit)

	cfg.Server.CountdownTarget = "soon"
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	rec = env.admin(httptest.NewRequest(http.MethodPut, "/api/server/config", bytes.NewReader(data)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshViews(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, filepath.Join(env.dir, "ui", homePage), `updated`)

	rec := env.admin(httptest.NewRequest(http.MethodPost, "/api/views/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "updated", env.get("/").Body.String())
}

func TestWaitText(t *testing.T) {
	tests := map[string]struct {
		seconds int
		want    string
	}{
		"ten minutes": {600, "10 minutes"},
		"one minute":  {60, "1 minute"},
		"seconds":     {90, "90 seconds"},
		"one second":  {1, "1 second"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, waitText(time.Duration(tc.seconds)*time.Second))
		})
	}
}
