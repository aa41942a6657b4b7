package weblog

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedLogger(actions, errs *bytes.Buffer) *Logger {
	l := New(actions, errs)
	l.now = func() time.Time {
		return time.Date(2026, 2, 20, 10, 4, 5, 0, time.FixedZone("", 3600))
	}
	return l
}

func TestFormat(t *testing.T) {
	var actions, errs bytes.Buffer
	l := fixedLogger(&actions, &errs)

	l.Action("203.0.113.9", "GET", "/download/blog", 200)
	l.Error("203.0.113.9", "Template blog not found")

	if got, want := actions.String(), "203.0.113.9 - - [20/Feb/2026:10:04:05 +0100] \"GET /download/blog\" 200 -\n"; got != want {
		t.Errorf("Action() wrote %q, want %q", got, want)
	}
	if got, want := errs.String(), "[20/Feb/2026:10:04:05 +0100] [error] 203.0.113.9: Template blog not found\n"; got != want {
		t.Errorf("Error() wrote %q, want %q", got, want)
	}
}

func TestMiddleware(t *testing.T) {
	var actions bytes.Buffer
	l := fixedLogger(&actions, nil)

	h := l.Middleware(func(*http.Request) string { return "198.51.100.1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/missing" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?page=2", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/missing", nil))

	lines := strings.Split(strings.TrimSpace(actions.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), actions.String())
	}
	if !strings.HasSuffix(lines[0], `"GET /?page=2" 200 -`) {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], `"POST /missing" 404 -`) {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestOpenWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ActionLogPath = filepath.Join(dir, "actions.log")
	cfg.ErrorLogPath = filepath.Join(dir, "errors.log")

	l := Open(cfg)
	l.Action("1.1.1.1", "GET", "/", 200)
	l.Error("1.1.1.1", "boom")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, path := range []string{cfg.ActionLogPath, cfg.ErrorLogPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read %s: %v", path, err)
		}
		if !strings.Contains(string(data), "1.1.1.1") {
			t.Errorf("%s = %q", path, data)
		}
	}
}
