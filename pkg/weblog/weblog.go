// Package weblog writes the public site's access and error logs.
//
// Lines follow the Apache conventions so the files can be fed to the usual
// log tooling:
//
//	203.0.113.9 - - [20/Feb/2026:10:04:05 +0000] "GET /download/blog" 200 -
//	[20/Feb/2026:10:04:05 +0000] [error] 203.0.113.9: Template blog not found
//
// Files are rotated by size through lumberjack.
package weblog

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "02/Jan/2006:15:04:05 -0700"

// Config locates the log files and controls their rotation.
type Config struct {
	ActionLogPath string `json:"action_log_path"`
	ErrorLogPath  string `json:"error_log_path"`
	MaxSizeMB     int    `json:"max_size_mb"`
	MaxBackups    int    `json:"max_backups"`
	MaxAgeDays    int    `json:"max_age_days"`
	Compress      bool   `json:"compress"`
}

// DefaultConfig returns the default log locations under ./tmp.
func DefaultConfig() Config {
	return Config{
		ActionLogPath: "./tmp/actions.log",
		ErrorLogPath:  "./tmp/errors.log",
		MaxSizeMB:     10,
		MaxBackups:    5,
		MaxAgeDays:    30,
		Compress:      true,
	}
}

// Logger writes action and error lines. It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	actions io.Writer
	errors  io.Writer
	closers []io.Closer
	now     func() time.Time
}

// Open creates a Logger writing to rotating files as configured. An empty
// path disables that log.
func Open(cfg Config) *Logger {
	l := &Logger{actions: io.Discard, errors: io.Discard, now: time.Now}
	if cfg.ActionLogPath != "" {
		lj := cfg.rotator(cfg.ActionLogPath)
		l.actions = lj
		l.closers = append(l.closers, lj)
	}
	if cfg.ErrorLogPath != "" {
		lj := cfg.rotator(cfg.ErrorLogPath)
		l.errors = lj
		l.closers = append(l.closers, lj)
	}
	return l
}

// New creates a Logger over arbitrary writers. A nil writer discards.
func New(actions, errors io.Writer) *Logger {
	if actions == nil {
		actions = io.Discard
	}
	if errors == nil {
		errors = io.Discard
	}
	return &Logger{actions: actions, errors: errors, now: time.Now}
}

func (c Config) rotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// Action logs one handled request.
func (l *Logger) Action(ip, method, uri string, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.actions, "%s - - [%s] \"%s %s\" %d -\n", ip, l.now().Format(timeLayout), method, uri, status)
}

// Error logs a rejected request with a human-readable reason.
func (l *Logger) Error(ip, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.errors, "[%s] [error] %s: %s\n", l.now().Format(timeLayout), ip, message)
}

// Middleware logs every request passing through it to the action log, with
// the status code the handler actually wrote.
func (l *Logger) Middleware(clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l.Action(clientIP(r), r.Method, r.URL.RequestURI(), status)
		})
	}
}

// Close closes any log files opened by Open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	l.closers = nil
	return errors.Join(errs...)
}
