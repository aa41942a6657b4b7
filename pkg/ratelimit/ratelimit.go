// Package ratelimit decides whether a client may perform a limited action,
// based on how many times it already did so within a look-back window.
//
// The limiter keeps no state of its own. Events are counted and recorded by
// whatever persistent log backs the Reserver, so limits survive restarts.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Reserver records events in a persistent log. Reserve counts the events
// recorded for key strictly after since and records a new one only if fewer
// than limit were found, as a single atomic step. A non-positive limit
// always records. It returns the ID of the new event, zero when none was
// recorded, and the count found before recording.
type Reserver interface {
	Reserve(ctx context.Context, key string, since time.Time, limit int) (id int64, count int, err error)
}

// Exempter reports whether a key bypasses the limit entirely.
type Exempter interface {
	IsExempt(key string) bool
}

// Window allows at most Limit events per key within Period.
type Window struct {
	Limit  int
	Period time.Duration
}

// Decision is the outcome of a reservation.
type Decision struct {
	Allowed bool
	// ID identifies the recorded event when Allowed.
	ID int64
	// Count is the number of events already inside the window.
	Count int
	Limit int
	// RetryAfter is how long a rejected client is told to wait.
	RetryAfter time.Duration
	Exempt     bool
}

// Remaining returns how many more events fit in the window after this one.
func (d Decision) Remaining() int {
	if !d.Allowed {
		return 0
	}
	return max(0, d.Limit-d.Count-1)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithExempter skips the limit for exempted keys. Their events are still
// recorded.
func WithExempter(e Exempter) Option {
	return func(l *Limiter) {
		l.exempt = e
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter is a fixed-window limiter over a persistent event log.
// All methods are concurrent-safe.
type Limiter struct {
	exempt Exempter
	now    func() time.Time
	mu     sync.RWMutex
	window Window
}

// New creates a limiter enforcing window.
func New(window Window, opts ...Option) *Limiter {
	l := &Limiter{
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetWindow replaces the window, e.g. after a configuration update.
func (l *Limiter) SetWindow(w Window) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = w
}

// Window returns the current window.
func (l *Limiter) Window() Window {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.window
}

// Reserve records one event for key through r if the window still has room.
// Exempted keys and a non-positive limit always get an event. A caller whose
// action then fails should delete the event identified by Decision.ID.
func (l *Limiter) Reserve(ctx context.Context, key string, r Reserver) (Decision, error) {
	w := l.Window()
	exempt := l.exempt != nil && l.exempt.IsExempt(key)

	limit, since := w.Limit, l.now().Add(-w.Period)
	if exempt {
		limit = 0
	}
	id, count, err := r.Reserve(ctx, key, since, limit)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to reserve event for %s: %w", key, err)
	}

	d := Decision{Allowed: id != 0, ID: id, Count: count, Limit: w.Limit, Exempt: exempt}
	if !d.Allowed {
		d.RetryAfter = w.Period
	}
	return d, nil
}

// Cooldown is the minimum time between two consecutive actions of one client
// on one resource.
type Cooldown time.Duration

// Remaining returns how long a client that last acted at last must still
// wait at now. Elapsed time is counted in whole seconds, so the result is
// always a whole number of seconds, and zero once the cooldown has passed.
func (c Cooldown) Remaining(last, now time.Time) time.Duration {
	elapsed := now.Unix() - last.Unix()
	total := int64(time.Duration(c) / time.Second)
	if elapsed >= total {
		return 0
	}
	return time.Duration(total-elapsed) * time.Second
}
