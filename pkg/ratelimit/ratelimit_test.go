package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memLog is an in-memory event log keyed by client.
type memLog struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    time.Time
	nextID int64
	err    error
}

func (m *memLog) Reserve(_ context.Context, key string, since time.Time, limit int) (int64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, 0, m.err
	}
	n := 0
	for _, t := range m.events[key] {
		if t.After(since) {
			n++
		}
	}
	if limit > 0 && n >= limit {
		return 0, n, nil
	}
	m.events[key] = append(m.events[key], m.now)
	m.nextID++
	return m.nextID, n, nil
}

type exemptSet map[string]bool

func (e exemptSet) IsExempt(key string) bool { return e[key] }

func TestLimiterReserve(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	log := &memLog{events: map[string][]time.Time{}, now: now}
	for i := 0; i < 5; i++ {
		log.events["1.2.3.4"] = append(log.events["1.2.3.4"], now.Add(-time.Duration(i)*time.Minute))
	}
	// Outside the window, must not count.
	log.events["5.6.7.8"] = []time.Time{now.Add(-11 * time.Minute), now.Add(-10 * time.Minute)}

	l := New(Window{Limit: 5, Period: 10 * time.Minute},
		WithClock(func() time.Time { return now }),
		WithExempter(exemptSet{"9.9.9.9": true}))
	ctx := context.Background()

	d, err := l.Reserve(ctx, "1.2.3.4", log)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if d.Allowed || d.ID != 0 || d.Count != 5 || d.RetryAfter != 10*time.Minute || d.Remaining() != 0 {
		t.Errorf("Reserve(limited) = %+v", d)
	}
	if got := len(log.events["1.2.3.4"]); got != 5 {
		t.Errorf("rejected reservation recorded an event, have %d", got)
	}

	d, _ = l.Reserve(ctx, "5.6.7.8", log)
	if !d.Allowed || d.ID == 0 || d.Count != 0 || d.Remaining() != 4 {
		t.Errorf("Reserve(expired events) = %+v", d)
	}

	log.events["9.9.9.9"] = log.events["1.2.3.4"]
	d, _ = l.Reserve(ctx, "9.9.9.9", log)
	if !d.Allowed || !d.Exempt || d.ID == 0 {
		t.Errorf("Reserve(exempt) = %+v", d)
	}

	l.SetWindow(Window{Limit: 0, Period: time.Minute})
	d, _ = l.Reserve(ctx, "1.2.3.4", log)
	if !d.Allowed {
		t.Errorf("Reserve() with disabled limit = %+v", d)
	}
}

func TestLimiterReserveConcurrent(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	log := &memLog{events: map[string][]time.Time{}, now: now}
	l := New(Window{Limit: 5, Period: 10 * time.Minute}, WithClock(func() time.Time { return now }))

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Reserve(context.Background(), "1.2.3.4", log)
			if err != nil {
				t.Errorf("Reserve() error = %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Errorf("allowed %d reservations, want 5", allowed)
	}
}

func TestLimiterReserveError(t *testing.T) {
	boom := errors.New("boom")
	l := New(Window{Limit: 1, Period: time.Minute})
	if _, err := l.Reserve(context.Background(), "x", &memLog{err: boom}); !errors.Is(err, boom) {
		t.Errorf("Reserve() error = %v, want wrapped boom", err)
	}
}

func TestCooldownRemaining(t *testing.T) {
	c := Cooldown(time.Minute)
	last := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, time.Minute},
		{15 * time.Second, 45 * time.Second},
		{59*time.Second + 900*time.Millisecond, time.Second},
		{time.Minute, 0},
		{time.Hour, 0},
	}
	for _, tt := range tests {
		if got := c.Remaining(last, last.Add(tt.elapsed)); got != tt.want {
			t.Errorf("Remaining(after %v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}
