// Package ratelimit spaces out calls to the upstream APIs.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = time.Minute

// Defaults match the limits the upstream APIs tolerate.
const (
	DefaultMinInterval  = 2 * time.Second
	DefaultMaxPerMinute = 30
)

// Limiter enforces a minimum spacing between requests and a sliding
// per-minute cap. One Limiter is shared by every upstream client.
type Limiter struct {
	slot chan struct{}

	mu           sync.Mutex
	minInterval  time.Duration
	maxPerMinute int
	last         time.Time
	stamps       []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Stats is a snapshot of the request window.
type Stats struct {
	InWindow     int           `json:"in_window"`
	MaxPerMinute int           `json:"max_per_minute"`
	MinInterval  time.Duration `json:"min_interval_ns"`
	LastRequest  time.Time     `json:"last_request,omitempty"`
}

// New creates a limiter. A negative interval or a non-positive cap falls
// back to the defaults.
func New(minInterval time.Duration, maxPerMinute int) *Limiter {
	if minInterval < 0 {
		minInterval = DefaultMinInterval
	}
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxPerMinute
	}
	return &Limiter{
		slot:         make(chan struct{}, 1),
		minInterval:  minInterval,
		maxPerMinute: maxPerMinute,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// SetClock replaces the time source and sleeper. Used by tests.
func (l *Limiter) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.sleep = sleep
}

// Acquire blocks until a request may be sent, then records it. Callers
// go out one at a time; a caller still queued for its turn gives up as
// soon as ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	for {
		wait, sleep := l.nextWait()
		if wait <= 0 {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.last = now
	l.stamps = append(l.stamps, now)
	return nil
}

// nextWait reports how long the caller holding the slot must still wait.
// mu is released before the caller sleeps.
func (l *Limiter) nextWait() (time.Duration, func(context.Context, time.Duration) error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var wait time.Duration
	if !l.last.IsZero() {
		wait = l.minInterval - now.Sub(l.last)
	}
	l.prune()
	if len(l.stamps) >= l.maxPerMinute {
		if w := l.stamps[0].Add(window).Sub(now); w > wait {
			wait = w
		}
	}
	return wait, l.sleep
}

// Stats returns the current window size and limits.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune()
	return Stats{
		InWindow:     len(l.stamps),
		MaxPerMinute: l.maxPerMinute,
		MinInterval:  l.minInterval,
		LastRequest:  l.last,
	}
}

// Reset forgets all recorded requests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = time.Time{}
	l.stamps = nil
}

func (l *Limiter) prune() {
	cutoff := l.now().Add(-window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
