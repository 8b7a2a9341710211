package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinRequestDelay is the hard floor on the delay between consecutive
// requests. Configured delays below the floor are raised to it; this is an
// external-courtesy contract, not a suggestion.
const MinRequestDelay = 3 * time.Second

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// MinDelay enforces a minimum delay between consecutive requests
type MinDelay struct {
	delay time.Duration
	last  time.Time
	mu    sync.Mutex
}

// NewMinDelay creates a minimum-delay limiter. Delays below MinRequestDelay
// are clamped to the floor.
func NewMinDelay(delay time.Duration) *MinDelay {
	if delay < MinRequestDelay {
		delay = MinRequestDelay
	}
	return &MinDelay{delay: delay}
}

// Delay returns the effective inter-request delay
func (md *MinDelay) Delay() time.Duration {
	return md.delay
}

// Allow checks if a request can proceed without waiting
func (md *MinDelay) Allow() bool {
	md.mu.Lock()
	defer md.mu.Unlock()

	now := time.Now()
	if md.last.IsZero() || now.Sub(md.last) >= md.delay {
		md.last = now
		return true
	}
	return false
}

// Wait blocks until the minimum delay since the previous request has
// elapsed, or the context is cancelled
func (md *MinDelay) Wait(ctx context.Context) error {
	md.mu.Lock()
	now := time.Now()
	var sleep time.Duration
	if !md.last.IsZero() {
		if elapsed := now.Sub(md.last); elapsed < md.delay {
			sleep = md.delay - elapsed
		}
	}
	md.last = now.Add(sleep)
	md.mu.Unlock()

	if sleep <= 0 {
		return nil
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears the last-request timestamp
func (md *MinDelay) Reset() {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.last = time.Time{}
}

// Window limits requests to a fixed budget per minute
type Window struct {
	limiter   *rate.Limiter
	perMinute int
}

// NewWindow creates a per-minute window limiter
func NewWindow(perMinute int) *Window {
	return &Window{
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		perMinute: perMinute,
	}
}

// Allow checks if a request fits in the current window
func (w *Window) Allow() bool {
	return w.limiter.Allow()
}

// Wait blocks until the window admits another request
func (w *Window) Wait(ctx context.Context) error {
	return w.limiter.Wait(ctx)
}

// Reset recreates the window budget
func (w *Window) Reset() {
	w.limiter = rate.NewLimiter(rate.Limit(float64(w.perMinute)/60.0), 1)
}

// Pacer composes the minimum-delay floor with the per-minute window. Every
// request path funnels through a single Pacer so the two constraints are
// enforced together.
type Pacer struct {
	minDelay *MinDelay
	window   *Window
}

// NewPacer creates a pacer with the given inter-request delay and
// per-minute budget
func NewPacer(delay time.Duration, perMinute int) *Pacer {
	return &Pacer{
		minDelay: NewMinDelay(delay),
		window:   NewWindow(perMinute),
	}
}

// Delay returns the effective inter-request delay after clamping
func (p *Pacer) Delay() time.Duration {
	return p.minDelay.Delay()
}

// Allow checks both constraints without waiting
func (p *Pacer) Allow() bool {
	return p.window.Allow() && p.minDelay.Allow()
}

// Wait blocks until both the window and the minimum delay admit a request
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.window.Wait(ctx); err != nil {
		return err
	}
	return p.minDelay.Wait(ctx)
}

// Reset resets both constraints
func (p *Pacer) Reset() {
	p.window.Reset()
	p.minDelay.Reset()
}
