// Package ratelimit provides request pacing for the archive crawler.
//
// The remote archive enforces a strict request budget, so every request
// path funnels through a single Pacer combining two constraints:
//
// Minimum delay:
//   - A hard floor on the gap between consecutive requests
//   - Configured delays below MinRequestDelay are silently raised to it
//
// Per-minute window:
//   - A fixed request budget per minute, backed by golang.org/x/time/rate
//
// Interface:
//
// All limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed
//   - Wait(ctx) error - Block until a request is allowed or ctx is done
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	pacer := ratelimit.NewPacer(3*time.Second, 18)
//
//	if err := pacer.Wait(ctx); err != nil {
//	    return err // cancelled
//	}
//	// Proceed with request
package ratelimit
