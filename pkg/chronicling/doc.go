// Package chronicling provides a rate-limited client for the Library of
// Congress Chronicling America API.
//
// All requests funnel through a single pacer that enforces both a
// minimum inter-request delay and a per-minute budget, and through the
// shared CAPTCHA cooling-off gate. HTTP 429 responses back off for an
// hour per attempt; transient network failures back off from 30 seconds.
// The archive serves CAPTCHA challenges as HTML with status 200, so 200
// responses that do not look like JSON are sniffed for challenge markers
// and recorded against the global gate.
//
// Typed endpoint methods cover the titles listing, per-title issue
// records, the page search endpoint, and digitization batches. Fetch
// exposes a raw streaming GET for content downloads.
package chronicling
