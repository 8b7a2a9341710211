// Package processor maps raw archive responses into storage models.
//
// The archive's responses are inconsistent between collections: search
// items omit ids, editions and sequences unpredictably, and year fields
// arrive as free-form prose. Mapping is therefore defensive throughout,
// with an identity fallback chain (id field, URL path segment,
// lccn_date_seq) and a cross-response seen-set for deduplication.
package processor
