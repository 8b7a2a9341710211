// Package discovery coordinates the systematic mapping of the archive
// before any content is downloaded.
//
// Discovery happens along three axes. The titles listing yields the set
// of periodicals. Search facets partition the page index by date range
// or state so the crawl can be resumed, prioritized and re-run safely;
// every facet persists its page cursor after each batch. Batch discovery
// walks the digitization batch listing instead of the search endpoint,
// which covers the archive issue by issue with far fewer CAPTCHA
// challenges, tracking its position in a named session.
//
// All three paths write through internal/store, so killing the process
// at any point loses at most the batch in flight.
package discovery
