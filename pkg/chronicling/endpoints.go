package chronicling

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the base URL for the Chronicling America archive
	DefaultBaseURL = "https://chroniclingamerica.loc.gov/"

	// NewspapersEndpoint lists all digitized newspaper titles
	NewspapersEndpoint = "newspapers.json"

	// SearchEndpoint is the full-text page search endpoint
	SearchEndpoint = "search/pages/results/"

	// BatchesEndpoint lists digitization batches
	BatchesEndpoint = "batches.json"

	// DefaultRows is the default number of results per page
	DefaultRows = 1000

	// MaxRows is the maximum number of results the archive returns per page
	MaxRows = 1000
)

// NewspapersParams builds query parameters for the titles listing
func NewspapersParams(page, rows int) url.Values {
	if rows <= 0 || rows > MaxRows {
		rows = MaxRows
	}
	if page <= 0 {
		page = 1
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("page", strconv.Itoa(page))
	params.Set("rows", strconv.Itoa(rows))
	return params
}

// NewspaperIssuesEndpoint returns the endpoint for a newspaper's issue listing
func NewspaperIssuesEndpoint(lccn string) string {
	return fmt.Sprintf("lccn/%s.json", lccn)
}

// PageMetadataEndpoint returns the endpoint for a single page's metadata
func PageMetadataEndpoint(lccn, date string, edition, sequence int) string {
	return fmt.Sprintf("lccn/%s/%s/ed-%d/seq-%d.json", lccn, date, edition, sequence)
}

// BatchEndpoint returns the endpoint for a single digitization batch
func BatchEndpoint(name string) string {
	return fmt.Sprintf("batches/%s.json", name)
}

// EndpointForURL converts an absolute archive URL into a relative endpoint.
// URLs from other hosts are returned unchanged.
func EndpointForURL(baseURL, rawURL string) string {
	base := strings.TrimSuffix(baseURL, "/") + "/"
	if strings.HasPrefix(rawURL, base) {
		return strings.TrimPrefix(rawURL, base)
	}
	return rawURL
}
