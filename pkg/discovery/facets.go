package discovery

import (
	"net/url"
	"strconv"
	"strings"

	"newsagger/pkg/logger"
	"newsagger/pkg/models"
)

// stateBatchCap bounds rows for state searches, which time out at larger
// batch sizes.
const stateBatchCap = 50

// States whose content gets a priority boost in the download queue.
var boostedStates = map[string]bool{
	"California": true,
	"New York":   true,
	"Illinois":   true,
}

// BuildSearchParams translates a facet into search endpoint parameters.
// Unknown facet types log a warning and search without filters.
func BuildSearchParams(facet *models.Facet, page, batchSize int, log logger.Logger) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("rows", strconv.Itoa(batchSize))

	switch facet.Type {
	case models.FacetKindDateRange:
		applyDateRange(params, facet.Value)
	case models.FacetKindState:
		params.Set("state", facet.Value)
	case models.FacetKindCombined:
		// Combined facets look like "state:California|date_range:1906/1906"
		for _, part := range strings.Split(facet.Value, "|") {
			kind, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			switch kind {
			case models.FacetKindState:
				params.Set("state", value)
			case models.FacetKindDateRange:
				applyDateRange(params, value)
			}
		}
	default:
		log.WithField("facet_type", facet.Type).Warn("unknown facet type, searching without filters")
	}

	if facet.Query != "" {
		params.Set("andtext", facet.Query)
	}
	return params
}

func applyDateRange(params url.Values, value string) {
	start, end, ok := strings.Cut(value, "/")
	if !ok {
		end = start
	}
	params.Set("date1", start)
	params.Set("date2", end)
}

// AdjustBatchSize caps the batch size for state facets
func AdjustBatchSize(facet *models.Facet, batchSize int) int {
	if facet.Type == models.FacetKindState && batchSize > stateBatchCap {
		return stateBatchCap
	}
	return batchSize
}

// PriorityFor computes the download priority for content belonging to a
// facet. Lower is more urgent: the 1906 earthquake coverage first, the
// WWI years next, boosted states one step ahead of their peers.
func PriorityFor(facet *models.Facet) int {
	priority := 5

	switch facet.Type {
	case models.FacetKindDateRange:
		switch {
		case strings.Contains(facet.Value, "1906"):
			priority = 1
		case strings.Contains(facet.Value, "1917"),
			strings.Contains(facet.Value, "1918"),
			strings.Contains(facet.Value, "1919"):
			priority = 2
		}
	case models.FacetKindState:
		if boostedStates[facet.Value] && priority > 1 {
			priority--
		}
	}

	return priority
}
