package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"newsagger/pkg/logger"
	"newsagger/pkg/models"
)

func TestBuildSearchParamsDateRange(t *testing.T) {
	facet := &models.Facet{Type: models.FacetKindDateRange, Value: "1906/1907"}
	params := BuildSearchParams(facet, 3, 100, logger.NewNopLogger())

	assert.Equal(t, "1906", params.Get("date1"))
	assert.Equal(t, "1907", params.Get("date2"))
	assert.Equal(t, "3", params.Get("page"))
	assert.Equal(t, "100", params.Get("rows"))
}

func TestBuildSearchParamsSingleYear(t *testing.T) {
	facet := &models.Facet{Type: models.FacetKindDateRange, Value: "1906"}
	params := BuildSearchParams(facet, 1, 100, logger.NewNopLogger())

	assert.Equal(t, "1906", params.Get("date1"))
	assert.Equal(t, "1906", params.Get("date2"))
}

func TestBuildSearchParamsState(t *testing.T) {
	facet := &models.Facet{Type: models.FacetKindState, Value: "California"}
	params := BuildSearchParams(facet, 1, 50, logger.NewNopLogger())

	assert.Equal(t, "California", params.Get("state"))
	assert.Empty(t, params.Get("date1"))
}

func TestBuildSearchParamsCombined(t *testing.T) {
	facet := &models.Facet{
		Type:  models.FacetKindCombined,
		Value: "state:New York|date_range:1917/1918",
	}
	params := BuildSearchParams(facet, 1, 100, logger.NewNopLogger())

	assert.Equal(t, "New York", params.Get("state"))
	assert.Equal(t, "1917", params.Get("date1"))
	assert.Equal(t, "1918", params.Get("date2"))
}

func TestBuildSearchParamsUnknownKind(t *testing.T) {
	facet := &models.Facet{Type: "volume", Value: "12"}
	params := BuildSearchParams(facet, 2, 100, logger.NewNopLogger())

	// Unknown kinds fall back to bare pagination
	assert.Len(t, params, 2)
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "100", params.Get("rows"))
}

func TestBuildSearchParamsQuery(t *testing.T) {
	facet := &models.Facet{Type: models.FacetKindDateRange, Value: "1906/1906", Query: "earthquake"}
	params := BuildSearchParams(facet, 1, 100, logger.NewNopLogger())

	assert.Equal(t, "earthquake", params.Get("andtext"))
}

func TestAdjustBatchSize(t *testing.T) {
	state := &models.Facet{Type: models.FacetKindState, Value: "Ohio"}
	dates := &models.Facet{Type: models.FacetKindDateRange, Value: "1906/1906"}

	assert.Equal(t, 50, AdjustBatchSize(state, 100))
	assert.Equal(t, 20, AdjustBatchSize(state, 20))
	assert.Equal(t, 100, AdjustBatchSize(dates, 100))
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		name     string
		facet    *models.Facet
		expected int
	}{
		{"earthquake year", &models.Facet{Type: models.FacetKindDateRange, Value: "1906/1906"}, 1},
		{"wwi year", &models.Facet{Type: models.FacetKindDateRange, Value: "1917/1917"}, 2},
		{"armistice year", &models.Facet{Type: models.FacetKindDateRange, Value: "1918/1919"}, 2},
		{"plain year", &models.Facet{Type: models.FacetKindDateRange, Value: "1890/1890"}, 5},
		{"boosted state", &models.Facet{Type: models.FacetKindState, Value: "California"}, 4},
		{"plain state", &models.Facet{Type: models.FacetKindState, Value: "Ohio"}, 5},
		{"combined", &models.Facet{Type: models.FacetKindCombined, Value: "state:California|date_range:1906/1906"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PriorityFor(tt.facet))
		})
	}
}
