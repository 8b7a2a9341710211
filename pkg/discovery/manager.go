package discovery

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"newsagger/internal/store"
	"newsagger/pkg/captcha"
	"newsagger/pkg/chronicling"
	errs "newsagger/pkg/errors"
	"newsagger/pkg/logger"
	"newsagger/pkg/models"
	"newsagger/pkg/processor"
)

// ArchiveClient is the slice of the archive API the discovery manager
// depends on.
type ArchiveClient interface {
	GetNewspapers(ctx context.Context, page, rows int) (*chronicling.NewspapersResponse, error)
	GetNewspaperIssues(ctx context.Context, lccn string) (*chronicling.NewspaperDetail, error)
	SearchPages(ctx context.Context, params url.Values, page, rows int) (*chronicling.SearchResponse, error)
	GetAllBatches(ctx context.Context) ([]chronicling.BatchEntry, error)
	GetBatch(ctx context.Context, name string) (*chronicling.BatchDetail, error)
	GetIssue(ctx context.Context, issueURL string) (*chronicling.IssueDetail, error)
	CaptchaManager() *captcha.Manager
}

const (
	titlesPageSize   = 100
	defaultBatchSize = 100
)

// Manager coordinates discovery of titles, facets and batches, tracking
// all progress in storage so any interruption is resumable.
type Manager struct {
	client       ArchiveClient
	processor    *processor.Processor
	store        *store.Store
	pollInterval time.Duration
	logger       logger.Logger
}

// New creates a discovery manager
func New(client ArchiveClient, proc *processor.Processor, st *store.Store, log logger.Logger) *Manager {
	return &Manager{
		client:       client,
		processor:    proc,
		store:        st,
		pollInterval: 5 * time.Minute,
		logger:       log,
	}
}

// SetCaptchaPollInterval overrides how often a blocked run rechecks the
// CAPTCHA gate
func (m *Manager) SetCaptchaPollInterval(d time.Duration) {
	if d > 0 {
		m.pollInterval = d
	}
}

// DiscoverAllPeriodicals pages through the full titles listing and stores
// every periodical. Returns the number of newly stored titles.
func (m *Manager) DiscoverAllPeriodicals(ctx context.Context) (int, error) {
	m.logger.Info("starting periodical discovery")

	discovered := 0
	for page := 1; ; page++ {
		response, err := m.client.GetNewspapers(ctx, page, titlesPageSize)
		if err != nil {
			return discovered, err
		}

		periodicals := m.processor.Newspapers(response)
		if len(periodicals) == 0 {
			break
		}

		stored, err := m.store.SavePeriodicals(periodicals)
		if err != nil {
			return discovered, err
		}
		discovered += stored

		if response.TotalPages > 0 && page >= response.TotalPages {
			break
		}
	}

	m.logger.WithField("count", discovered).Info("periodical discovery completed")
	return discovered, nil
}

// DiscoverPeriodicalIssues fetches the issue listing for one periodical
// and stores every dated issue. Returns the issue count.
func (m *Manager) DiscoverPeriodicalIssues(ctx context.Context, lccn string) (int, error) {
	detail, err := m.client.GetNewspaperIssues(ctx, lccn)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, ref := range detail.Issues {
		if ref.DateIssued == "" {
			continue
		}
		issue := models.Issue{
			LCCN:         lccn,
			Date:         processor.FormatDate(ref.DateIssued),
			EditionCount: 1,
		}
		if _, err := m.store.SaveIssue(issue, ref.URL); err != nil {
			return count, err
		}
		count++
	}

	if err := m.store.UpdatePeriodicalDiscovery(lccn, count, count, true); err != nil {
		return count, err
	}

	m.logger.WithFields(map[string]interface{}{
		"lccn":   lccn,
		"issues": count,
	}).Info("discovered periodical issues")
	return count, nil
}

// CreateDateRangeFacets plans date range facets between two years, step
// years per facet. Ranges that already exist are skipped so planning can
// be re-run after an interruption. Returns the IDs of new facets only.
func (m *Manager) CreateDateRangeFacets(startYear, endYear, stepYears int) ([]int64, error) {
	if stepYears <= 0 {
		stepYears = 1
	}

	existing, err := m.store.GetFacets(models.FacetKindDateRange, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, facet := range existing {
		known[facet.Value] = true
	}

	var created []int64
	skipped := 0
	for year := startYear; year <= endYear; year += stepYears {
		rangeEnd := year + stepYears - 1
		if rangeEnd > endYear {
			rangeEnd = endYear
		}
		value := fmt.Sprintf("%d/%d", year, rangeEnd)
		if known[value] {
			skipped++
			continue
		}

		id, err := m.store.CreateFacet(models.FacetKindDateRange, value, "", 0)
		if err != nil {
			return created, err
		}
		created = append(created, id)
	}

	m.logger.WithFields(map[string]interface{}{
		"created": len(created),
		"skipped": skipped,
	}).Info("planned date range facets")
	return created, nil
}

// CreateStateFacets plans one facet per state. With no states given, the
// states of all discovered periodicals are used. Existing facets are
// skipped.
func (m *Manager) CreateStateFacets(states []string) ([]int64, error) {
	if len(states) == 0 {
		periodicals, err := m.store.GetPeriodicals("")
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		for _, p := range periodicals {
			if p.State != "" && !seen[p.State] {
				seen[p.State] = true
				states = append(states, p.State)
			}
		}
	}

	existing, err := m.store.GetFacets(models.FacetKindState, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, facet := range existing {
		known[facet.Value] = true
	}

	var created []int64
	for _, state := range states {
		if known[state] {
			continue
		}

		statePeriodicals, err := m.store.GetPeriodicals(state)
		if err != nil {
			return created, err
		}
		// Rough estimate of a thousand pages per title
		estimated := len(statePeriodicals) * 1000

		id, err := m.store.CreateFacet(models.FacetKindState, state, "", estimated)
		if err != nil {
			return created, err
		}
		created = append(created, id)
	}

	m.logger.WithField("created", len(created)).Info("planned state facets")
	return created, nil
}

// DiscoverFacetContent walks the search results for one facet, storing
// pages and persisting the page cursor after every batch. A maxItems of
// zero means unlimited. Returns the number of items discovered in this
// run plus any resumed progress.
func (m *Manager) DiscoverFacetContent(ctx context.Context, facetID int64, batchSize, maxItems int) (int, error) {
	facet, err := m.store.GetFacet(facetID)
	if err != nil {
		return 0, err
	}
	if facet == nil {
		return 0, fmt.Errorf("facet %d not found", facetID)
	}

	facet, err = m.validateFacetStatus(facet)
	if err != nil {
		return 0, err
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batchSize = AdjustBatchSize(facet, batchSize)

	page := facet.ResumeFromPage
	if page < 1 {
		page = 1
	}
	discovered := 0
	if page > 1 {
		discovered = facet.ItemsDiscovered
		m.logger.WithFields(map[string]interface{}{
			"facet_id": facetID,
			"page":     page,
		}).Info("resuming facet discovery")
	} else {
		if err := m.store.UpdateFacetDiscovery(facetID, store.FacetDiscoveryUpdate{
			Status: strptr(models.FacetDiscovering),
		}); err != nil {
			return 0, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		if maxItems > 0 && discovered >= maxItems {
			break
		}

		params := BuildSearchParams(facet, page, batchSize, m.logger)
		response, err := m.client.SearchPages(ctx, params, page, batchSize)
		if err != nil {
			return discovered, m.recordFacetFailure(facetID, discovered, page, err)
		}

		pages := m.processor.SearchResults(response, true)
		if len(pages) == 0 {
			break
		}
		if maxItems > 0 && discovered+len(pages) > maxItems {
			pages = pages[:maxItems-discovered]
		}
		for i := range pages {
			pages[i].FacetID = facetID
		}

		stored, err := m.store.SavePages(pages)
		if err != nil {
			return discovered, err
		}
		discovered += stored

		if err := m.store.UpdateFacetDiscovery(facetID, store.FacetDiscoveryUpdate{
			ItemsDiscovered: &discovered,
			CurrentPage:     &page,
			BatchSize:       &batchSize,
		}); err != nil {
			return discovered, err
		}

		if len(pages) < batchSize {
			break
		}
		page++
	}

	if err := m.store.UpdateFacetDiscovery(facetID, store.FacetDiscoveryUpdate{
		ActualItems:     &discovered,
		ItemsDiscovered: &discovered,
		Status:          strptr(models.FacetCompleted),
	}); err != nil {
		return discovered, err
	}

	m.logger.WithFields(map[string]interface{}{
		"facet_id": facetID,
		"items":    discovered,
	}).Info("completed facet discovery")
	return discovered, nil
}

// recordFacetFailure marks the facet so the interruption survives a
// process restart. CAPTCHA failures keep the cursor for resume; other
// failures record the error message.
func (m *Manager) recordFacetFailure(facetID int64, discovered, page int, cause error) error {
	update := store.FacetDiscoveryUpdate{
		ItemsDiscovered: &discovered,
		ErrorMessage:    strptr(cause.Error()),
	}
	if errs.IsCaptcha(cause) {
		update.Status = strptr(models.FacetCaptchaBlocked)
		update.CurrentPage = &page
	} else {
		update.Status = strptr(models.FacetError)
	}

	if err := m.store.UpdateFacetDiscovery(facetID, update); err != nil {
		m.logger.WithError(err).Error("failed to record facet failure")
	}
	return cause
}

// validateFacetStatus repairs facets that were marked completed while a
// crawl was actually interrupted mid-page. Such facets go back to
// discovering and resume on the page after the recorded cursor.
func (m *Manager) validateFacetStatus(facet *models.Facet) (*models.Facet, error) {
	if facet.Status != models.FacetCompleted {
		return facet, nil
	}

	interrupted := (facet.CurrentPage > 1 && facet.ErrorMessage == "") || facet.ResumeFromPage > 1
	if !interrupted {
		return facet, nil
	}

	resume := 1
	if facet.CurrentPage > 1 {
		resume = facet.CurrentPage + 1
	}

	m.logger.WithFields(map[string]interface{}{
		"facet_id":    facet.ID,
		"resume_page": resume,
	}).Warn("reopening incorrectly completed facet")

	err := m.store.UpdateFacetDiscovery(facet.ID, store.FacetDiscoveryUpdate{
		Status:       strptr(models.FacetDiscovering),
		ErrorMessage: strptr(fmt.Sprintf("reopened incomplete facet, resuming from page %d", resume)),
		CurrentPage:  &resume,
	})
	if err != nil {
		return facet, err
	}

	facet.Status = models.FacetDiscovering
	facet.CurrentPage = resume
	facet.ResumeFromPage = resume
	return facet, nil
}

// EnqueueFacetContent adds all undownloaded pages of a facet to the
// download queue at the facet's computed priority. A maxItems of zero
// enqueues everything.
func (m *Manager) EnqueueFacetContent(facetID int64, maxItems int) (int, error) {
	facet, err := m.store.GetFacet(facetID)
	if err != nil {
		return 0, err
	}
	if facet == nil {
		return 0, fmt.Errorf("facet %d not found", facetID)
	}

	notDownloaded := false
	pages, err := m.store.GetPages(store.PageFilter{
		FacetID:    facetID,
		Downloaded: &notDownloaded,
		Limit:      maxItems,
	})
	if err != nil {
		return 0, err
	}

	priority := PriorityFor(facet)
	enqueued := 0
	for _, page := range pages {
		// Rough per-page estimates, one megabyte and six minutes
		if _, err := m.store.Enqueue(models.QueueTypePage, page.ItemID, priority, 1.0, 0.1); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	m.logger.WithFields(map[string]interface{}{
		"facet_id": facetID,
		"enqueued": enqueued,
		"priority": priority,
	}).Info("enqueued facet content")
	return enqueued, nil
}

func strptr(s string) *string { return &s }
