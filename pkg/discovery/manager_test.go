package discovery

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsagger/internal/store"
	"newsagger/pkg/captcha"
	"newsagger/pkg/chronicling"
	errs "newsagger/pkg/errors"
	"newsagger/pkg/logger"
	"newsagger/pkg/models"
	"newsagger/pkg/processor"
)

type fakeClient struct {
	newspapers []*chronicling.NewspapersResponse
	searchFn   func(page int) (*chronicling.SearchResponse, error)
	batches    []chronicling.BatchEntry
	details    map[string]*chronicling.BatchDetail
	issues     map[string]*chronicling.IssueDetail
	issueFails map[string]int
	gate       *captcha.Manager

	searchCalls int
	issueCalls  int
}

func (f *fakeClient) GetNewspapers(_ context.Context, page, _ int) (*chronicling.NewspapersResponse, error) {
	if page < 1 || page > len(f.newspapers) {
		return nil, fmt.Errorf("unexpected titles page %d", page)
	}
	return f.newspapers[page-1], nil
}

func (f *fakeClient) GetNewspaperIssues(_ context.Context, lccn string) (*chronicling.NewspaperDetail, error) {
	return nil, fmt.Errorf("unexpected issue listing request for %s", lccn)
}

func (f *fakeClient) SearchPages(_ context.Context, _ url.Values, page, _ int) (*chronicling.SearchResponse, error) {
	f.searchCalls++
	return f.searchFn(page)
}

func (f *fakeClient) GetAllBatches(_ context.Context) ([]chronicling.BatchEntry, error) {
	return f.batches, nil
}

func (f *fakeClient) GetBatch(_ context.Context, name string) (*chronicling.BatchDetail, error) {
	detail, ok := f.details[name]
	if !ok {
		return nil, fmt.Errorf("unknown batch %s", name)
	}
	return detail, nil
}

func (f *fakeClient) GetIssue(_ context.Context, issueURL string) (*chronicling.IssueDetail, error) {
	f.issueCalls++
	if f.issueFails[issueURL] > 0 {
		f.issueFails[issueURL]--
		if f.gate != nil {
			f.gate.Record(issueURL)
		}
		return nil, errs.NewCaptcha(issueURL, "challenge served")
	}
	detail, ok := f.issues[issueURL]
	if !ok {
		return nil, fmt.Errorf("unknown issue %s", issueURL)
	}
	return detail, nil
}

func (f *fakeClient) CaptchaManager() *captcha.Manager {
	return f.gate
}

func newTestManager(t *testing.T, client *fakeClient) (*Manager, *store.Store) {
	t.Helper()
	log := logger.NewNopLogger()
	st, err := store.Open(t.TempDir()+"/discovery.db", log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := New(client, processor.New(log), st, log)
	m.pollInterval = 5 * time.Millisecond
	return m, st
}

func searchItem(lccn, date string, seq int) chronicling.SearchItem {
	return chronicling.SearchItem{
		ID:   fmt.Sprintf("/lccn/%s/%s/ed-1/seq-%d/", lccn, date, seq),
		LCCN: lccn,
		Date: date,
	}
}

func TestDiscoverAllPeriodicals(t *testing.T) {
	client := &fakeClient{
		newspapers: []*chronicling.NewspapersResponse{
			{
				Newspapers: []chronicling.NewspaperEntry{
					{LCCN: "sn1", Title: "The Call", State: "California"},
					{LCCN: "sn2", Title: "The Sun", State: "New York"},
				},
				TotalPages: 2,
			},
			{
				Newspapers: []chronicling.NewspaperEntry{
					{LCCN: "sn3", Title: "The Tribune", State: "Illinois"},
				},
				TotalPages: 2,
			},
		},
	}
	m, st := newTestManager(t, client)

	count, err := m.DiscoverAllPeriodicals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stored, err := st.GetPeriodicals("")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestCreateDateRangeFacetsSkipsExisting(t *testing.T) {
	m, _ := newTestManager(t, &fakeClient{})

	created, err := m.CreateDateRangeFacets(1905, 1907, 1)
	require.NoError(t, err)
	assert.Len(t, created, 3)

	again, err := m.CreateDateRangeFacets(1905, 1907, 1)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDiscoverFacetContent(t *testing.T) {
	client := &fakeClient{
		searchFn: func(page int) (*chronicling.SearchResponse, error) {
			switch page {
			case 1:
				return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
					searchItem("sn1", "19060418", 1),
					searchItem("sn1", "19060418", 2),
				}}, nil
			case 2:
				return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
					searchItem("sn1", "19060419", 1),
				}}, nil
			default:
				return &chronicling.SearchResponse{}, nil
			}
		},
	}
	m, st := newTestManager(t, client)

	ids, err := m.CreateDateRangeFacets(1906, 1906, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	count, err := m.DiscoverFacetContent(context.Background(), ids[0], 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	facet, err := st.GetFacet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.FacetCompleted, facet.Status)
	assert.Equal(t, 3, facet.ActualItems)

	pages, err := st.GetPages(store.PageFilter{FacetID: ids[0]})
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestDiscoverFacetContentMaxItems(t *testing.T) {
	client := &fakeClient{
		searchFn: func(page int) (*chronicling.SearchResponse, error) {
			return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
				searchItem("sn1", fmt.Sprintf("1906041%d", page), 1),
				searchItem("sn1", fmt.Sprintf("1906041%d", page), 2),
			}}, nil
		},
	}
	m, _ := newTestManager(t, client)

	ids, err := m.CreateDateRangeFacets(1906, 1906, 1)
	require.NoError(t, err)

	count, err := m.DiscoverFacetContent(context.Background(), ids[0], 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDiscoverFacetContentResumesAfterCaptcha(t *testing.T) {
	client := &fakeClient{
		searchFn: func(page int) (*chronicling.SearchResponse, error) {
			if page == 1 {
				return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
					searchItem("sn1", "19060418", 1),
					searchItem("sn1", "19060418", 2),
				}}, nil
			}
			return nil, errs.NewCaptcha("search/pages/results/", "challenge served")
		},
	}
	m, st := newTestManager(t, client)

	ids, err := m.CreateDateRangeFacets(1906, 1906, 1)
	require.NoError(t, err)

	_, err = m.DiscoverFacetContent(context.Background(), ids[0], 2, 0)
	require.Error(t, err)
	assert.True(t, errs.IsCaptcha(err))

	facet, err := st.GetFacet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.FacetCaptchaBlocked, facet.Status)
	assert.Equal(t, 2, facet.ResumeFromPage)
	assert.Equal(t, 2, facet.ItemsDiscovered)

	// The block lifts; the next run picks up at the recorded page
	client.searchFn = func(page int) (*chronicling.SearchResponse, error) {
		require.Equal(t, 2, page)
		return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
			searchItem("sn1", "19060419", 1),
		}}, nil
	}

	count, err := m.DiscoverFacetContent(context.Background(), ids[0], 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	facet, err = st.GetFacet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.FacetCompleted, facet.Status)

	pages, err := st.GetPages(store.PageFilter{FacetID: ids[0]})
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestDiscoverFacetContentCompletedRerunAddsNothing(t *testing.T) {
	client := &fakeClient{
		searchFn: func(page int) (*chronicling.SearchResponse, error) {
			if page == 1 {
				return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
					searchItem("sn1", "19060418", 1),
					searchItem("sn1", "19060418", 2),
				}}, nil
			}
			return &chronicling.SearchResponse{}, nil
		},
	}
	m, st := newTestManager(t, client)

	ids, err := m.CreateDateRangeFacets(1906, 1906, 1)
	require.NoError(t, err)

	count, err := m.DiscoverFacetContent(context.Background(), ids[0], 3, 0)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 1, client.searchCalls)

	// A facet that finished on its first page holds no stale cursor, so
	// a rerun re-scans from the start and stores nothing new
	count, err = m.DiscoverFacetContent(context.Background(), ids[0], 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 2, client.searchCalls)

	facet, err := st.GetFacet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.FacetCompleted, facet.Status)

	pages, err := st.GetPages(store.PageFilter{FacetID: ids[0]})
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestDiscoverFacetContentReopensStaleCursor(t *testing.T) {
	client := &fakeClient{
		searchFn: func(page int) (*chronicling.SearchResponse, error) {
			switch page {
			case 1:
				return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
					searchItem("sn1", "19060418", 1),
					searchItem("sn1", "19060418", 2),
				}}, nil
			case 2:
				return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
					searchItem("sn1", "19060419", 1),
				}}, nil
			default:
				return &chronicling.SearchResponse{}, nil
			}
		},
	}
	m, st := newTestManager(t, client)

	ids, err := m.CreateDateRangeFacets(1906, 1906, 1)
	require.NoError(t, err)

	count, err := m.DiscoverFacetContent(context.Background(), ids[0], 2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 2, client.searchCalls)

	// The completed facet still carries its mid-crawl cursor, so the
	// rerun reopens it, probes the page after the cursor, finds nothing
	// and closes it again without duplicating a single page
	count, err = m.DiscoverFacetContent(context.Background(), ids[0], 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, client.searchCalls)

	facet, err := st.GetFacet(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.FacetCompleted, facet.Status)
	assert.Equal(t, 3, facet.ActualItems)
	assert.Equal(t, 3, facet.CurrentPage)
	assert.Contains(t, facet.ErrorMessage, "reopened")

	pages, err := st.GetPages(store.PageFilter{FacetID: ids[0]})
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestEnqueueFacetContentPriority(t *testing.T) {
	client := &fakeClient{
		searchFn: func(page int) (*chronicling.SearchResponse, error) {
			if page > 1 {
				return &chronicling.SearchResponse{}, nil
			}
			return &chronicling.SearchResponse{Items: []chronicling.SearchItem{
				searchItem("sn1", "19060418", 1),
			}}, nil
		},
	}
	m, st := newTestManager(t, client)

	ids, err := m.CreateDateRangeFacets(1906, 1906, 1)
	require.NoError(t, err)
	_, err = m.DiscoverFacetContent(context.Background(), ids[0], 100, 0)
	require.NoError(t, err)

	enqueued, err := m.EnqueueFacetContent(ids[0], 0)
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)

	items, err := st.GetDownloadQueue(models.QueueStatusQueued, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Priority)
}

func batchFixture(gate *captcha.Manager) *fakeClient {
	client := &fakeClient{
		batches: []chronicling.BatchEntry{{Name: "batch_alpha", URL: "https://chroniclingamerica.loc.gov/batches/batch_alpha/"}},
		details: map[string]*chronicling.BatchDetail{"batch_alpha": {Name: "batch_alpha"}},
		issues:  map[string]*chronicling.IssueDetail{},
		gate:    gate,
	}

	for day := 1; day <= 5; day++ {
		date := fmt.Sprintf("1906-04-%02d", day)
		issueURL := fmt.Sprintf("https://chroniclingamerica.loc.gov/lccn/sn1/%s/ed-1.json", date)
		detail := &chronicling.IssueDetail{
			URL:        issueURL,
			DateIssued: date,
			Title:      chronicling.NamedRef{Name: "The Call"},
		}
		for seq := 1; seq <= 2; seq++ {
			detail.Pages = append(detail.Pages, chronicling.PageRef{
				URL:      fmt.Sprintf("https://chroniclingamerica.loc.gov/lccn/sn1/%s/ed-1/seq-%d.json", date, seq),
				Sequence: seq,
			})
		}
		client.issues[issueURL] = detail
		client.details["batch_alpha"].Issues = append(client.details["batch_alpha"].Issues, chronicling.IssueRef{
			URL:        issueURL,
			DateIssued: date,
		})
	}
	return client
}

func TestDiscoverViaBatches(t *testing.T) {
	client := batchFixture(nil)
	m, st := newTestManager(t, client)

	stats, err := m.DiscoverViaBatches(context.Background(), BatchOptions{AutoEnqueue: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ProcessedBatches)
	assert.Equal(t, 10, stats.DiscoveredPages)
	assert.Equal(t, 10, stats.EnqueuedPages)
	assert.Equal(t, 0, stats.Errors)

	pages, err := st.GetPages(store.PageFilter{LCCN: "sn1"})
	require.NoError(t, err)
	assert.Len(t, pages, 10)

	items, err := st.GetDownloadQueue(models.QueueStatusQueued, 0)
	require.NoError(t, err)
	require.Len(t, items, 10)
	for _, item := range items {
		assert.Equal(t, batchPriority, item.Priority)
	}

	session, err := st.GetBatchSession("batch_discovery_main")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.SessionCompleted, session.Status)
	assert.Equal(t, 10, session.PagesDiscovered)
	assert.Equal(t, 10, session.PagesEnqueued)
}

func TestDiscoverViaBatchesRerunSkipsKnownIssues(t *testing.T) {
	client := batchFixture(nil)
	m, st := newTestManager(t, client)

	_, err := m.DiscoverViaBatches(context.Background(), BatchOptions{AutoEnqueue: true})
	require.NoError(t, err)
	firstRunCalls := client.issueCalls

	stats, err := m.DiscoverViaBatches(context.Background(), BatchOptions{AutoEnqueue: true})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DiscoveredPages)
	assert.Equal(t, 0, stats.EnqueuedPages)
	// Known issues are skipped from storage, not refetched
	assert.Equal(t, firstRunCalls, client.issueCalls)

	pages, err := st.GetPages(store.PageFilter{LCCN: "sn1"})
	require.NoError(t, err)
	assert.Len(t, pages, 10)
}

func TestDiscoverViaBatchesResumeReactivatesSession(t *testing.T) {
	client := batchFixture(nil)
	m, st := newTestManager(t, client)

	_, err := m.DiscoverViaBatches(context.Background(), BatchOptions{})
	require.NoError(t, err)

	session, err := st.GetBatchSession(BatchSessionName)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, session.Status)

	// A rerun flips the session back to active before walking; cancel
	// right away so the mid-run status is observable
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.DiscoverViaBatches(ctx, BatchOptions{})
	require.ErrorIs(t, err, context.Canceled)

	session, err = st.GetBatchSession(BatchSessionName)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.Status)
}

func TestDiscoverViaBatchesWaitsOutCaptcha(t *testing.T) {
	gate := captcha.NewManager(25*time.Millisecond, logger.NewNopLogger())
	client := batchFixture(gate)
	client.issueFails = map[string]int{
		"https://chroniclingamerica.loc.gov/lccn/sn1/1906-04-03/ed-1.json": 1,
	}
	m, st := newTestManager(t, client)

	stats, err := m.DiscoverViaBatches(context.Background(), BatchOptions{AutoEnqueue: true})
	require.NoError(t, err)
	assert.Equal(t, 10, stats.DiscoveredPages)
	assert.Equal(t, 0, stats.Errors)

	pages, err := st.GetPages(store.PageFilter{LCCN: "sn1"})
	require.NoError(t, err)
	assert.Len(t, pages, 10)

	session, err := st.GetBatchSession("batch_discovery_main")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, session.Status)
}

func TestDiscoverViaBatchesCancelledWhileBlocked(t *testing.T) {
	gate := captcha.NewManager(time.Hour, logger.NewNopLogger())
	client := batchFixture(gate)
	client.issueFails = map[string]int{
		"https://chroniclingamerica.loc.gov/lccn/sn1/1906-04-01/ed-1.json": 1,
	}
	m, st := newTestManager(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.DiscoverViaBatches(ctx, BatchOptions{})
	require.Error(t, err)

	// The session keeps the exact position for the next run
	session, err := st.GetBatchSession("batch_discovery_main")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.SessionCaptchaBlocked, session.Status)
	assert.Equal(t, 0, session.CurrentBatchIndex)
	assert.Equal(t, 0, session.CurrentIssueIndex)
}
