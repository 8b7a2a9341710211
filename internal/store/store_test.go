package store

import (
	"testing"

	"newsagger/pkg/logger"
	"newsagger/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir()+"/newsagger.db", logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestOpenMigratesSchema(t *testing.T) {
	st := newTestStore(t)

	for _, table := range []string{"periodicals", "periodical_issues", "pages", "search_facets", "batch_sessions", "download_queue"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s not created: %v", table, err)
		}
	}
}

func TestSavePeriodicalsUpsert(t *testing.T) {
	st := newTestStore(t)

	year := 1895
	periodicals := []models.Periodical{
		{LCCN: "sn85066387", Title: "The San Francisco Call", State: "California", StartYear: &year},
		{LCCN: "sn83025581", Title: "The Sun", State: "New York"},
	}

	count, err := st.SavePeriodicals(periodicals)
	if err != nil {
		t.Fatalf("SavePeriodicals failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 new periodicals, got %d", count)
	}

	// Re-saving with a changed title updates in place and counts nothing new
	periodicals[0].Title = "The San Francisco Call (updated)"
	count, err = st.SavePeriodicals(periodicals[:1])
	if err != nil {
		t.Fatalf("SavePeriodicals failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 new periodicals on upsert, got %d", count)
	}

	p, err := st.GetPeriodical("sn85066387")
	if err != nil {
		t.Fatalf("GetPeriodical failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected periodical, got nil")
	}
	if p.Title != "The San Francisco Call (updated)" {
		t.Errorf("expected updated title, got %q", p.Title)
	}
	if p.StartYear == nil || *p.StartYear != 1895 {
		t.Errorf("expected start year 1895, got %v", p.StartYear)
	}

	byState, err := st.GetPeriodicals("New York")
	if err != nil {
		t.Fatalf("GetPeriodicals failed: %v", err)
	}
	if len(byState) != 1 || byState[0].LCCN != "sn83025581" {
		t.Errorf("expected one New York periodical, got %+v", byState)
	}
}

func TestUpdatePeriodicalDiscovery(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.SavePeriodicals([]models.Periodical{{LCCN: "sn85066387", Title: "The Call"}}); err != nil {
		t.Fatalf("SavePeriodicals failed: %v", err)
	}
	if err := st.UpdatePeriodicalDiscovery("sn85066387", 120, 120, true); err != nil {
		t.Fatalf("UpdatePeriodicalDiscovery failed: %v", err)
	}

	p, err := st.GetPeriodical("sn85066387")
	if err != nil {
		t.Fatalf("GetPeriodical failed: %v", err)
	}
	if p.TotalIssues != 120 || p.IssuesDiscovered != 120 || !p.DiscoveryComplete {
		t.Errorf("discovery fields not updated: %+v", p)
	}
}

func TestSavePagesIgnoresDuplicates(t *testing.T) {
	st := newTestStore(t)

	pages := []models.Page{
		{ItemID: "sn85066387_1906-04-18_1", LCCN: "sn85066387", Date: "1906-04-18", Edition: 1, Sequence: 1},
		{ItemID: "sn85066387_1906-04-18_2", LCCN: "sn85066387", Date: "1906-04-18", Edition: 1, Sequence: 2},
	}

	count, err := st.SavePages(pages)
	if err != nil {
		t.Fatalf("SavePages failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 new pages, got %d", count)
	}

	count, err = st.SavePages(pages)
	if err != nil {
		t.Fatalf("SavePages failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 new pages on re-save, got %d", count)
	}

	issuePages, err := st.CountIssuePages("sn85066387", "1906-04-18", 1)
	if err != nil {
		t.Fatalf("CountIssuePages failed: %v", err)
	}
	if issuePages != 2 {
		t.Errorf("expected 2 issue pages, got %d", issuePages)
	}
}

func TestSavePagesAndEnqueue(t *testing.T) {
	st := newTestStore(t)

	pages := []models.Page{
		{ItemID: "p1", LCCN: "sn85066387", Date: "1906-04-18", Edition: 1, Sequence: 1},
		{ItemID: "p2", LCCN: "sn85066387", Date: "1906-04-18", Edition: 1, Sequence: 2},
	}

	stored, enqueued, err := st.SavePagesAndEnqueue(pages, 2)
	if err != nil {
		t.Fatalf("SavePagesAndEnqueue failed: %v", err)
	}
	if stored != 2 || enqueued != 2 {
		t.Errorf("expected 2 stored and 2 enqueued, got %d/%d", stored, enqueued)
	}

	// A second pass over the same issue adds nothing
	stored, enqueued, err = st.SavePagesAndEnqueue(pages, 2)
	if err != nil {
		t.Fatalf("SavePagesAndEnqueue failed: %v", err)
	}
	if stored != 0 || enqueued != 0 {
		t.Errorf("expected 0/0 on re-run, got %d/%d", stored, enqueued)
	}

	items, err := st.GetDownloadQueue(models.QueueStatusQueued, 0)
	if err != nil {
		t.Fatalf("GetDownloadQueue failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 queued items, got %d", len(items))
	}
	for _, item := range items {
		if item.Priority != 2 {
			t.Errorf("expected priority 2, got %d", item.Priority)
		}
	}
}

func TestGetPagesFilter(t *testing.T) {
	st := newTestStore(t)

	pages := []models.Page{
		{ItemID: "a", LCCN: "sn1", Date: "1906-01-01", Edition: 1, Sequence: 1, FacetID: 7},
		{ItemID: "b", LCCN: "sn1", Date: "1906-01-02", Edition: 1, Sequence: 1, FacetID: 7},
		{ItemID: "c", LCCN: "sn2", Date: "1917-01-01", Edition: 1, Sequence: 1},
	}
	if _, err := st.SavePages(pages); err != nil {
		t.Fatalf("SavePages failed: %v", err)
	}
	if err := st.MarkPageDownloaded("a"); err != nil {
		t.Fatalf("MarkPageDownloaded failed: %v", err)
	}

	notDownloaded := false
	remaining, err := st.GetPages(PageFilter{FacetID: 7, Downloaded: &notDownloaded})
	if err != nil {
		t.Fatalf("GetPages failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ItemID != "b" {
		t.Errorf("expected only page b, got %+v", remaining)
	}

	byLCCN, err := st.GetPages(PageFilter{LCCN: "sn2"})
	if err != nil {
		t.Fatalf("GetPages failed: %v", err)
	}
	if len(byLCCN) != 1 || byLCCN[0].ItemID != "c" {
		t.Errorf("expected only page c, got %+v", byLCCN)
	}
}

func TestCreateFacetIdempotent(t *testing.T) {
	st := newTestStore(t)

	id1, err := st.CreateFacet(models.FacetKindDateRange, "1906/1906", "", 1000)
	if err != nil {
		t.Fatalf("CreateFacet failed: %v", err)
	}
	id2, err := st.CreateFacet(models.FacetKindDateRange, "1906/1906", "", 1000)
	if err != nil {
		t.Fatalf("CreateFacet failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same facet id, got %d and %d", id1, id2)
	}

	facet, err := st.GetFacet(id1)
	if err != nil {
		t.Fatalf("GetFacet failed: %v", err)
	}
	if facet.Status != models.FacetPending {
		t.Errorf("expected pending status, got %q", facet.Status)
	}
	if facet.CurrentPage != 1 || facet.ResumeFromPage != 1 {
		t.Errorf("expected cursors at 1, got %d/%d", facet.CurrentPage, facet.ResumeFromPage)
	}
}

func TestUpdateFacetDiscoveryPartial(t *testing.T) {
	st := newTestStore(t)

	id, err := st.CreateFacet(models.FacetKindState, "California", "", 0)
	if err != nil {
		t.Fatalf("CreateFacet failed: %v", err)
	}

	// Advancing the cursor also advances the resume point
	err = st.UpdateFacetDiscovery(id, FacetDiscoveryUpdate{
		Status:          strPtr(models.FacetDiscovering),
		CurrentPage:     intPtr(5),
		ItemsDiscovered: intPtr(400),
		BatchSize:       intPtr(100),
	})
	if err != nil {
		t.Fatalf("UpdateFacetDiscovery failed: %v", err)
	}

	facet, err := st.GetFacet(id)
	if err != nil {
		t.Fatalf("GetFacet failed: %v", err)
	}
	if facet.Status != models.FacetDiscovering {
		t.Errorf("expected discovering status, got %q", facet.Status)
	}
	if facet.CurrentPage != 5 || facet.ResumeFromPage != 5 {
		t.Errorf("expected cursors at 5, got %d/%d", facet.CurrentPage, facet.ResumeFromPage)
	}
	if facet.ItemsDiscovered != 400 {
		t.Errorf("expected 400 items discovered, got %d", facet.ItemsDiscovered)
	}

	// A status-only update leaves the cursors alone
	err = st.UpdateFacetDiscovery(id, FacetDiscoveryUpdate{Status: strPtr(models.FacetCompleted)})
	if err != nil {
		t.Fatalf("UpdateFacetDiscovery failed: %v", err)
	}
	facet, _ = st.GetFacet(id)
	if facet.CurrentPage != 5 || facet.ResumeFromPage != 5 {
		t.Errorf("cursors changed by status-only update: %d/%d", facet.CurrentPage, facet.ResumeFromPage)
	}

	err = st.UpdateFacetDiscovery(id, FacetDiscoveryUpdate{
		Status:       strPtr(models.FacetError),
		ErrorMessage: strPtr("search endpoint returned 500"),
	})
	if err != nil {
		t.Fatalf("UpdateFacetDiscovery failed: %v", err)
	}
	facet, _ = st.GetFacet(id)
	if facet.ErrorMessage != "search endpoint returned 500" {
		t.Errorf("expected error message, got %q", facet.ErrorMessage)
	}
}

func TestGetFacetsFiltered(t *testing.T) {
	st := newTestStore(t)

	dateID, _ := st.CreateFacet(models.FacetKindDateRange, "1906/1906", "", 0)
	st.CreateFacet(models.FacetKindState, "California", "", 0)

	if err := st.UpdateFacetDiscovery(dateID, FacetDiscoveryUpdate{Status: strPtr(models.FacetCompleted)}); err != nil {
		t.Fatalf("UpdateFacetDiscovery failed: %v", err)
	}

	completed, err := st.GetFacets("", models.FacetCompleted)
	if err != nil {
		t.Fatalf("GetFacets failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != dateID {
		t.Errorf("expected only the completed date facet, got %+v", completed)
	}

	states, err := st.GetFacets(models.FacetKindState, "")
	if err != nil {
		t.Fatalf("GetFacets failed: %v", err)
	}
	if len(states) != 1 || states[0].Value != "California" {
		t.Errorf("expected only the state facet, got %+v", states)
	}
}

func TestBatchSessionDeltas(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.CreateBatchSession("batch_discovery_main", 40); err != nil {
		t.Fatalf("CreateBatchSession failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		err := st.UpdateBatchSession("batch_discovery_main", BatchSessionUpdate{
			CurrentIssueIndex:    intPtr(i + 1),
			PagesDiscoveredDelta: 8,
			PagesEnqueuedDelta:   8,
		})
		if err != nil {
			t.Fatalf("UpdateBatchSession failed: %v", err)
		}
	}

	session, err := st.GetBatchSession("batch_discovery_main")
	if err != nil {
		t.Fatalf("GetBatchSession failed: %v", err)
	}
	if session.PagesDiscovered != 16 || session.PagesEnqueued != 16 {
		t.Errorf("expected cumulative counters 16/16, got %d/%d", session.PagesDiscovered, session.PagesEnqueued)
	}
	if session.CurrentIssueIndex != 2 {
		t.Errorf("expected issue index 2, got %d", session.CurrentIssueIndex)
	}

	// CAPTCHA interruption records the exact resume position
	err = st.UpdateBatchSession("batch_discovery_main", BatchSessionUpdate{
		CurrentBatchIndex: intPtr(3),
		CurrentIssueIndex: intPtr(17),
		Status:            strPtr(models.SessionCaptchaBlocked),
	})
	if err != nil {
		t.Fatalf("UpdateBatchSession failed: %v", err)
	}
	session, _ = st.GetBatchSession("batch_discovery_main")
	if session.Status != models.SessionCaptchaBlocked {
		t.Errorf("expected captcha_blocked, got %q", session.Status)
	}
	if session.CurrentBatchIndex != 3 || session.CurrentIssueIndex != 17 {
		t.Errorf("resume position not recorded: %d/%d", session.CurrentBatchIndex, session.CurrentIssueIndex)
	}
}

func TestGetBatchSessionMissing(t *testing.T) {
	st := newTestStore(t)

	session, err := st.GetBatchSession("nope")
	if err != nil {
		t.Fatalf("GetBatchSession failed: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil for missing session, got %+v", session)
	}
}

func TestEnqueueIdempotent(t *testing.T) {
	st := newTestStore(t)

	id1, err := st.Enqueue(models.QueueTypeFacet, "42", 3, 100, 1.5)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	id2, err := st.Enqueue(models.QueueTypeFacet, "42", 1, 0, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same queue id, got %d and %d", id1, id2)
	}

	items, _ := st.GetDownloadQueue("", 0)
	if len(items) != 1 {
		t.Fatalf("expected 1 queue item, got %d", len(items))
	}
	// The original priority wins
	if items[0].Priority != 3 {
		t.Errorf("expected priority 3, got %d", items[0].Priority)
	}
}

func TestQueueOrdering(t *testing.T) {
	st := newTestStore(t)

	st.Enqueue(models.QueueTypePage, "low", 5, 0, 0)
	st.Enqueue(models.QueueTypePage, "urgent", 1, 0, 0)
	st.Enqueue(models.QueueTypePage, "medium", 2, 0, 0)

	items, err := st.GetDownloadQueue(models.QueueStatusQueued, 0)
	if err != nil {
		t.Fatalf("GetDownloadQueue failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	got := []string{items[0].ReferenceID, items[1].ReferenceID, items[2].ReferenceID}
	want := []string{"urgent", "medium", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestUpdateQueueItemTimestamps(t *testing.T) {
	st := newTestStore(t)

	id, err := st.Enqueue(models.QueueTypePage, "p1", 5, 0, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := st.UpdateQueueItem(id, QueueItemUpdate{Status: strPtr(models.QueueStatusActive)}); err != nil {
		t.Fatalf("UpdateQueueItem failed: %v", err)
	}
	item, _ := st.GetQueueItem(id)
	if item.StartedAt == nil {
		t.Error("expected started_at to be stamped on activation")
	}
	if item.CompletedAt != nil {
		t.Error("completed_at stamped too early")
	}

	if err := st.UpdateQueueItem(id, QueueItemUpdate{Status: strPtr(models.QueueStatusCompleted)}); err != nil {
		t.Fatalf("UpdateQueueItem failed: %v", err)
	}
	item, _ = st.GetQueueItem(id)
	if item.CompletedAt == nil {
		t.Error("expected completed_at to be stamped on completion")
	}
	if item.ProgressPercent != 100 {
		t.Errorf("expected progress 100 on completion, got %f", item.ProgressPercent)
	}
}

func TestResumeFailedAndResetStuck(t *testing.T) {
	st := newTestStore(t)

	failed, _ := st.Enqueue(models.QueueTypePage, "failed-item", 5, 0, 0)
	stuck, _ := st.Enqueue(models.QueueTypePage, "stuck-item", 5, 0, 0)

	st.UpdateQueueItem(failed, QueueItemUpdate{
		Status:       strPtr(models.QueueStatusFailed),
		ErrorMessage: strPtr("connection reset"),
	})
	st.UpdateQueueItem(stuck, QueueItemUpdate{
		Status:          strPtr(models.QueueStatusActive),
		ProgressPercent: float64Ptr(40),
	})

	resumed, err := st.ResumeFailed()
	if err != nil {
		t.Fatalf("ResumeFailed failed: %v", err)
	}
	if resumed != 1 {
		t.Errorf("expected 1 resumed item, got %d", resumed)
	}

	reset, err := st.ResetStuck()
	if err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("expected 1 reset item, got %d", reset)
	}

	items, _ := st.GetDownloadQueue(models.QueueStatusQueued, 0)
	if len(items) != 2 {
		t.Fatalf("expected both items queued again, got %d", len(items))
	}
	for _, item := range items {
		if item.ReferenceID == "failed-item" && item.ErrorMessage != "" {
			t.Errorf("expected cleared error, got %q", item.ErrorMessage)
		}
		if item.ReferenceID == "stuck-item" && item.ProgressPercent != 0 {
			t.Errorf("expected progress reset, got %f", item.ProgressPercent)
		}
	}
}

func float64Ptr(f float64) *float64 { return &f }

func TestStats(t *testing.T) {
	st := newTestStore(t)

	st.SavePeriodicals([]models.Periodical{{LCCN: "sn1", Title: "One"}})
	st.SavePages([]models.Page{
		{ItemID: "a", LCCN: "sn1", Date: "1906-01-01", Edition: 1, Sequence: 1},
		{ItemID: "b", LCCN: "sn1", Date: "1906-01-01", Edition: 1, Sequence: 2},
	})
	st.MarkPageDownloaded("a")
	st.CreateFacet(models.FacetKindDateRange, "1906/1906", "", 0)
	st.Enqueue(models.QueueTypePage, "b", 5, 0, 0)

	stats, err := st.StorageStats()
	if err != nil {
		t.Fatalf("StorageStats failed: %v", err)
	}
	if stats.Periodicals != 1 || stats.Pages != 2 || stats.DownloadedPages != 1 || stats.Facets != 1 || stats.QueueDepth != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	queueStats, err := st.QueueStats()
	if err != nil {
		t.Fatalf("QueueStats failed: %v", err)
	}
	if queueStats[models.QueueStatusQueued] != 1 {
		t.Errorf("expected 1 queued, got %+v", queueStats)
	}
}
