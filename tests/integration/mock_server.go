package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"newsagger/pkg/chronicling"
)

// MockArchiveServer simulates the Chronicling America API with realistic
// endpoint shapes. Fixtures are built in memory per test.
type MockArchiveServer struct {
	server        *httptest.Server
	requestCount  int32
	searchCount   int32
	issueCount    int32
	downloadCount int32

	mu           sync.RWMutex
	titles       []chronicling.NewspaperEntry
	details      map[string]*chronicling.NewspaperDetail
	issues       map[string]*chronicling.IssueDetail
	batches      []chronicling.BatchEntry
	batchDetails map[string]*chronicling.BatchDetail
	searchItems  []chronicling.SearchItem
	captchaPaths map[string]int // paths that serve a CAPTCHA page n more times
	errorPaths   map[string]int // paths that serve this HTTP status
}

// NewMockArchiveServer starts an empty mock archive
func NewMockArchiveServer() *MockArchiveServer {
	m := &MockArchiveServer{
		details:      make(map[string]*chronicling.NewspaperDetail),
		issues:       make(map[string]*chronicling.IssueDetail),
		batchDetails: make(map[string]*chronicling.BatchDetail),
		captchaPaths: make(map[string]int),
		errorPaths:   make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.route))
	return m
}

// URL returns the base URL of the mock archive
func (m *MockArchiveServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server
func (m *MockArchiveServer) Close() {
	m.server.Close()
}

func (m *MockArchiveServer) route(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)
	path := r.URL.Path

	if m.consumeCaptcha(path) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "<html><body>Please complete the reCAPTCHA challenge to continue.</body></html>")
		return
	}
	if code := m.consumeError(path); code > 0 {
		w.WriteHeader(code)
		return
	}

	switch {
	case path == "/newspapers.json":
		m.handleNewspapers(w, r)
	case path == "/search/pages/results/":
		atomic.AddInt32(&m.searchCount, 1)
		m.handleSearch(w, r)
	case path == "/batches.json":
		m.writeJSON(w, chronicling.BatchesResponse{Batches: m.batchList()})
	case strings.HasPrefix(path, "/batches/"):
		m.handleBatchDetail(w, r)
	case strings.HasSuffix(path, ".pdf") || strings.HasSuffix(path, ".jp2"):
		atomic.AddInt32(&m.downloadCount, 1)
		m.handleArtifact(w, r)
	case strings.HasPrefix(path, "/lccn/"):
		m.handleLCCN(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockArchiveServer) handleNewspapers(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	titles := m.titles
	m.mu.RUnlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	response := chronicling.NewspapersResponse{
		TotalItems: len(titles),
		TotalPages: 1,
		Page:       page,
	}
	if page == 1 {
		response.Newspapers = titles
	}
	m.writeJSON(w, response)
}

// handleSearch serves the fixture items as one page of results, filtered
// by the date window when date1/date2 are present
func (m *MockArchiveServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	items := m.searchItems
	m.mu.RUnlock()

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page <= 0 {
		page = 1
	}
	rows, _ := strconv.Atoi(query.Get("rows"))
	if rows <= 0 {
		rows = len(items)
	}

	date1 := sortableDate(query.Get("date1"))
	date2 := sortableDate(query.Get("date2"))
	var matched []chronicling.SearchItem
	for _, item := range items {
		compact := strings.ReplaceAll(item.Date, "-", "")
		if date1 != "" && compact < date1 {
			continue
		}
		if date2 != "" && compact > date2 {
			continue
		}
		matched = append(matched, item)
	}

	start := (page - 1) * rows
	end := start + rows
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	m.writeJSON(w, chronicling.SearchResponse{
		TotalItems:   len(matched),
		StartIndex:   start,
		EndIndex:     end,
		ItemsPerPage: rows,
		Items:        matched[start:end],
	})
}

// handleLCCN serves title detail records and issue records, both of which
// live under /lccn/
func (m *MockArchiveServer) handleLCCN(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, ".json")

	m.mu.RLock()
	issue, isIssue := m.issues[path]
	m.mu.RUnlock()
	if isIssue {
		atomic.AddInt32(&m.issueCount, 1)
		m.writeJSON(w, issue)
		return
	}

	lccn := strings.TrimPrefix(path, "/lccn/")
	m.mu.RLock()
	detail, ok := m.details[lccn]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	m.writeJSON(w, detail)
}

func (m *MockArchiveServer) handleBatchDetail(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/batches/"), ".json")
	m.mu.RLock()
	detail, ok := m.batchDetails[name]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	m.writeJSON(w, detail)
}

// handleArtifact serves deterministic content for any pdf or jp2 path
func (m *MockArchiveServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	content := []byte("artifact content for " + r.URL.Path)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Write(content)
}

// sortableDate turns the search endpoint's MM/DD/YYYY dates into YYYYMMDD
// for lexical comparison
func sortableDate(date string) string {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[2] + parts[0] + parts[1]
}

func (m *MockArchiveServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// AddTitle registers a newspaper title with its detail record
func (m *MockArchiveServer) AddTitle(lccn, title, state string, issueDates []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.titles = append(m.titles, chronicling.NewspaperEntry{
		LCCN:  lccn,
		State: state,
		Title: title,
		URL:   m.server.URL + "/lccn/" + lccn + ".json",
	})

	detail := &chronicling.NewspaperDetail{
		LCCN:      lccn,
		Name:      title,
		StartYear: "1900",
		EndYear:   "1922",
		URL:       m.server.URL + "/lccn/" + lccn + ".json",
	}
	for _, date := range issueDates {
		detail.Issues = append(detail.Issues, chronicling.IssueRef{
			URL:        m.issueURL(lccn, date),
			DateIssued: date,
			Title:      title,
		})
	}
	m.details[lccn] = detail
}

// AddIssue registers an issue record with the given number of pages
func (m *MockArchiveServer) AddIssue(lccn, title, date string, pageCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	issueURL := m.issueURL(lccn, date)
	issue := &chronicling.IssueDetail{
		URL:        issueURL,
		DateIssued: date,
		Edition:    1,
		Title:      chronicling.NamedRef{Name: title},
	}
	for seq := 1; seq <= pageCount; seq++ {
		issue.Pages = append(issue.Pages, chronicling.PageRef{
			URL:      fmt.Sprintf("%s/lccn/%s/%s/ed-1/seq-%d.json", m.server.URL, lccn, date, seq),
			Sequence: seq,
		})
	}
	m.issues[fmt.Sprintf("/lccn/%s/%s/ed-1", lccn, date)] = issue
}

// AddBatch registers a digitization batch whose issues must already be
// registered with AddIssue
func (m *MockArchiveServer) AddBatch(name string, issueRefs []chronicling.IssueRef) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, chronicling.BatchEntry{
		Name:      name,
		URL:       m.server.URL + "/batches/" + name + ".json",
		PageCount: len(issueRefs),
		Ingested:  "2020-01-01T00:00:00Z",
	})
	m.batchDetails[name] = &chronicling.BatchDetail{
		Name:     name,
		URL:      m.server.URL + "/batches/" + name + ".json",
		Ingested: "2020-01-01T00:00:00Z",
		Issues:   issueRefs,
	}
}

// AddSearchItem registers a page served by the search endpoint
func (m *MockArchiveServer) AddSearchItem(lccn, title, date string, sequence int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := sequence
	edition := 1
	m.searchItems = append(m.searchItems, chronicling.SearchItem{
		ID:       fmt.Sprintf("/lccn/%s/%s/ed-1/seq-%d/", lccn, date, sequence),
		LCCN:     lccn,
		Title:    title,
		Date:     date,
		Edition:  &edition,
		Sequence: &seq,
		URL:      fmt.Sprintf("%s/lccn/%s/%s/ed-1/seq-%d.json", m.server.URL, lccn, date, sequence),
		OCRText:  "sample ocr text",
	})
}

// IssueRef returns the reference for a registered issue, for batch fixtures
func (m *MockArchiveServer) IssueRef(lccn, title, date string) chronicling.IssueRef {
	return chronicling.IssueRef{
		URL:        m.issueURL(lccn, date),
		DateIssued: date,
		Title:      title,
	}
}

func (m *MockArchiveServer) issueURL(lccn, date string) string {
	return fmt.Sprintf("%s/lccn/%s/%s/ed-1.json", m.server.URL, lccn, date)
}

// ServeCaptcha makes the given path answer with a CAPTCHA page for the
// next n requests
func (m *MockArchiveServer) ServeCaptcha(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captchaPaths[path] = n
}

// ServeError makes the given path answer with the status code once
func (m *MockArchiveServer) ServeError(path string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorPaths[path] = code
}

func (m *MockArchiveServer) consumeCaptcha(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captchaPaths[path] > 0 {
		m.captchaPaths[path]--
		return true
	}
	return false
}

func (m *MockArchiveServer) consumeError(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := m.errorPaths[path]
	delete(m.errorPaths, path)
	return code
}

func (m *MockArchiveServer) batchList() []chronicling.BatchEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batches
}

// RequestCount returns the total number of requests served
func (m *MockArchiveServer) RequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// SearchCount returns the number of search requests served
func (m *MockArchiveServer) SearchCount() int {
	return int(atomic.LoadInt32(&m.searchCount))
}

// IssueCount returns the number of issue detail requests served
func (m *MockArchiveServer) IssueCount() int {
	return int(atomic.LoadInt32(&m.issueCount))
}

// DownloadCount returns the number of artifact downloads served
func (m *MockArchiveServer) DownloadCount() int {
	return int(atomic.LoadInt32(&m.downloadCount))
}
