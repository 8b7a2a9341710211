package models

import "time"

// Periodical is a newspaper title tracked across its publication lifetime.
// Created on first discovery from the titles listing and mutated as issue
// discovery proceeds; never deleted.
type Periodical struct {
	LCCN              string
	Title             string
	State             string
	City              string
	StartYear         *int
	EndYear           *int
	Frequency         string
	Language          string
	Subject           string
	URL               string
	TotalIssues       int
	IssuesDiscovered  int
	DiscoveryComplete bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Issue is one dated publication instance of a periodical. Immutable once
// discovered.
type Issue struct {
	ID           int64
	LCCN         string
	Date         string
	EditionCount int
	PageCount    int
}

// Page is the atomic content unit, one scanned page within an issue.
type Page struct {
	ItemID     string
	LCCN       string
	Title      string
	Date       string
	Edition    int
	Sequence   int
	PageURL    string
	PDFURL     string
	JP2URL     string
	OCRText    string
	WordCount  int
	FacetID    int64
	Downloaded bool
}

// Facet statuses. Transitions are monotonic except for explicit recovery
// back to discovering.
const (
	FacetPending        = "pending"
	FacetDiscovering    = "discovering"
	FacetCompleted      = "completed"
	FacetCaptchaBlocked = "captcha_blocked"
	FacetError          = "error"
)

// Facet kinds understood by the search parameter builder.
const (
	FacetKindDateRange = "date_range"
	FacetKindState     = "state"
	FacetKindCombined  = "combined"
)

// Facet is a unit of discovery work partitioning the archive by date range,
// state, or a combination. The cursors make a facet resumable mid-crawl.
type Facet struct {
	ID              int64
	Type            string
	Value           string
	Query           string
	EstimatedItems  int
	ActualItems     int
	ItemsDiscovered int
	Status          string
	ErrorMessage    string
	CurrentPage     int
	ResumeFromPage  int
	LastBatchSize   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Batch session statuses.
const (
	SessionActive         = "active"
	SessionCaptchaBlocked = "captcha_blocked"
	SessionCompleted      = "completed"
	SessionError          = "error"
)

// BatchSession tracks a full archive batch walk. The batch and issue indices
// record the exact resume position; the page counters are cumulative and
// only ever grow.
type BatchSession struct {
	ID                int64
	Name              string
	TotalBatches      int
	CurrentBatchIndex int
	CurrentBatchName  string
	CurrentIssueIndex int
	IssuesInBatch     int
	PagesDiscovered   int
	PagesEnqueued     int
	Status            string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Download queue statuses.
const (
	QueueStatusQueued    = "queued"
	QueueStatusActive    = "active"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
	QueueStatusPaused    = "paused"
)

// Download queue reference kinds.
const (
	QueueTypePage       = "page"
	QueueTypeFacet      = "facet"
	QueueTypePeriodical = "periodical"
)

// QueueItem is a unit of retrieval work. Lower priority is more urgent.
// Items are retained after completion for audit.
type QueueItem struct {
	ID              int64
	QueueType       string
	ReferenceID     string
	Priority        int
	EstimatedSizeMB float64
	EstimatedHours  float64
	Status          string
	ProgressPercent float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}
