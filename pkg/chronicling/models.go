package chronicling

// NewspapersResponse is the paginated response from the titles listing
type NewspapersResponse struct {
	Newspapers []NewspaperEntry `json:"newspapers"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
	Page       int              `json:"page"`
}

// NewspaperEntry is a single title in the listing response
type NewspaperEntry struct {
	LCCN  string `json:"lccn"`
	State string `json:"state"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NewspaperDetail is the detailed record for a single title, including
// its issue listing
type NewspaperDetail struct {
	LCCN               string     `json:"lccn"`
	Name               string     `json:"name"`
	PlaceOfPublication string     `json:"place_of_publication"`
	Publisher          string     `json:"publisher"`
	StartYear          string     `json:"start_year"`
	EndYear            string     `json:"end_year"`
	Frequency          string     `json:"frequency"`
	Place              []string   `json:"place"`
	Subject            []string   `json:"subject"`
	Language           []string   `json:"language"`
	Issues             []IssueRef `json:"issues"`
	URL                string     `json:"url"`
}

// IssueRef is a reference to an issue within a title or batch record
type IssueRef struct {
	URL        string `json:"url"`
	DateIssued string `json:"date_issued"`
	Title      string `json:"title"`
}

// IssueDetail is the full record for a single issue, including its pages
type IssueDetail struct {
	URL        string    `json:"url"`
	DateIssued string    `json:"date_issued"`
	Number     string    `json:"number"`
	Edition    int       `json:"edition"`
	Batch      NamedRef  `json:"batch"`
	Title      NamedRef  `json:"title"`
	Pages      []PageRef `json:"pages"`
}

// NamedRef is a name/url pair used by several response shapes
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PageRef is a reference to a page within an issue record
type PageRef struct {
	URL      string `json:"url"`
	Sequence int    `json:"sequence"`
}

// SearchResponse is the response from the page search endpoint
type SearchResponse struct {
	TotalItems   int          `json:"totalItems"`
	EndIndex     int          `json:"endIndex"`
	StartIndex   int          `json:"startIndex"`
	ItemsPerPage int          `json:"itemsPerPage"`
	Items        []SearchItem `json:"items"`
}

// SearchItem is a single page in the search response. Fields are
// frequently missing or inconsistent between collections, so downstream
// processing treats all of them as optional.
type SearchItem struct {
	ID        string   `json:"id"`
	LCCN      string   `json:"lccn"`
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	Edition   *int     `json:"edition"`
	Sequence  *int     `json:"sequence"`
	State     []string `json:"state"`
	URL       string   `json:"url"`
	OCRText   string   `json:"ocr_eng"`
	PageLabel string   `json:"page"`
}

// BatchesResponse is the paginated response from the batches listing
type BatchesResponse struct {
	Batches []BatchEntry `json:"batches"`
	Next    string       `json:"next"`
}

// BatchEntry is a single digitization batch in the listing
type BatchEntry struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	PageCount int    `json:"page_count"`
	Ingested  string `json:"ingested"`
}

// BatchDetail is the full record for a digitization batch, including
// the issues it contains
type BatchDetail struct {
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	PageCount int        `json:"page_count"`
	Ingested  string     `json:"ingested"`
	LCCNs     []string   `json:"lccns"`
	Issues    []IssueRef `json:"issues"`
}
