package processor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"newsagger/pkg/chronicling"
	"newsagger/pkg/logger"
	"newsagger/pkg/models"
)

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// ParseYear extracts a four-digit year from a free-form value. Records
// carry years as "1906", "1906-19uu", "Began in 1906" and similar;
// anything without a four-digit run yields nil.
func ParseYear(value string) *int {
	if value == "" {
		return nil
	}
	match := yearPattern.FindStringSubmatch(value)
	if match == nil {
		return nil
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &year
}

// FormatDate normalizes archive dates from YYYYMMDD to YYYY-MM-DD.
// Dates already normalized, or in any other shape, pass through.
func FormatDate(date string) string {
	if len(date) == 8 && isDigits(date) {
		return fmt.Sprintf("%s-%s-%s", date[:4], date[4:6], date[6:8])
	}
	return date
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Processor maps raw archive responses into storage models. It keeps a
// seen-set for cross-response page deduplication.
type Processor struct {
	seen   map[string]struct{}
	logger logger.Logger
}

// New creates a response processor
func New(log logger.Logger) *Processor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Processor{
		seen:   make(map[string]struct{}),
		logger: log,
	}
}

// ResetDeduplication clears the seen-set
func (p *Processor) ResetDeduplication() {
	p.seen = make(map[string]struct{})
}

// Newspapers maps a titles listing response into periodical records.
// Entries missing an LCCN are dropped with a warning.
func (p *Processor) Newspapers(response *chronicling.NewspapersResponse) []models.Periodical {
	if response == nil {
		return nil
	}

	periodicals := make([]models.Periodical, 0, len(response.Newspapers))
	for _, entry := range response.Newspapers {
		if entry.LCCN == "" {
			p.logger.WarnWithFields("skipping newspaper entry without LCCN", map[string]interface{}{
				"title": entry.Title,
			})
			continue
		}
		periodicals = append(periodicals, models.Periodical{
			LCCN:  entry.LCCN,
			Title: entry.Title,
			State: entry.State,
			URL:   entry.URL,
		})
	}
	return periodicals
}

// MergeDetail fills a periodical with fields from its detail record
func (p *Processor) MergeDetail(periodical *models.Periodical, detail *chronicling.NewspaperDetail) {
	if periodical == nil || detail == nil {
		return
	}
	periodical.StartYear = ParseYear(detail.StartYear)
	periodical.EndYear = ParseYear(detail.EndYear)
	periodical.Frequency = detail.Frequency
	periodical.Language = strings.Join(detail.Language, ",")
	periodical.Subject = strings.Join(detail.Subject, ",")
	periodical.TotalIssues = len(detail.Issues)
	if periodical.City == "" {
		periodical.City = detail.PlaceOfPublication
	}
}

// SearchResults maps a search response into page records. When
// deduplicate is set, pages whose item id was already seen by this
// processor are dropped.
func (p *Processor) SearchResults(response *chronicling.SearchResponse, deduplicate bool) []models.Page {
	if response == nil {
		return nil
	}

	pages := make([]models.Page, 0, len(response.Items))
	for _, item := range response.Items {
		page := p.pageFromSearchItem(item)
		if page.ItemID == "" {
			p.logger.WarnWithFields("skipping search item without identity", map[string]interface{}{
				"lccn": item.LCCN,
			})
			continue
		}

		if deduplicate {
			if _, ok := p.seen[page.ItemID]; ok {
				continue
			}
			p.seen[page.ItemID] = struct{}{}
		}

		pages = append(pages, page)
	}
	return pages
}

// pageFromSearchItem maps one search item defensively. The archive's
// search results omit fields unpredictably, so identity falls back from
// the id field to the URL's last path segment to lccn_date_seq.
func (p *Processor) pageFromSearchItem(item chronicling.SearchItem) models.Page {
	itemID := item.ID
	if itemID == "" && item.URL != "" {
		parts := strings.Split(strings.Trim(item.URL, "/"), "/")
		if len(parts) >= 2 {
			itemID = parts[len(parts)-1]
			if itemID == "" {
				itemID = parts[len(parts)-2]
			}
		}
	}
	if itemID == "" && item.LCCN != "" {
		date := item.Date
		if date == "" {
			date = "unknown"
		}
		sequence := 1
		if item.Sequence != nil {
			sequence = *item.Sequence
		}
		itemID = fmt.Sprintf("%s_%s_%d", item.LCCN, date, sequence)
	}

	edition := extractPathNumber(itemID, "ed-", item.Edition)
	sequence := extractPathNumber(itemID, "seq-", item.Sequence)

	pageURL := item.URL
	if pageURL == "" && itemID != "" {
		if strings.HasPrefix(itemID, "/") {
			pageURL = "https://chroniclingamerica.loc.gov" + itemID
		} else {
			pageURL = "https://chroniclingamerica.loc.gov/" + itemID
		}
	}

	return models.Page{
		ItemID:   itemID,
		LCCN:     item.LCCN,
		Title:    item.Title,
		Date:     FormatDate(item.Date),
		Edition:  edition,
		Sequence: sequence,
		PageURL:  pageURL,
		PDFURL:   deriveArtifactURL(pageURL, ".pdf"),
		JP2URL:   deriveArtifactURL(pageURL, ".jp2"),
		OCRText:  item.OCRText,
	}
}

// extractPathNumber returns the explicit value when the response carried
// one, otherwise parses a prefixed path part like ed-1 or seq-12 out of
// the item id, defaulting to 1.
func extractPathNumber(itemID, prefix string, explicit *int) int {
	if explicit != nil {
		return *explicit
	}
	for _, part := range strings.Split(strings.Trim(itemID, "/"), "/") {
		if !strings.HasPrefix(part, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(part, prefix)); err == nil {
			return n
		}
	}
	return 1
}

// deriveArtifactURL turns a page URL into the URL of a sibling artifact
// with the given extension
func deriveArtifactURL(pageURL, ext string) string {
	if pageURL == "" {
		return ""
	}
	if strings.HasSuffix(pageURL, ".json") {
		return strings.TrimSuffix(pageURL, ".json") + ext
	}
	if !strings.HasSuffix(pageURL, "/") {
		return pageURL + ext
	}
	return ""
}

// PageFromIssue maps a page reference inside an issue record into a page
// model without an extra metadata request per page
func (p *Processor) PageFromIssue(ref chronicling.PageRef, issue *chronicling.IssueDetail) *models.Page {
	if issue == nil || ref.URL == "" {
		return nil
	}

	lccn, date, edition := ParseIssueURL(ref.URL)
	if lccn == "" {
		lccn, date, edition = ParseIssueURL(issue.URL)
	}
	if date == "" {
		date = issue.DateIssued
	}
	if issue.Edition > 0 && edition == 1 {
		edition = issue.Edition
	}

	sequence := ref.Sequence
	if sequence <= 0 {
		sequence = extractPathNumber(ref.URL, "seq-", nil)
	}

	itemID := fmt.Sprintf("%s_%s_%d", lccn, date, sequence)
	if lccn == "" {
		p.logger.WarnWithFields("skipping issue page without LCCN", map[string]interface{}{
			"page_url": ref.URL,
		})
		return nil
	}

	return &models.Page{
		ItemID:   itemID,
		LCCN:     lccn,
		Title:    issue.Title.Name,
		Date:     FormatDate(date),
		Edition:  edition,
		Sequence: sequence,
		PageURL:  ref.URL,
		PDFURL:   deriveArtifactURL(ref.URL, ".pdf"),
		JP2URL:   deriveArtifactURL(ref.URL, ".jp2"),
	}
}

// ParseIssueURL extracts lccn, date and edition from an archive issue or
// page URL like .../lccn/sn85066387/1906-04-18/ed-1/seq-3.json. Missing
// parts come back as zero values with edition defaulting to 1.
func ParseIssueURL(rawURL string) (lccn, date string, edition int) {
	edition = 1
	trimmed := strings.TrimSuffix(strings.Trim(rawURL, "/"), ".json")
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		if part != "lccn" {
			continue
		}
		if i+1 < len(parts) {
			lccn = parts[i+1]
		}
		if i+2 < len(parts) {
			date = parts[i+2]
		}
		if i+3 < len(parts) && strings.HasPrefix(parts[i+3], "ed-") {
			if n, err := strconv.Atoi(strings.TrimPrefix(parts[i+3], "ed-")); err == nil {
				edition = n
			}
		}
		return lccn, date, edition
	}
	return lccn, date, edition
}
