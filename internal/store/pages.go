package store

import (
	"database/sql"

	errs "newsagger/pkg/errors"
	"newsagger/pkg/models"
)

// SavePages inserts page records in one transaction, returning the count
// of new rows. Pages already present are left untouched so re-discovery
// never clobbers download state.
func (s *Store) SavePages(pages []models.Page) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errs.NewStorage("failed to begin transaction", err)
	}
	defer tx.Rollback()

	count, err := insertPages(tx, pages)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorage("failed to commit pages", err)
	}
	return count, nil
}

// SavePagesAndEnqueue stores pages and enqueues the new ones for download
// in a single transaction. Atomicity matters here: a crash between store
// and enqueue would strand discovered pages outside the queue.
func (s *Store) SavePagesAndEnqueue(pages []models.Page, priority int) (stored, enqueued int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, errs.NewStorage("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stored, err = insertPages(tx, pages)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO download_queue (queue_type, reference_id, priority)
		VALUES (?, ?, ?)
		ON CONFLICT(queue_type, reference_id) DO NOTHING
	`)
	if err != nil {
		return 0, 0, errs.NewStorage("failed to prepare enqueue", err)
	}
	defer stmt.Close()

	for _, page := range pages {
		result, err := stmt.Exec(models.QueueTypePage, page.ItemID, priority)
		if err != nil {
			return 0, 0, errs.NewStorage("failed to enqueue page", err)
		}
		rows, _ := result.RowsAffected()
		if rows > 0 {
			enqueued++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, errs.NewStorage("failed to commit pages and queue items", err)
	}
	return stored, enqueued, nil
}

func insertPages(tx *sql.Tx, pages []models.Page) (int, error) {
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO pages (item_id, lccn, title, date, edition, sequence, page_url, pdf_url, jp2_url, ocr_text, word_count, facet_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, errs.NewStorage("failed to prepare page insert", err)
	}
	defer stmt.Close()

	newCount := 0
	for _, page := range pages {
		result, err := stmt.Exec(page.ItemID, page.LCCN, page.Title, page.Date, page.Edition,
			page.Sequence, page.PageURL, page.PDFURL, page.JP2URL, page.OCRText, page.WordCount, page.FacetID)
		if err != nil {
			return 0, errs.NewStorage("failed to save page", err)
		}
		rows, _ := result.RowsAffected()
		if rows > 0 {
			newCount++
		}
	}
	return newCount, nil
}

// GetPage retrieves a single page by item id, returning nil when it does
// not exist
func (s *Store) GetPage(itemID string) (*models.Page, error) {
	row := s.db.QueryRow(pageSelect+" WHERE item_id = ?", itemID)
	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStorage("failed to scan page", err)
	}
	return &page, nil
}

// PageFilter narrows GetPages. Zero values mean no constraint.
type PageFilter struct {
	LCCN       string
	FacetID    int64
	Downloaded *bool
	Limit      int
}

const pageSelect = `
	SELECT item_id, lccn, title, date, edition, sequence, page_url, pdf_url, jp2_url, ocr_text, word_count, facet_id, downloaded
	FROM pages
`

// GetPages retrieves pages matching the filter, ordered by date and
// sequence
func (s *Store) GetPages(filter PageFilter) ([]models.Page, error) {
	query := pageSelect + " WHERE 1=1"
	var args []interface{}

	if filter.LCCN != "" {
		query += " AND lccn = ?"
		args = append(args, filter.LCCN)
	}
	if filter.FacetID != 0 {
		query += " AND facet_id = ?"
		args = append(args, filter.FacetID)
	}
	if filter.Downloaded != nil {
		query += " AND downloaded = ?"
		args = append(args, *filter.Downloaded)
	}
	query += " ORDER BY date, sequence"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.NewStorage("failed to query pages", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, errs.NewStorage("failed to scan page", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func scanPage(row rowScanner) (models.Page, error) {
	var page models.Page
	var lccn, title, date, pageURL, pdfURL, jp2URL, ocrText sql.NullString
	err := row.Scan(&page.ItemID, &lccn, &title, &date, &page.Edition, &page.Sequence,
		&pageURL, &pdfURL, &jp2URL, &ocrText, &page.WordCount, &page.FacetID, &page.Downloaded)
	if err != nil {
		return page, err
	}
	page.LCCN = lccn.String
	page.Title = title.String
	page.Date = date.String
	page.PageURL = pageURL.String
	page.PDFURL = pdfURL.String
	page.JP2URL = jp2URL.String
	page.OCRText = ocrText.String
	return page, nil
}

// MarkPageDownloaded flags a page as downloaded
func (s *Store) MarkPageDownloaded(itemID string) error {
	_, err := s.db.Exec("UPDATE pages SET downloaded = 1 WHERE item_id = ?", itemID)
	if err != nil {
		return errs.NewStorage("failed to mark page downloaded", err)
	}
	return nil
}
