package store

import (
	"database/sql"

	errs "newsagger/pkg/errors"
	"newsagger/pkg/models"
)

// SavePeriodicals upserts periodical records, returning the count of new
// rows. Existing rows keep their discovery counters and only refresh the
// descriptive fields.
func (s *Store) SavePeriodicals(periodicals []models.Periodical) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errs.NewStorage("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO periodicals (lccn, title, state, city, start_year, end_year, frequency, language, subject, url, total_issues)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lccn) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			city = excluded.city,
			start_year = excluded.start_year,
			end_year = excluded.end_year,
			frequency = excluded.frequency,
			language = excluded.language,
			subject = excluded.subject,
			url = excluded.url,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, errs.NewStorage("failed to prepare periodical upsert", err)
	}
	defer stmt.Close()

	newCount := 0
	for _, p := range periodicals {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM periodicals WHERE lccn = ?", p.LCCN).Scan(&exists); err != nil {
			return 0, errs.NewStorage("failed to check existing periodical", err)
		}

		_, err := stmt.Exec(p.LCCN, p.Title, p.State, p.City, nullableYear(p.StartYear), nullableYear(p.EndYear),
			p.Frequency, p.Language, p.Subject, p.URL, p.TotalIssues)
		if err != nil {
			return 0, errs.NewStorage("failed to save periodical", err)
		}
		if exists == 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorage("failed to commit periodicals", err)
	}
	return newCount, nil
}

func nullableYear(year *int) interface{} {
	if year == nil {
		return nil
	}
	return *year
}

// GetPeriodicals retrieves periodicals, optionally filtered by state
func (s *Store) GetPeriodicals(state string) ([]models.Periodical, error) {
	query := `
		SELECT lccn, title, state, city, start_year, end_year, frequency, language, subject, url,
			total_issues, issues_discovered, discovery_complete, created_at, updated_at
		FROM periodicals
	`
	var args []interface{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, state)
	}
	query += " ORDER BY lccn"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.NewStorage("failed to query periodicals", err)
	}
	defer rows.Close()

	var periodicals []models.Periodical
	for rows.Next() {
		p, err := scanPeriodical(rows)
		if err != nil {
			return nil, errs.NewStorage("failed to scan periodical", err)
		}
		periodicals = append(periodicals, p)
	}
	return periodicals, rows.Err()
}

// GetPeriodical retrieves a single periodical by LCCN, returning nil
// when it does not exist
func (s *Store) GetPeriodical(lccn string) (*models.Periodical, error) {
	row := s.db.QueryRow(`
		SELECT lccn, title, state, city, start_year, end_year, frequency, language, subject, url,
			total_issues, issues_discovered, discovery_complete, created_at, updated_at
		FROM periodicals WHERE lccn = ?
	`, lccn)

	p, err := scanPeriodical(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStorage("failed to scan periodical", err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPeriodical(row rowScanner) (models.Periodical, error) {
	var p models.Periodical
	var startYear, endYear sql.NullInt64
	var state, city, frequency, language, subject, url sql.NullString
	err := row.Scan(&p.LCCN, &p.Title, &state, &city, &startYear, &endYear, &frequency,
		&language, &subject, &url, &p.TotalIssues, &p.IssuesDiscovered, &p.DiscoveryComplete,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.State = state.String
	p.City = city.String
	p.Frequency = frequency.String
	p.Language = language.String
	p.Subject = subject.String
	p.URL = url.String
	if startYear.Valid {
		year := int(startYear.Int64)
		p.StartYear = &year
	}
	if endYear.Valid {
		year := int(endYear.Int64)
		p.EndYear = &year
	}
	return p, nil
}

// UpdatePeriodicalDiscovery updates a periodical's issue discovery progress
func (s *Store) UpdatePeriodicalDiscovery(lccn string, totalIssues, issuesDiscovered int, complete bool) error {
	_, err := s.db.Exec(`
		UPDATE periodicals
		SET total_issues = ?, issues_discovered = ?, discovery_complete = ?, updated_at = CURRENT_TIMESTAMP
		WHERE lccn = ?
	`, totalIssues, issuesDiscovered, complete, lccn)
	if err != nil {
		return errs.NewStorage("failed to update periodical discovery", err)
	}
	return nil
}

// SaveIssue upserts an issue record keyed on (lccn, issue_date) and
// returns its row id
func (s *Store) SaveIssue(issue models.Issue, issueURL string) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO periodical_issues (lccn, issue_date, edition_count, pages_count, issue_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(lccn, issue_date) DO UPDATE SET
			edition_count = excluded.edition_count,
			pages_count = excluded.pages_count,
			issue_url = excluded.issue_url,
			updated_at = CURRENT_TIMESTAMP
	`, issue.LCCN, issue.Date, issue.EditionCount, issue.PageCount, issueURL)
	if err != nil {
		return 0, errs.NewStorage("failed to save issue", err)
	}

	var id int64
	err = s.db.QueryRow("SELECT id FROM periodical_issues WHERE lccn = ? AND issue_date = ?",
		issue.LCCN, issue.Date).Scan(&id)
	if err != nil {
		return 0, errs.NewStorage("failed to read issue id", err)
	}
	return id, nil
}

// GetIssues retrieves issues for a periodical ordered by date
func (s *Store) GetIssues(lccn string) ([]models.Issue, error) {
	rows, err := s.db.Query(`
		SELECT id, lccn, issue_date, edition_count, pages_count
		FROM periodical_issues WHERE lccn = ? ORDER BY issue_date
	`, lccn)
	if err != nil {
		return nil, errs.NewStorage("failed to query issues", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		var issue models.Issue
		if err := rows.Scan(&issue.ID, &issue.LCCN, &issue.Date, &issue.EditionCount, &issue.PageCount); err != nil {
			return nil, errs.NewStorage("failed to scan issue", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// CountIssuePages counts stored pages for one issue. Used as the fast
// duplicate check that lets batch discovery skip an issue without an
// API call.
func (s *Store) CountIssuePages(lccn, date string, edition int) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pages WHERE lccn = ? AND date = ? AND edition = ?
	`, lccn, date, edition).Scan(&count)
	if err != nil {
		return 0, errs.NewStorage("failed to count issue pages", err)
	}
	return count, nil
}
