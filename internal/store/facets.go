package store

import (
	"database/sql"
	"strings"

	errs "newsagger/pkg/errors"
	"newsagger/pkg/models"
)

// CreateFacet creates a search facet, returning the existing row's id
// when the same (type, value, query) triple is already present
func (s *Store) CreateFacet(facetType, value, query string, estimatedItems int) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO search_facets (facet_type, facet_value, facet_query, estimated_items)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(facet_type, facet_value, facet_query) DO NOTHING
	`, facetType, value, query, estimatedItems)
	if err != nil {
		return 0, errs.NewStorage("failed to create facet", err)
	}

	var id int64
	err = s.db.QueryRow(`
		SELECT id FROM search_facets WHERE facet_type = ? AND facet_value = ? AND facet_query = ?
	`, facetType, value, query).Scan(&id)
	if err != nil {
		return 0, errs.NewStorage("failed to read facet id", err)
	}
	return id, nil
}

const facetSelect = `
	SELECT id, facet_type, facet_value, facet_query, estimated_items, actual_items, items_discovered,
		status, error_message, current_page, resume_from_page, last_batch_size, created_at, updated_at
	FROM search_facets
`

// GetFacet retrieves a facet by id, returning nil when it does not exist
func (s *Store) GetFacet(id int64) (*models.Facet, error) {
	row := s.db.QueryRow(facetSelect+" WHERE id = ?", id)
	facet, err := scanFacet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStorage("failed to scan facet", err)
	}
	return &facet, nil
}

// GetFacets retrieves facets filtered by type and status; empty strings
// mean no constraint
func (s *Store) GetFacets(facetType, status string) ([]models.Facet, error) {
	query := facetSelect + " WHERE 1=1"
	var args []interface{}
	if facetType != "" {
		query += " AND facet_type = ?"
		args = append(args, facetType)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.NewStorage("failed to query facets", err)
	}
	defer rows.Close()

	var facets []models.Facet
	for rows.Next() {
		facet, err := scanFacet(rows)
		if err != nil {
			return nil, errs.NewStorage("failed to scan facet", err)
		}
		facets = append(facets, facet)
	}
	return facets, rows.Err()
}

func scanFacet(row rowScanner) (models.Facet, error) {
	var facet models.Facet
	var query, errorMessage sql.NullString
	err := row.Scan(&facet.ID, &facet.Type, &facet.Value, &query, &facet.EstimatedItems,
		&facet.ActualItems, &facet.ItemsDiscovered, &facet.Status, &errorMessage,
		&facet.CurrentPage, &facet.ResumeFromPage, &facet.LastBatchSize,
		&facet.CreatedAt, &facet.UpdatedAt)
	if err != nil {
		return facet, err
	}
	facet.Query = query.String
	facet.ErrorMessage = errorMessage.String
	return facet, nil
}

// FacetDiscoveryUpdate is a partial update of a facet's discovery state.
// Nil fields are left untouched.
type FacetDiscoveryUpdate struct {
	ActualItems     *int
	ItemsDiscovered *int
	Status          *string
	ErrorMessage    *string
	CurrentPage     *int
	BatchSize       *int
}

// UpdateFacetDiscovery applies a partial update. Setting CurrentPage also
// advances resume_from_page so an interrupted crawl restarts from the
// last persisted cursor. Status transitions stamp the discovery
// timestamps.
func (s *Store) UpdateFacetDiscovery(id int64, update FacetDiscoveryUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []interface{}

	if update.ActualItems != nil {
		sets = append(sets, "actual_items = ?")
		args = append(args, *update.ActualItems)
	}
	if update.ItemsDiscovered != nil {
		sets = append(sets, "items_discovered = ?")
		args = append(args, *update.ItemsDiscovered)
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
		if update.ErrorMessage == nil {
			switch *update.Status {
			case models.FacetDiscovering:
				sets = append(sets, "discovery_started = CURRENT_TIMESTAMP")
			case models.FacetCompleted:
				sets = append(sets, "discovery_completed = CURRENT_TIMESTAMP")
			}
		}
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.CurrentPage != nil {
		sets = append(sets, "current_page = ?", "resume_from_page = ?")
		args = append(args, *update.CurrentPage, *update.CurrentPage)
	}
	if update.BatchSize != nil {
		sets = append(sets, "last_batch_size = ?")
		args = append(args, *update.BatchSize)
	}

	args = append(args, id)
	_, err := s.db.Exec("UPDATE search_facets SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errs.NewStorage("failed to update facet discovery", err)
	}
	return nil
}

// CreateBatchSession creates a batch discovery session
func (s *Store) CreateBatchSession(name string, totalBatches int) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO batch_sessions (session_name, total_batches) VALUES (?, ?)
	`, name, totalBatches)
	if err != nil {
		return 0, errs.NewStorage("failed to create batch session", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errs.NewStorage("failed to read batch session id", err)
	}
	return id, nil
}

// GetBatchSession retrieves a session by name, returning nil when it
// does not exist
func (s *Store) GetBatchSession(name string) (*models.BatchSession, error) {
	var session models.BatchSession
	err := s.db.QueryRow(`
		SELECT id, session_name, total_batches, current_batch_index, current_batch_name,
			current_issue_index, issues_in_batch, pages_discovered, pages_enqueued,
			status, error_message, created_at, updated_at
		FROM batch_sessions WHERE session_name = ?
	`, name).Scan(&session.ID, &session.Name, &session.TotalBatches, &session.CurrentBatchIndex,
		&session.CurrentBatchName, &session.CurrentIssueIndex, &session.IssuesInBatch,
		&session.PagesDiscovered, &session.PagesEnqueued, &session.Status, &session.ErrorMessage,
		&session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStorage("failed to scan batch session", err)
	}
	return &session, nil
}

// BatchSessionUpdate is a partial update of a batch session. Nil fields
// are left untouched; the page counter deltas are additive.
type BatchSessionUpdate struct {
	TotalBatches         *int
	CurrentBatchIndex    *int
	CurrentBatchName     *string
	CurrentIssueIndex    *int
	IssuesInBatch        *int
	PagesDiscoveredDelta int
	PagesEnqueuedDelta   int
	Status               *string
	ErrorMessage         *string
}

// UpdateBatchSession applies a partial update to a session by name
func (s *Store) UpdateBatchSession(name string, update BatchSessionUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []interface{}

	if update.TotalBatches != nil {
		sets = append(sets, "total_batches = ?")
		args = append(args, *update.TotalBatches)
	}
	if update.CurrentBatchIndex != nil {
		sets = append(sets, "current_batch_index = ?")
		args = append(args, *update.CurrentBatchIndex)
	}
	if update.CurrentBatchName != nil {
		sets = append(sets, "current_batch_name = ?")
		args = append(args, *update.CurrentBatchName)
	}
	if update.CurrentIssueIndex != nil {
		sets = append(sets, "current_issue_index = ?")
		args = append(args, *update.CurrentIssueIndex)
	}
	if update.IssuesInBatch != nil {
		sets = append(sets, "issues_in_batch = ?")
		args = append(args, *update.IssuesInBatch)
	}
	if update.PagesDiscoveredDelta != 0 {
		sets = append(sets, "pages_discovered = pages_discovered + ?")
		args = append(args, update.PagesDiscoveredDelta)
	}
	if update.PagesEnqueuedDelta != 0 {
		sets = append(sets, "pages_enqueued = pages_enqueued + ?")
		args = append(args, update.PagesEnqueuedDelta)
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}

	args = append(args, name)
	_, err := s.db.Exec("UPDATE batch_sessions SET "+strings.Join(sets, ", ")+" WHERE session_name = ?", args...)
	if err != nil {
		return errs.NewStorage("failed to update batch session", err)
	}
	return nil
}
