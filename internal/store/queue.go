package store

import (
	"database/sql"
	"strings"

	errs "newsagger/pkg/errors"
	"newsagger/pkg/models"
)

// Enqueue adds an item to the download queue. Enqueueing the same
// (type, reference) pair twice is a no-op returning the existing row id.
func (s *Store) Enqueue(queueType, referenceID string, priority int, estimatedSizeMB, estimatedHours float64) (int64, error) {
	_, err := s.db.Exec(`
		INSERT INTO download_queue (queue_type, reference_id, priority, estimated_size_mb, estimated_time_hours)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(queue_type, reference_id) DO NOTHING
	`, queueType, referenceID, priority, estimatedSizeMB, estimatedHours)
	if err != nil {
		return 0, errs.NewStorage("failed to enqueue item", err)
	}

	var id int64
	err = s.db.QueryRow(`
		SELECT id FROM download_queue WHERE queue_type = ? AND reference_id = ?
	`, queueType, referenceID).Scan(&id)
	if err != nil {
		return 0, errs.NewStorage("failed to read queue item id", err)
	}
	return id, nil
}

const queueSelect = `
	SELECT id, queue_type, reference_id, priority, estimated_size_mb, estimated_time_hours,
		status, progress_percent, error_message, started_at, completed_at, created_at, updated_at
	FROM download_queue
`

// GetDownloadQueue retrieves queue items ordered by priority then age.
// An empty status means all items; limit 0 means no limit.
func (s *Store) GetDownloadQueue(status string, limit int) ([]models.QueueItem, error) {
	query := queueSelect
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY priority ASC, created_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.NewStorage("failed to query download queue", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, errs.NewStorage("failed to scan queue item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetQueueItem retrieves a queue item by id, returning nil when it does
// not exist
func (s *Store) GetQueueItem(id int64) (*models.QueueItem, error) {
	row := s.db.QueryRow(queueSelect+" WHERE id = ?", id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewStorage("failed to scan queue item", err)
	}
	return &item, nil
}

func scanQueueItem(row rowScanner) (models.QueueItem, error) {
	var item models.QueueItem
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&item.ID, &item.QueueType, &item.ReferenceID, &item.Priority,
		&item.EstimatedSizeMB, &item.EstimatedHours, &item.Status, &item.ProgressPercent,
		&errorMessage, &startedAt, &completedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return item, err
	}
	item.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		item.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	return item, nil
}

// QueueItemUpdate is a partial update of a queue item. Nil fields are
// left untouched.
type QueueItemUpdate struct {
	Status          *string
	ProgressPercent *float64
	ErrorMessage    *string
}

// UpdateQueueItem applies a partial update. Activation stamps
// started_at; completion stamps completed_at and forces progress to 100.
func (s *Store) UpdateQueueItem(id int64, update QueueItemUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []interface{}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *update.Status)
		switch *update.Status {
		case models.QueueStatusActive:
			sets = append(sets, "started_at = CURRENT_TIMESTAMP")
		case models.QueueStatusCompleted:
			sets = append(sets, "completed_at = CURRENT_TIMESTAMP", "progress_percent = 100")
		}
	}
	if update.ProgressPercent != nil {
		sets = append(sets, "progress_percent = ?")
		args = append(args, *update.ProgressPercent)
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}

	args = append(args, id)
	_, err := s.db.Exec("UPDATE download_queue SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errs.NewStorage("failed to update queue item", err)
	}
	return nil
}

// ResumeFailed moves failed items back to queued, clearing their error,
// and returns the number of items resumed
func (s *Store) ResumeFailed() (int64, error) {
	result, err := s.db.Exec(`
		UPDATE download_queue
		SET status = ?, error_message = '', updated_at = CURRENT_TIMESTAMP
		WHERE status = ?
	`, models.QueueStatusQueued, models.QueueStatusFailed)
	if err != nil {
		return 0, errs.NewStorage("failed to resume failed items", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// ResetStuck moves items stranded in active back to queued with progress
// cleared, and returns the number of items reset. Items get stuck when a
// previous run was killed mid-download.
func (s *Store) ResetStuck() (int64, error) {
	result, err := s.db.Exec(`
		UPDATE download_queue
		SET status = ?, progress_percent = 0, started_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status = ?
	`, models.QueueStatusQueued, models.QueueStatusActive)
	if err != nil {
		return 0, errs.NewStorage("failed to reset stuck items", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// QueueStats returns item counts per queue status
func (s *Store) QueueStats() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM download_queue GROUP BY status")
	if err != nil {
		return nil, errs.NewStorage("failed to query queue stats", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errs.NewStorage("failed to scan queue stats", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Stats summarizes stored crawl state
type Stats struct {
	Periodicals     int
	Issues          int
	Pages           int
	DownloadedPages int
	Facets          int
	QueueDepth      int
}

// StorageStats returns counts across all tables
func (s *Store) StorageStats() (Stats, error) {
	var stats Stats
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM periodicals", &stats.Periodicals},
		{"SELECT COUNT(*) FROM periodical_issues", &stats.Issues},
		{"SELECT COUNT(*) FROM pages", &stats.Pages},
		{"SELECT COUNT(*) FROM pages WHERE downloaded = 1", &stats.DownloadedPages},
		{"SELECT COUNT(*) FROM search_facets", &stats.Facets},
		{"SELECT COUNT(*) FROM download_queue WHERE status = 'queued'", &stats.QueueDepth},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			return stats, errs.NewStorage("failed to collect storage stats", err)
		}
	}
	return stats, nil
}
