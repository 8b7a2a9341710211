package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	errs "newsagger/pkg/errors"
	"newsagger/pkg/logger"
)

// Store handles persistence of crawl state: periodicals, pages, facets,
// batch sessions and the download queue
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens the SQLite database at dbPath, creating parent directories
// and migrating the schema as needed
func Open(dbPath string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.NewStorage("failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errs.NewStorage("failed to open database", err)
	}
	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errs.NewStorage("failed to migrate database", err)
	}

	log.DebugWithFields("database initialized", map[string]interface{}{
		"path": dbPath,
	})
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS periodicals (
		lccn TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		state TEXT,
		city TEXT,
		start_year INTEGER,
		end_year INTEGER,
		frequency TEXT,
		language TEXT,
		subject TEXT,
		url TEXT,
		total_issues INTEGER DEFAULT 0,
		issues_discovered INTEGER DEFAULT 0,
		discovery_complete INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS periodical_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lccn TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		edition_count INTEGER DEFAULT 0,
		pages_count INTEGER DEFAULT 0,
		issue_url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (lccn) REFERENCES periodicals (lccn),
		UNIQUE(lccn, issue_date)
	);

	CREATE TABLE IF NOT EXISTS pages (
		item_id TEXT PRIMARY KEY,
		lccn TEXT,
		title TEXT,
		date TEXT,
		edition INTEGER DEFAULT 1,
		sequence INTEGER DEFAULT 1,
		page_url TEXT,
		pdf_url TEXT,
		jp2_url TEXT,
		ocr_text TEXT,
		word_count INTEGER DEFAULT 0,
		facet_id INTEGER DEFAULT 0,
		downloaded INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_lccn ON pages(lccn);
	CREATE INDEX IF NOT EXISTS idx_pages_date ON pages(date);
	CREATE INDEX IF NOT EXISTS idx_pages_facet ON pages(facet_id);
	CREATE INDEX IF NOT EXISTS idx_pages_downloaded ON pages(downloaded);
	CREATE INDEX IF NOT EXISTS idx_pages_issue ON pages(lccn, date, edition);

	CREATE TABLE IF NOT EXISTS search_facets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		facet_type TEXT NOT NULL,
		facet_value TEXT NOT NULL,
		facet_query TEXT DEFAULT '',
		estimated_items INTEGER DEFAULT 0,
		actual_items INTEGER DEFAULT 0,
		items_discovered INTEGER DEFAULT 0,
		status TEXT DEFAULT 'pending',
		error_message TEXT DEFAULT '',
		current_page INTEGER DEFAULT 1,
		resume_from_page INTEGER DEFAULT 1,
		last_batch_size INTEGER DEFAULT 100,
		discovery_started DATETIME,
		discovery_completed DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(facet_type, facet_value, facet_query)
	);

	CREATE INDEX IF NOT EXISTS idx_facets_status ON search_facets(status);
	CREATE INDEX IF NOT EXISTS idx_facets_type ON search_facets(facet_type);

	CREATE TABLE IF NOT EXISTS batch_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_name TEXT UNIQUE NOT NULL,
		total_batches INTEGER DEFAULT 0,
		current_batch_index INTEGER DEFAULT 0,
		current_batch_name TEXT DEFAULT '',
		current_issue_index INTEGER DEFAULT 0,
		issues_in_batch INTEGER DEFAULT 0,
		pages_discovered INTEGER DEFAULT 0,
		pages_enqueued INTEGER DEFAULT 0,
		status TEXT DEFAULT 'active',
		error_message TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS download_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		queue_type TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		priority INTEGER DEFAULT 5,
		estimated_size_mb REAL DEFAULT 0,
		estimated_time_hours REAL DEFAULT 0,
		status TEXT DEFAULT 'queued',
		progress_percent REAL DEFAULT 0,
		error_message TEXT DEFAULT '',
		started_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(queue_type, reference_id)
	);

	CREATE INDEX IF NOT EXISTS idx_queue_status ON download_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_priority ON download_queue(priority);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
