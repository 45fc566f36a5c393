package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage writes crawl results to SQLite. It is a sink only: crawl state is
// never read back to resume a run.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed_url TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS links (
		run_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		is_file INTEGER NOT NULL DEFAULT 0,
		discoverable INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, url)
	);

	CREATE TABLE IF NOT EXISTS edges (
		run_id INTEGER NOT NULL,
		from_url TEXT NOT NULL,
		to_url TEXT NOT NULL,
		weight INTEGER DEFAULT 1,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, from_url, to_url)
	);

	CREATE TABLE IF NOT EXISTS visits (
		run_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_links_run ON links(run_id);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(run_id, from_url);
	CREATE INDEX IF NOT EXISTS idx_visits_run ON visits(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new run row and returns its id
func (s *Storage) CreateRun(seedURL string, maxDepth int) (int, error) {
	res, err := s.db.Exec("INSERT INTO runs (seed_url, max_depth) VALUES (?, ?)", seedURL, maxDepth)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve run_id: %w", err)
	}
	return int(id), nil
}

// FinishRun stores the final status of a run
func (s *Storage) FinishRun(runID int, status string) error {
	_, err := s.db.Exec("UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?", status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id, returns nil if not found
func (s *Storage) GetRun(runID int) (*Run, error) {
	var run Run
	err := s.db.QueryRow(`
		SELECT run_id, seed_url, max_depth, started_at, status
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.SeedURL, &run.MaxDepth, &run.StartedAt, &run.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// UpsertLink inserts a discovered link or refreshes its classification
func (s *Storage) UpsertLink(runID int, link Link) error {
	_, err := s.db.Exec(`
		INSERT INTO links (run_id, url, is_file, discoverable)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO UPDATE SET
			is_file = EXCLUDED.is_file,
			discoverable = EXCLUDED.discoverable
	`, runID, link.URL, link.IsFile, link.Discoverable)

	if err != nil {
		return fmt.Errorf("failed to upsert link: %w", err)
	}
	return nil
}

// UpsertEdge inserts a new edge or adds to its weight if it exists
func (s *Storage) UpsertEdge(runID int, edge Edge) error {
	weight := edge.Weight
	if weight < 1 {
		weight = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO edges (run_id, from_url, to_url, weight)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, from_url, to_url) DO UPDATE SET
			weight = weight + EXCLUDED.weight
	`, runID, edge.FromURL, edge.ToURL, weight)

	if err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// RecordVisit stores the outcome of rendering a URL
func (s *Storage) RecordVisit(runID int, visit Visit) error {
	_, err := s.db.Exec(`
		INSERT INTO visits (run_id, url, depth, ok, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO UPDATE SET
			depth = EXCLUDED.depth,
			ok = EXCLUDED.ok,
			error = EXCLUDED.error
	`, runID, visit.URL, visit.Depth, visit.OK, visit.Error)

	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// ListLinks returns the links of a run ordered by URL, optionally only file resources
func (s *Storage) ListLinks(runID int, filesOnly bool) ([]Link, error) {
	query := `
		SELECT url, is_file, discoverable
		FROM links
		WHERE run_id = ?`
	if filesOnly {
		query += " AND is_file = 1"
	}
	query += " ORDER BY url ASC"

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		if err := rows.Scan(&link.URL, &link.IsFile, &link.Discoverable); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// ListEdges returns the edges of a run ordered by source then target
func (s *Storage) ListEdges(runID int) ([]Edge, error) {
	rows, err := s.db.Query(`
		SELECT from_url, to_url, weight
		FROM edges
		WHERE run_id = ?
		ORDER BY from_url ASC, to_url ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.FromURL, &e.ToURL, &e.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

// ListVisits returns the recorded visits of a run ordered by depth then URL
func (s *Storage) ListVisits(runID int) ([]Visit, error) {
	rows, err := s.db.Query(`
		SELECT url, depth, ok, COALESCE(error, '')
		FROM visits
		WHERE run_id = ?
		ORDER BY depth ASC, url ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.URL, &v.Depth, &v.OK, &v.Error); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visits: %w", err)
	}

	return visits, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
