package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/graphrag/internal/models"
)

// SQLiteStore implements HistoryStore on a local SQLite database, modelling
// the graph as query, source and reference tables.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS queries (
		text TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		session_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_queries_timestamp ON queries(timestamp);

	CREATE TABLE IF NOT EXISTS sources (
		url TEXT PRIMARY KEY,
		title TEXT,
		snippet TEXT,
		source TEXT,
		fetch_time INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS query_references (
		query_text TEXT NOT NULL,
		source_url TEXT NOT NULL,
		PRIMARY KEY (query_text, source_url),
		FOREIGN KEY (query_text) REFERENCES queries(text) ON DELETE CASCADE,
		FOREIGN KEY (source_url) REFERENCES sources(url) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Mode implements HistoryStore.
func (s *SQLiteStore) Mode() Mode { return ModeSQLite }

// Save implements HistoryStore.
func (s *SQLiteStore) Save(ctx context.Context, queryText string, results []models.SearchResult, sessionID string) error {
	now := s.opts.now()
	session := sql.NullString{String: sessionID, Valid: sessionID != ""}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (text, timestamp, session_id) VALUES (?, ?, ?)
		 ON CONFLICT(text) DO UPDATE SET
		   timestamp = excluded.timestamp,
		   session_id = COALESCE(excluded.session_id, queries.session_id)`,
		queryText, now.UnixNano(), session,
	)
	if err != nil {
		return &PersistenceError{Op: "save query", Err: err}
	}

	for _, r := range results {
		if !r.HasURL() {
			continue
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sources (url, title, snippet, source, fetch_time) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(url) DO UPDATE SET
			   title = excluded.title,
			   snippet = excluded.snippet,
			   source = excluded.source,
			   fetch_time = excluded.fetch_time`,
			r.URL, r.Title, r.Content, string(r.Source), now.UnixNano(),
		)
		if err != nil {
			return &PersistenceError{Op: "save source", Err: err}
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO query_references (query_text, source_url) VALUES (?, ?)`,
			queryText, r.URL,
		)
		if err != nil {
			return &PersistenceError{Op: "link source", Err: err}
		}
	}
	return nil
}

// Recent implements HistoryStore.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, timestamp FROM queries ORDER BY timestamp DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		var ts int64
		if err := rows.Scan(&e.Query, &ts); err != nil {
			return nil, &PersistenceError{Op: "recent", Err: err}
		}
		e.Timestamp = fromUnixNano(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
