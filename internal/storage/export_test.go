package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperjump/graphrag/internal/models"
)

// Row-level accessors used only by tests to inspect what Save wrote.

type queryRecord struct {
	Text      string
	Timestamp time.Time
	SessionID string
}

type sourceRecord struct {
	URL       string
	Title     string
	Snippet   string
	Source    models.Provider
	FetchTime time.Time
}

// GetQuery returns the stored record for queryText.
func (s *SQLiteStore) GetQuery(ctx context.Context, queryText string) (*queryRecord, error) {
	var rec queryRecord
	var ts int64
	var session sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT text, timestamp, session_id FROM queries WHERE text = ?`, queryText,
	).Scan(&rec.Text, &ts, &session)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("query not found: %s", queryText)
	}
	if err != nil {
		return nil, err
	}
	rec.Timestamp = fromUnixNano(ts)
	rec.SessionID = session.String
	return &rec, nil
}

// SourcesFor returns the sources referenced by queryText, ordered by URL.
func (s *SQLiteStore) SourcesFor(ctx context.Context, queryText string) ([]sourceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.url, s.title, s.snippet, s.source, s.fetch_time
		 FROM sources s JOIN query_references r ON r.source_url = s.url
		 WHERE r.query_text = ? ORDER BY s.url`, queryText,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sourceRecord
	for rows.Next() {
		var rec sourceRecord
		var source string
		var ts int64
		if err := rows.Scan(&rec.URL, &rec.Title, &rec.Snippet, &source, &ts); err != nil {
			return nil, err
		}
		rec.Source = models.Provider(source)
		rec.FetchTime = fromUnixNano(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountQueries returns the number of query records.
func (s *SQLiteStore) CountQueries(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queries`).Scan(&n)
	return n, err
}

// CountSources returns the number of source records.
func (s *SQLiteStore) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n)
	return n, err
}
