package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hyperjump/graphrag/internal/config"
	"github.com/hyperjump/graphrag/internal/models"
)

const (
	cypherMergeQuery = `MERGE (q:Query {text: $query_text})
SET q.timestamp = $timestamp`
	cypherMergeQueryWithSession = `MERGE (q:Query {text: $query_text})
SET q.timestamp = $timestamp,
    q.session_id = $session_id`
	cypherMergeSource = `MERGE (s:Source {url: $url})
SET s.title = $title,
    s.snippet = $snippet,
    s.source = $source,
    s.fetch_time = $fetch_time`
	cypherLinkSource = `MATCH (q:Query {text: $query_text})
MATCH (s:Source {url: $url})
MERGE (q)-[:REFERENCES]->(s)`
	cypherRecent = `MATCH (q:Query)
RETURN q.text AS query, q.timestamp AS timestamp
ORDER BY q.timestamp DESC
LIMIT $limit`
)

type statement struct {
	op     string
	cypher string
	params map[string]any
}

// saveStatements returns the upserts for one Save call, in execution order.
func saveStatements(queryText string, results []models.SearchResult, sessionID string, now time.Time) []statement {
	q := statement{
		op:     "save query",
		cypher: cypherMergeQuery,
		params: map[string]any{"query_text": queryText, "timestamp": now},
	}
	if sessionID != "" {
		q.cypher = cypherMergeQueryWithSession
		q.params["session_id"] = sessionID
	}
	stmts := []statement{q}
	for _, r := range results {
		if !r.HasURL() {
			continue
		}
		stmts = append(stmts,
			statement{
				op:     "save source",
				cypher: cypherMergeSource,
				params: map[string]any{
					"url":        r.URL,
					"title":      r.Title,
					"snippet":    r.Content,
					"source":     string(r.Source),
					"fetch_time": now,
				},
			},
			statement{
				op:     "link source",
				cypher: cypherLinkSource,
				params: map[string]any{"query_text": queryText, "url": r.URL},
			},
		)
	}
	return stmts
}

// Neo4jStore implements HistoryStore on a Neo4j graph:
// (:Query {text})-[:REFERENCES]->(:Source {url}).
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	opts     options
}

// NewNeo4jStore connects to Neo4j and verifies connectivity before returning.
func NewNeo4jStore(ctx context.Context, cfg config.Neo4jConfig, opts ...Option) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database, opts: buildOptions(opts)}, nil
}

// Mode implements HistoryStore.
func (s *Neo4jStore) Mode() Mode { return ModeNeo4j }

// Save implements HistoryStore. Each statement runs in its own auto-commit
// transaction.
func (s *Neo4jStore) Save(ctx context.Context, queryText string, results []models.SearchResult, sessionID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	for _, stmt := range saveStatements(queryText, results, sessionID, s.opts.now()) {
		result, err := session.Run(ctx, stmt.cypher, stmt.params)
		if err != nil {
			return &PersistenceError{Op: stmt.op, Err: err}
		}
		if _, err := result.Consume(ctx); err != nil {
			return &PersistenceError{Op: stmt.op, Err: err}
		}
	}
	return nil
}

// Recent implements HistoryStore.
func (s *Neo4jStore) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, cypherRecent,
		map[string]any{"limit": int64(normalizeLimit(limit))},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}

	entries := make([]models.HistoryEntry, 0, len(res.Records))
	for _, rec := range res.Records {
		text, _, err := neo4j.GetRecordValue[string](rec, "query")
		if err != nil {
			return nil, &PersistenceError{Op: "recent", Err: err}
		}
		ts, _, err := neo4j.GetRecordValue[time.Time](rec, "timestamp")
		if err != nil {
			return nil, &PersistenceError{Op: "recent", Err: err}
		}
		entries = append(entries, models.HistoryEntry{Query: text, Timestamp: ts})
	}
	return entries, nil
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}
