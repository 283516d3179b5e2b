// Package storage persists queries and the sources they surfaced, and answers
// recent-history lookups.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/graphrag/internal/config"
	"github.com/hyperjump/graphrag/internal/models"
	"go.uber.org/zap"
)

// Mode reports which backend a HistoryStore writes to.
type Mode string

const (
	ModeNeo4j    Mode = "neo4j"
	ModeSQLite   Mode = "sqlite"
	ModeDisabled Mode = "disabled"
)

// DefaultHistoryLimit is used when Recent is called with a non-positive limit.
const DefaultHistoryLimit = 10

// HistoryStore records provenance for queries.
//
// Save merges the query by text and every result with a non-blank URL by URL,
// linking them with a references relation. The upserts are independent, so a
// failure part way leaves the earlier ones in place.
type HistoryStore interface {
	Save(ctx context.Context, queryText string, results []models.SearchResult, sessionID string) error
	Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error)
	Mode() Mode
	Close() error
}

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for query timestamps and source
// fetch times.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

// connectTimeout bounds the startup reachability check.
const connectTimeout = 10 * time.Second

// Open builds the configured store. When the backend cannot be reached the
// failure is logged and a disabled store is returned, so startup never blocks
// on the store.
func Open(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger, opts ...Option) HistoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendNeo4j:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, err := NewNeo4jStore(connectCtx, cfg.Neo4j, opts...)
		if err != nil {
			logger.Warn("neo4j unavailable, history disabled",
				zap.String("uri", cfg.Neo4j.URI), zap.Error(err))
			return NewDisabledStore()
		}
		logger.Info("connected to neo4j", zap.String("uri", cfg.Neo4j.URI), zap.String("database", cfg.Neo4j.Database))
		return store
	case config.BackendSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath, opts...)
		if err != nil {
			logger.Warn("sqlite unavailable, history disabled",
				zap.String("path", cfg.SQLitePath), zap.Error(err))
			return NewDisabledStore()
		}
		logger.Info("opened sqlite history store", zap.String("path", cfg.SQLitePath))
		return store
	default:
		logger.Info("history store disabled")
		return NewDisabledStore()
	}
}
