package storage

import (
	"context"

	"github.com/hyperjump/graphrag/internal/models"
)

// DisabledStore accepts saves and forgets them.
type DisabledStore struct{}

// NewDisabledStore returns a store that persists nothing.
func NewDisabledStore() *DisabledStore {
	return &DisabledStore{}
}

func (DisabledStore) Save(context.Context, string, []models.SearchResult, string) error {
	return nil
}

func (DisabledStore) Recent(context.Context, int) ([]models.HistoryEntry, error) {
	return []models.HistoryEntry{}, nil
}

func (DisabledStore) Mode() Mode { return ModeDisabled }

func (DisabledStore) Close() error { return nil }
