package models

import "time"

// HistoryEntry is one row of the recent-queries listing.
type HistoryEntry struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}
