// Package models defines core data structures for queries, search results, and stream events.
package models

import (
	"strings"
	"time"
)

// ValidationError reports a user-correctable problem with a request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrEmptyQuery is returned by Validate when no query text was supplied.
var ErrEmptyQuery = &ValidationError{Message: "Query text is required"}

// QueryRequest is the inbound payload for both the request/response endpoint
// and the first message of a streaming session.
type QueryRequest struct {
	Query      string `json:"query"`
	SearchType string `json:"search_type,omitempty"`
}

// Validate rejects a query that is empty or only whitespace. The text itself
// is left as sent, since history records are keyed on it.
func (q *QueryRequest) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// Provider returns the provider selected by SearchType.
func (q *QueryRequest) Provider() Provider {
	return ParseProvider(q.SearchType)
}

// QueryResponse is the response for the request/response query endpoint.
type QueryResponse struct {
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	Timestamp time.Time      `json:"timestamp"`
}
