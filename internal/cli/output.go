// Package cli renders GraphRAG API responses for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/graphrag/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLen = 200

// ParseOutputFormat maps a --output flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteQueryResults writes a query response to w in the given format.
func WriteQueryResults(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for i, r := range resp.Results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, r.Source, r.Title, r.URL)
		}
		return nil
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(resp.Results), resp.Query)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] %s (%s)\n", i+1, r.Title, r.Source)
		if r.HasURL() {
			fmt.Fprintf(w, "URL: %s\n", r.URL)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(r.Content, snippetLen))
	}
	return nil
}

// WriteHistory writes recent queries, newest first.
func WriteHistory(w io.Writer, entries []models.HistoryEntry, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"history": entries})
	}
	if len(entries) == 0 && format == OutputText {
		fmt.Fprintln(w, "No queries recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s\n", e.Timestamp.Local().Format(time.DateTime), e.Query)
	}
	return nil
}

// WriteEvent writes one stream event as a single line.
func WriteEvent(w io.Writer, e models.StreamEvent) error {
	var err error
	switch e.Kind {
	case models.EventStatus:
		_, err = fmt.Fprintf(w, "* %s\n", e.Message)
	case models.EventSource:
		_, err = fmt.Fprintf(w, "[%s] %s %s\n    %s\n", e.SourceID, e.Title, e.URL, Truncate(e.Snippet, snippetLen))
	case models.EventError:
		_, err = fmt.Fprintf(w, "! %s\n", e.Message)
	case models.EventDone:
		_, err = fmt.Fprintf(w, "done: %d results\n", e.TotalResults)
	default:
		_, err = fmt.Fprintf(w, "? %s\n", e.Kind)
	}
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
// If maxLen is 0 or negative, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
