package models

import "strings"

// Provider identifies an external web-search API.
type Provider string

const (
	// ProviderTavily is the default provider.
	ProviderTavily Provider = "tavily"
	// ProviderSerper is the Google-backed Serper API.
	ProviderSerper Provider = "serper"
)

// ParseProvider maps a case-insensitive tag to a Provider. Unknown and empty
// tags select ProviderTavily.
func ParseProvider(tag string) Provider {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case string(ProviderSerper):
		return ProviderSerper
	default:
		return ProviderTavily
	}
}

// SearchResult is one normalized hit returned by a provider.
// URL is empty for synthesized results (summary answers, related searches).
type SearchResult struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Content string   `json:"content"`
	Source  Provider `json:"source"`
}

// HasURL reports whether the result carries a usable URL.
func (r SearchResult) HasURL() bool {
	return strings.TrimSpace(r.URL) != ""
}
