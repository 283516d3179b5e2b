package search

import (
	"context"
	"net/url"

	"github.com/hyperjump/graphrag/internal/models"
)

// relatedPrefix marks synthesized related-search results.
const relatedPrefix = "Related: "

// SerperProvider calls the Serper Google search API. The API key travels in
// the query string.
type SerperProvider struct {
	opts ProviderOptions
}

// NewSerperProvider creates a Serper client.
func NewSerperProvider(opts ProviderOptions) *SerperProvider {
	return &SerperProvider{opts: opts.withDefaults("https://google.serper.dev")}
}

// Name implements Provider.
func (p *SerperProvider) Name() models.Provider {
	return models.ProviderSerper
}

type serperRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl"`
	HL  string `json:"hl"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	RelatedSearches []struct {
		Query string `json:"query"`
	} `json:"relatedSearches"`
}

// Search implements Provider. Organic results come first, then one result
// without URL per related search.
func (p *SerperProvider) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	body := serperRequest{Q: query, GL: "US", HL: "en", Num: p.opts.MaxResults}
	endpoint := p.opts.BaseURL + "/search?key=" + url.QueryEscape(p.opts.APIKey)

	var apiResponse serperResponse
	if err := postJSON(ctx, p.opts, p.Name(), endpoint, body, &apiResponse); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(apiResponse.Organic)+len(apiResponse.RelatedSearches))
	for _, r := range apiResponse.Organic {
		results = append(results, models.SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Content: r.Snippet,
			Source:  models.ProviderSerper,
		})
	}
	for _, r := range apiResponse.RelatedSearches {
		results = append(results, models.SearchResult{
			Title:   relatedPrefix + r.Query,
			Content: r.Query,
			Source:  models.ProviderSerper,
		})
	}
	return results, nil
}
