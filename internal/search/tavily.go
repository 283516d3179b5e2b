package search

import (
	"context"
	"time"

	"github.com/hyperjump/graphrag/internal/models"
)

const defaultTimeout = 30 * time.Second

// summaryTitle is the title of the synthesized answer result.
const summaryTitle = "Summary Answer"

// TavilyProvider calls the Tavily search API. The API key travels in the body.
type TavilyProvider struct {
	opts ProviderOptions
}

// NewTavilyProvider creates a Tavily client.
func NewTavilyProvider(opts ProviderOptions) *TavilyProvider {
	return &TavilyProvider{opts: opts.withDefaults("https://api.tavily.com")}
}

// Name implements Provider.
func (p *TavilyProvider) Name() models.Provider {
	return models.ProviderTavily
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	IncludeImages bool   `json:"include_images"`
	IncludeVideo  bool   `json:"include_video"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements Provider. A non-empty answer is prepended as a result
// without URL.
func (p *TavilyProvider) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	body := tavilyRequest{
		APIKey:        p.opts.APIKey,
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    p.opts.MaxResults,
	}
	var apiResponse tavilyResponse
	if err := postJSON(ctx, p.opts, p.Name(), p.opts.BaseURL+"/search", body, &apiResponse); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(apiResponse.Results)+1)
	if apiResponse.Answer != "" {
		results = append(results, models.SearchResult{
			Title:   summaryTitle,
			Content: apiResponse.Answer,
			Source:  models.ProviderTavily,
		})
	}
	for _, r := range apiResponse.Results {
		results = append(results, models.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Source:  models.ProviderTavily,
		})
	}
	return results, nil
}
