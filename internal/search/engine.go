// Package search adapts external web-search APIs into normalized results.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/graphrag/internal/config"
	"github.com/hyperjump/graphrag/internal/models"
	"golang.org/x/time/rate"
)

// Provider fetches the full result list for a query from one external API.
type Provider interface {
	Name() models.Provider
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// Pacing spaces out replayed results: the wait after result i is Base + Step*i.
// The zero value replays without waiting.
type Pacing struct {
	Base time.Duration
	Step time.Duration
}

// Delay returns the wait that follows result i.
func (p Pacing) Delay(i int) time.Duration {
	return p.Base + time.Duration(i)*p.Step
}

// DefaultPacing matches the progressive feel of the web client.
var DefaultPacing = Pacing{Base: 100 * time.Millisecond, Step: 50 * time.Millisecond}

// Service selects a provider by tag and runs full or paced searches.
type Service struct {
	providers map[models.Provider]Provider
	pacing    Pacing
	sleep     func(ctx context.Context, d time.Duration) error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPacing sets the replay pacing used by SearchStreaming.
func WithPacing(p Pacing) ServiceOption {
	return func(s *Service) { s.pacing = p }
}

// NewService creates a service over the given providers. A later provider
// with the same name replaces an earlier one.
func NewService(providers []Provider, opts ...ServiceOption) *Service {
	s := &Service{
		providers: make(map[models.Provider]Provider, len(providers)),
		pacing:    DefaultPacing,
		sleep:     sleepCtx,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromConfig builds Tavily and Serper providers sharing one HTTP
// client with the configured timeout.
func NewServiceFromConfig(cfg *config.SearchConfig, opts ...ServiceOption) *Service {
	client := &http.Client{Timeout: cfg.Timeout}
	limiter := func() *rate.Limiter {
		if cfg.RequestsPerMinute <= 0 {
			return nil
		}
		return rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	tavily := NewTavilyProvider(ProviderOptions{
		APIKey:     cfg.Tavily.APIKey,
		BaseURL:    cfg.Tavily.BaseURL,
		MaxResults: cfg.MaxResults,
		Client:     client,
		Limiter:    limiter(),
	})
	serper := NewSerperProvider(ProviderOptions{
		APIKey:     cfg.Serper.APIKey,
		BaseURL:    cfg.Serper.BaseURL,
		MaxResults: cfg.MaxResults,
		Client:     client,
		Limiter:    limiter(),
	})
	return NewService([]Provider{tavily, serper}, opts...)
}

// Search returns every result the provider selected by tag produces.
func (s *Service) Search(ctx context.Context, query string, tag string) ([]models.SearchResult, error) {
	p, err := s.provider(tag)
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, query)
}

// SearchStreaming fetches the full result set and then calls onResult once per
// result in provider order, waiting Pacing.Delay(i) between calls. An error
// from onResult stops the replay and is returned as is.
func (s *Service) SearchStreaming(ctx context.Context, query string, tag string, onResult func(models.SearchResult) error) error {
	results, err := s.Search(ctx, query, tag)
	if err != nil {
		return err
	}
	for i, r := range results {
		if err := onResult(r); err != nil {
			return err
		}
		if i == len(results)-1 {
			break
		}
		if d := s.pacing.Delay(i); d > 0 {
			if err := s.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) provider(tag string) (Provider, error) {
	name := models.ParseProvider(tag)
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("search provider %q is not configured", name)
	}
	return p, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
