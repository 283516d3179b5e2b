package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperjump/graphrag/internal/models"
	"golang.org/x/time/rate"
)

// ProviderOptions configures a provider client.
type ProviderOptions struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Client     *http.Client
	// Limiter throttles outbound calls when set. Calls wait for a token; they
	// are never retried.
	Limiter *rate.Limiter
}

func (o ProviderOptions) withDefaults(baseURL string) ProviderOptions {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: defaultTimeout}
	}
	return o
}

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 4096

// postJSON sends body as JSON to url and decodes a 200 response into out.
func postJSON(ctx context.Context, opts ProviderOptions, name models.Provider, endpoint string, body, out interface{}) error {
	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			return &TransportError{Provider: name, Err: err}
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "GraphRAG/1.0")

	resp, err := opts.Client.Do(req)
	if err != nil {
		return &TransportError{Provider: name, Err: redactURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Provider: name, Status: resp.StatusCode, Body: string(b)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Provider: name, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &UpstreamError{Provider: name, Status: resp.StatusCode, Body: "invalid response body: " + err.Error()}
	}
	return nil
}

// secretParams are query parameters that carry credentials.
var secretParams = []string{"key", "api_key"}

// redactURLError rewrites the URL inside a *url.Error so credentials passed
// as query parameters never reach logs or clients.
func redactURLError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	return &url.Error{Op: uerr.Op, URL: redactURL(uerr.URL), Err: uerr.Err}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
