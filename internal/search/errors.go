package search

import (
	"fmt"

	"github.com/hyperjump/graphrag/internal/models"
)

// UpstreamError is returned when a provider answers with a non-success status
// or a body that cannot be decoded.
type UpstreamError struct {
	Provider models.Provider
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.Status, e.Body)
}

// TransportError wraps network and timeout failures talking to a provider.
type TransportError struct {
	Provider models.Provider
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
