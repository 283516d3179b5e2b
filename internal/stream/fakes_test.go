package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/hyperjump/graphrag/internal/models"
	"github.com/hyperjump/graphrag/internal/storage"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeChannel records written messages as decoded stream events.
type fakeChannel struct {
	mu        sync.Mutex
	inbound   []string
	events    []models.StreamEvent
	failAfter int // writes allowed before every write fails; -1 never fails
	closed    bool
}

func newFakeChannel(inbound ...string) *fakeChannel {
	return &fakeChannel{inbound: inbound, failAfter: -1}
}

func (f *fakeChannel) ReadJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return io.EOF
	}
	msg := f.inbound[0]
	f.inbound = f.inbound[1:]
	return json.Unmarshal([]byte(msg), v)
}

func (f *fakeChannel) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.events) >= f.failAfter {
		return errBrokenPipe
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var e models.StreamEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) Events() []models.StreamEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StreamEvent(nil), f.events...)
}

func (f *fakeChannel) Kinds() []models.EventKind {
	var kinds []models.EventKind
	for _, e := range f.Events() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// fakeSearcher replays a fixed result list.
type fakeSearcher struct {
	results  []models.SearchResult
	err      error
	gotQuery string
	gotTag   string
	during   func(i int) // called after result i is delivered
}

func (s *fakeSearcher) SearchStreaming(_ context.Context, query, tag string, onResult func(models.SearchResult) error) error {
	s.gotQuery, s.gotTag = query, tag
	if s.err != nil {
		return s.err
	}
	for i, r := range s.results {
		if err := onResult(r); err != nil {
			return err
		}
		if s.during != nil {
			s.during(i)
		}
	}
	return nil
}

// recordingStore captures Save calls and can be told to fail.
type recordingStore struct {
	storage.DisabledStore
	mu    sync.Mutex
	saves []savedCall
	err   error
}

type savedCall struct {
	query     string
	results   []models.SearchResult
	sessionID string
}

func (s *recordingStore) Save(_ context.Context, q string, results []models.SearchResult, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedCall{query: q, results: results, sessionID: sessionID})
	return s.err
}

func (s *recordingStore) Saves() []savedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedCall(nil), s.saves...)
}

func results(n int) []models.SearchResult {
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = models.SearchResult{
			Title:   "result",
			URL:     "https://example.com/" + string(rune('a'+i)),
			Content: "snippet",
			Source:  models.ProviderTavily,
		}
	}
	return out
}
