package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/graphrag/internal/models"
	"github.com/hyperjump/graphrag/internal/storage"
)

// State is a step of the per-session state machine.
type State string

const (
	StateAwaitingQuery State = "awaiting_query"
	StateSearching     State = "searching"
	StatePersisting    State = "persisting"
	StateDone          State = "done"
	StateError         State = "error"
)

// Event messages sent by the controller.
const (
	msgSearching     = "Searching sources..."
	msgSearchFailed  = "Search failed: "
	msgChannelFailed = "WebSocket error: "
)

// DefaultMaxResults caps how many results one session accumulates.
const DefaultMaxResults = 50

// persistTimeout bounds the store write; it runs detached from the session
// context so a closing client does not abort it.
const persistTimeout = 30 * time.Second

var errCapReached = errors.New("result cap reached")

// Searcher replays a provider search one result at a time.
type Searcher interface {
	SearchStreaming(ctx context.Context, query string, tag string, onResult func(models.SearchResult) error) error
}

// Controller runs streaming sessions: it reads the query, streams each
// result to the client, stores the outcome and reports completion.
type Controller struct {
	searcher    Searcher
	registry    *Registry
	store       storage.HistoryStore
	logger      *zap.Logger
	maxResults  int
	newSourceID func() string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxResults caps the per-session accumulator. Non-positive values keep
// the default.
func WithMaxResults(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithSourceIDs overrides the short id generator for source events.
func WithSourceIDs(gen func() string) ControllerOption {
	return func(c *Controller) { c.newSourceID = gen }
}

// NewController creates a controller. A nil store behaves as a disabled store.
func NewController(searcher Searcher, registry *Registry, store storage.HistoryStore, opts ...ControllerOption) *Controller {
	if store == nil {
		store = storage.NewDisabledStore()
	}
	c := &Controller{
		searcher:    searcher,
		registry:    registry,
		store:       store,
		logger:      zap.NewNop(),
		maxResults:  DefaultMaxResults,
		newSourceID: shortID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// shortID returns the first 8 characters of a random UUID.
func shortID() string {
	return uuid.NewString()[:8]
}

// Serve registers ch for sessionID, reads the initial query payload and runs
// the session. The channel is unregistered when Serve returns; closing the
// underlying connection is left to the caller.
func (c *Controller) Serve(ctx context.Context, sessionID string, ch Channel) State {
	c.registry.Connect(sessionID, ch)
	defer c.registry.DisconnectChannel(sessionID, ch)

	log := c.logger.With(zap.String("session_id", sessionID))
	log.Debug("session connected")

	var req models.QueryRequest
	if err := ch.ReadJSON(&req); err != nil {
		return c.fail(log, sessionID, ch, fmt.Errorf("read query: %w", err))
	}
	return c.run(ctx, log, sessionID, ch, req)
}

// Run executes one session for a channel already registered under sessionID.
func (c *Controller) Run(ctx context.Context, sessionID string, req models.QueryRequest) State {
	ch, _ := c.registry.Lookup(sessionID)
	return c.run(ctx, c.logger.With(zap.String("session_id", sessionID)), sessionID, ch, req)
}

func (c *Controller) run(ctx context.Context, log *zap.Logger, sessionID string, ch Channel, req models.QueryRequest) (state State) {
	state = StateAwaitingQuery
	defer func() {
		if p := recover(); p != nil {
			state = c.fail(log, sessionID, ch, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := req.Validate(); err != nil {
		if sendErr := c.registry.SendIfCurrent(sessionID, ch, models.ErrorEvent(err.Error())); sendErr != nil {
			return c.fail(log, sessionID, ch, sendErr)
		}
		log.Debug("rejected empty query")
		return StateDone
	}

	state = StateSearching
	log.Debug("session searching", zap.String("query", req.Query), zap.String("provider", string(req.Provider())))
	if err := c.registry.SendIfCurrent(sessionID, ch, models.StatusEvent(msgSearching)); err != nil {
		return c.fail(log, sessionID, ch, err)
	}

	var results []models.SearchResult
	dropped := false
	err := c.searcher.SearchStreaming(ctx, req.Query, req.SearchType, func(r models.SearchResult) error {
		if len(results) >= c.maxResults {
			dropped = true
			return errCapReached
		}
		if err := c.registry.SendIfCurrent(sessionID, ch, models.SourceEvent(r, c.newSourceID())); err != nil {
			return err
		}
		results = append(results, r)
		return nil
	})
	if err != nil && !errors.Is(err, errCapReached) {
		var chErr *ChannelError
		if errors.As(err, &chErr) {
			return c.fail(log, sessionID, ch, err)
		}
		log.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		if sendErr := c.registry.SendIfCurrent(sessionID, ch, models.ErrorEvent(msgSearchFailed+err.Error())); sendErr != nil {
			return c.fail(log, sessionID, ch, sendErr)
		}
		return StateDone
	}
	if dropped {
		log.Warn("result cap reached, remaining results dropped", zap.Int("max_results", c.maxResults))
	}

	state = StatePersisting
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	if err := c.store.Save(persistCtx, req.Query, results, sessionID); err != nil {
		log.Error("failed to persist query history", zap.String("query", req.Query), zap.Error(err))
	}
	cancel()

	state = StateDone
	if err := c.registry.SendIfCurrent(sessionID, ch, models.DoneEvent(len(results))); err != nil {
		return c.fail(log, sessionID, ch, err)
	}
	log.Debug("session done", zap.Int("total_results", len(results)))
	return StateDone
}

// fail makes one best-effort attempt to tell the client, then tears the
// session down.
func (c *Controller) fail(log *zap.Logger, sessionID string, ch Channel, err error) State {
	log.Error("session error", zap.Error(err))
	if ch != nil {
		_ = c.registry.SendTo(ch, models.ErrorEvent(msgChannelFailed+err.Error()))
		c.registry.DisconnectChannel(sessionID, ch)
	} else {
		c.registry.Disconnect(sessionID)
	}
	return StateError
}
