// Package stream runs streaming query sessions over persistent client
// connections.
package stream

import (
	"fmt"
	"sync"
)

// Channel is one bidirectional client connection carrying JSON messages.
type Channel interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// ChannelError reports a failed write to a client connection.
type ChannelError struct {
	SessionID string
	Err       error
}

func (e *ChannelError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("channel write failed: %v", e.Err)
	}
	return fmt.Sprintf("channel write failed for session %s: %v", e.SessionID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Registry maps session ids to their channel. It is shared by all sessions;
// the map is guarded, writes to distinct channels proceed independently.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Connect registers ch under sessionID, replacing any prior channel.
func (r *Registry) Connect(sessionID string, ch Channel) {
	r.mu.Lock()
	r.channels[sessionID] = ch
	r.mu.Unlock()
}

// Disconnect removes the channel for sessionID. Removing an absent id is a no-op.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	delete(r.channels, sessionID)
	r.mu.Unlock()
}

// DisconnectChannel removes sessionID only while it still maps to ch, so a
// finished session cannot evict a newer connection that reused its id.
func (r *Registry) DisconnectChannel(sessionID string, ch Channel) {
	r.mu.Lock()
	if cur, ok := r.channels[sessionID]; ok && cur == ch {
		delete(r.channels, sessionID)
	}
	r.mu.Unlock()
}

// Has reports whether sessionID has a registered channel.
func (r *Registry) Has(sessionID string) bool {
	r.mu.RLock()
	_, ok := r.channels[sessionID]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Send writes msg to the channel of sessionID. It does nothing when no
// channel is registered.
func (r *Registry) Send(sessionID string, msg interface{}) error {
	r.mu.RLock()
	ch, ok := r.channels[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := ch.WriteJSON(msg); err != nil {
		return &ChannelError{SessionID: sessionID, Err: err}
	}
	return nil
}

// SendIfCurrent writes msg to ch only while sessionID still maps to ch. Once
// the session is disconnected or its id is taken over by another channel the
// send is a no-op.
func (r *Registry) SendIfCurrent(sessionID string, ch Channel, msg interface{}) error {
	r.mu.RLock()
	current, ok := r.channels[sessionID]
	r.mu.RUnlock()
	if !ok || current != ch {
		return nil
	}
	if err := ch.WriteJSON(msg); err != nil {
		return &ChannelError{SessionID: sessionID, Err: err}
	}
	return nil
}

// Lookup returns the channel registered under sessionID.
func (r *Registry) Lookup(sessionID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[sessionID]
	return ch, ok
}

// SendTo writes msg directly to ch, bypassing the lookup.
func (r *Registry) SendTo(ch Channel, msg interface{}) error {
	if err := ch.WriteJSON(msg); err != nil {
		return &ChannelError{Err: err}
	}
	return nil
}

// Broadcast writes msg to every registered channel and removes those whose
// write fails. It returns the number of channels that received msg.
func (r *Registry) Broadcast(msg interface{}) int {
	r.mu.RLock()
	snapshot := make(map[string]Channel, len(r.channels))
	for id, ch := range r.channels {
		snapshot[id] = ch
	}
	r.mu.RUnlock()

	delivered := 0
	for id, ch := range snapshot {
		if err := ch.WriteJSON(msg); err != nil {
			r.DisconnectChannel(id, ch)
			continue
		}
		delivered++
	}
	return delivered
}
