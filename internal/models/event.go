package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind tags a StreamEvent.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventSource EventKind = "source"
	EventError  EventKind = "error"
	EventDone   EventKind = "done"
)

// StreamEvent is the only outbound message shape of a streaming session.
// Which fields are meaningful depends on Kind; on the wire only those fields
// are written, next to "event" and "timestamp".
type StreamEvent struct {
	Kind         EventKind
	Message      string
	Title        string
	URL          string
	Snippet      string
	SourceID     string
	TotalResults int
	Timestamp    time.Time
}

// StatusEvent builds a status event.
func StatusEvent(message string) StreamEvent {
	return StreamEvent{Kind: EventStatus, Message: message, Timestamp: time.Now()}
}

// SourceEvent builds a source event for r tagged with the given short id.
func SourceEvent(r SearchResult, sourceID string) StreamEvent {
	return StreamEvent{
		Kind:      EventSource,
		Title:     r.Title,
		URL:       r.URL,
		Snippet:   r.Content,
		SourceID:  sourceID,
		Timestamp: time.Now(),
	}
}

// ErrorEvent builds an error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Kind: EventError, Message: message, Timestamp: time.Now()}
}

// DoneEvent builds the terminal event.
func DoneEvent(total int) StreamEvent {
	return StreamEvent{Kind: EventDone, TotalResults: total, Timestamp: time.Now()}
}

// Terminal reports whether no further events follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

type messageWire struct {
	Event     EventKind `json:"event"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type sourceWire struct {
	Event     EventKind `json:"event"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet"`
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
}

type doneWire struct {
	Event        EventKind `json:"event"`
	TotalResults int       `json:"total_results"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarshalJSON writes the variant-specific flat shape.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventStatus, EventError:
		return json.Marshal(messageWire{Event: e.Kind, Message: e.Message, Timestamp: e.Timestamp})
	case EventSource:
		return json.Marshal(sourceWire{
			Event:     e.Kind,
			Title:     e.Title,
			URL:       e.URL,
			Snippet:   e.Snippet,
			SourceID:  e.SourceID,
			Timestamp: e.Timestamp,
		})
	case EventDone:
		return json.Marshal(doneWire{Event: e.Kind, TotalResults: e.TotalResults, Timestamp: e.Timestamp})
	default:
		return nil, fmt.Errorf("unknown stream event kind %q", e.Kind)
	}
}

// UnmarshalJSON accepts any of the variant shapes.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var wire struct {
		Event        EventKind  `json:"event"`
		Message      string     `json:"message"`
		Title        string     `json:"title"`
		URL          string     `json:"url"`
		Snippet      string     `json:"snippet"`
		SourceID     string     `json:"source_id"`
		TotalResults int        `json:"total_results"`
		Timestamp    *time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Event {
	case EventStatus, EventSource, EventError, EventDone:
	default:
		return fmt.Errorf("unknown stream event kind %q", wire.Event)
	}
	*e = StreamEvent{
		Kind:         wire.Event,
		Message:      wire.Message,
		Title:        wire.Title,
		URL:          wire.URL,
		Snippet:      wire.Snippet,
		SourceID:     wire.SourceID,
		TotalResults: wire.TotalResults,
	}
	if wire.Timestamp != nil {
		e.Timestamp = *wire.Timestamp
	}
	return nil
}
