// Package events implements fire-and-forget sinks for orchestrator events:
// a webhook poster and a websocket observer hub. Neither is ever awaited on
// the turn sequencer's critical path.
package events

import (
	"log"
	"time"
)

// Event is the envelope pushed to observers.
type Event struct {
	SessionID string    `json:"sessionId"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Broadcaster matches the orchestrator's EventSink surface.
type Broadcaster interface {
	Broadcast(sessionID, eventType string, payload any)
}

// Fanout forwards each event to every sink.
type Fanout []Broadcaster

func (f Fanout) Broadcast(sessionID, eventType string, payload any) {
	for _, b := range f {
		b.Broadcast(sessionID, eventType, payload)
	}
}

// LogSink writes events to the standard logger. Useful as a default and in
// tests.
type LogSink struct {
	Prefix string
}

func (s LogSink) Broadcast(sessionID, eventType string, payload any) {
	log.Printf("%s event: session=%s type=%s", s.Prefix, sessionID, eventType)
}
