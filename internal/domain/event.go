package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventMessageReceived  EventType = "message.received"
	EventMessageSent      EventType = "message.sent"
	EventSessionCreated   EventType = "session.created"
	EventSessionDeleted   EventType = "session.deleted"
	EventAgentError       EventType = "agent.error"
	EventAgentDelegated   EventType = "agent.delegated"
	EventAgentRouted      EventType = "agent.routed"
	EventDocumentIngested EventType = "document.ingested"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AgentRoutedPayload is the payload of EventAgentRouted.
type AgentRoutedPayload struct {
	Agent      string  `json:"agent"`
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
	RequestID  string  `json:"request_id,omitempty"`
}

// AgentDelegatedPayload is the payload of EventAgentDelegated.
type AgentDelegatedPayload struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Depth int    `json:"depth"`
}

// AgentErrorPayload is the payload of EventAgentError.
type AgentErrorPayload struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// NewEvent marshals payload into an Event stamped with the current time.
func NewEvent(typ EventType, sessionID string, payload any) Event {
	ev := Event{Type: typ, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}
