// Package events distributes investigation progress events to subscribers
// with filtering, and defines the sink contract for durable event storage.
package events

import (
	"context"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/finding"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// EventType identifies the category and nature of an event.
type EventType string

// Investigation lifecycle events.
const (
	EventInvestigationStarted   EventType = "investigation.started"
	EventInvestigationPlanned   EventType = "investigation.planned"
	EventInvestigationCompleted EventType = "investigation.completed"
	EventInvestigationFailed    EventType = "investigation.failed"
)

// Node execution events, one stream per plan node.
const (
	EventNodeStarted   EventType = "node.started"
	EventNodeRetried   EventType = "node.retried"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
	EventNodeSkipped   EventType = "node.skipped"
)

// Data and finding events.
const (
	EventSourceFetched    EventType = "source.fetched"
	EventSourceFailed     EventType = "source.failed"
	EventFindingReported  EventType = "finding.reported"
	EventAggregateUpdated EventType = "aggregate.updated"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event is one observability record in an investigation's stream. It is
// JSON-serializable for the sink and the subscribe API.
type Event struct {
	Type            EventType `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	InvestigationID types.ID  `json:"investigation_id"`

	// NodeID and Capability are set on node-scoped events.
	NodeID     string `json:"node_id,omitempty"`
	Capability string `json:"capability,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Findings carries partial findings on finding.reported events.
	Findings []finding.Finding `json:"findings,omitempty"`

	// Data holds event-specific attributes (attempt, score, source name).
	Data map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(eventType EventType, investigationID types.ID) Event {
	return Event{
		Type:            eventType,
		Timestamp:       time.Now(),
		InvestigationID: investigationID,
	}
}

// WithNode scopes the event to a plan node.
func (e Event) WithNode(nodeID, capability string) Event {
	e.NodeID = nodeID
	e.Capability = capability
	return e
}

// WithMessage sets the human-readable description.
func (e Event) WithMessage(message string) Event {
	e.Message = message
	return e
}

// WithFindings attaches partial findings.
func (e Event) WithFindings(findings []finding.Finding) Event {
	e.Findings = findings
	return e
}

// WithData sets one event attribute.
func (e Event) WithData(key string, value any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// Filter restricts which events a subscriber receives. Zero value matches
// everything.
type Filter struct {
	// Types restricts to the listed event types. Empty matches all.
	Types []EventType

	// InvestigationID restricts to one investigation. Nil matches all.
	InvestigationID *types.ID
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(event Event) bool {
	if f.InvestigationID != nil && event.InvestigationID != *f.InvestigationID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if event.Type == t {
			return true
		}
	}
	return false
}

// Sink persists events durably. The engine writes through the sink and never
// reads persisted state back mid-investigation.
type Sink interface {
	Save(ctx context.Context, event Event) error
}

// NopSink discards everything. Used when persistence is disabled.
type NopSink struct{}

// Save implements Sink.
func (NopSink) Save(ctx context.Context, event Event) error { return nil }
