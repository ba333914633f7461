// Package progress carries the tagged events an investigation emits
// while running and fans them out to subscribers.
//
// Responsibilities:
//   - Define the progress event union shared by the loop, bridge and servers
//   - Demultiplex one investigation's events to N subscribers
//   - Isolate slow subscribers: they experience drops, never backpressure
//
// Delivery guarantees: at-most-once per subscriber, ordering preserved
// per subscriber. When a subscriber's queue is full the oldest
// non-terminal event is dropped in favor of the newest. Terminal events
// (Completed, Error) are never dropped.
package progress

import (
	"fmt"
	"time"
)

// EventType tags the progress event union.
type EventType string

const (
	EventStarted   EventType = "started"
	EventTurn      EventType = "turn"
	EventFinding   EventType = "finding"
	EventLead      EventType = "lead"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one tagged progress message. Only the fields relevant to
// the type are populated.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Turn events.
	Turn      int    `json:"turn,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	// Finding events.
	Source     string  `json:"source,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Lead events.
	Description string  `json:"description,omitempty"`
	Priority    float64 `json:"priority,omitempty"`

	// Progress, Completed and Error events.
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// Text renders the event as a single human-readable line for plain
// text adapters.
func (e Event) Text() string {
	switch e.Type {
	case EventStarted:
		return fmt.Sprintf("Investigation started: %s", e.Message)
	case EventTurn:
		return fmt.Sprintf("Turn %d: %s - %s", e.Turn, e.Tool, e.Reasoning)
	case EventFinding:
		return fmt.Sprintf("Finding [%s] %s (confidence %.2f)", e.Source, e.Summary, e.Confidence)
	case EventLead:
		return fmt.Sprintf("New lead (%.2f): %s", e.Priority, e.Description)
	case EventProgress:
		return e.Message
	case EventCompleted:
		return fmt.Sprintf("Investigation complete: %s", e.Message)
	case EventError:
		return fmt.Sprintf("Investigation failed: %s", e.Message)
	}
	return e.Message
}

// Started builds a Started event.
func Started(goal string) Event {
	return Event{Type: EventStarted, Message: goal, Timestamp: time.Now().UTC()}
}

// TurnEvent builds a Turn event.
func TurnEvent(turn int, tool, reasoning string) Event {
	return Event{Type: EventTurn, Turn: turn, Tool: tool, Reasoning: reasoning, Timestamp: time.Now().UTC()}
}

// FindingEvent builds a Finding event.
func FindingEvent(source, summary string, confidence float64) Event {
	return Event{Type: EventFinding, Source: source, Summary: summary, Confidence: confidence, Timestamp: time.Now().UTC()}
}

// LeadEvent builds a Lead event.
func LeadEvent(description string, priority float64) Event {
	return Event{Type: EventLead, Description: description, Priority: priority, Timestamp: time.Now().UTC()}
}

// ProgressMsg builds a Progress event.
func ProgressMsg(message string) Event {
	return Event{Type: EventProgress, Message: message, Timestamp: time.Now().UTC()}
}

// Completed builds a terminal Completed event.
func Completed(summary string) Event {
	return Event{Type: EventCompleted, Message: summary, Timestamp: time.Now().UTC()}
}

// ErrorEvent builds a terminal Error event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message, Timestamp: time.Now().UTC()}
}
