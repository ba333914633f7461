package audit

import "time"

// EventType represents the type of audit event.
type EventType string

const (
	// Investigation lifecycle events
	EventInvestigationStarted   EventType = "investigation.started"
	EventInvestigationCompleted EventType = "investigation.completed"
	EventInvestigationFailed    EventType = "investigation.failed"
	EventInvestigationCancelled EventType = "investigation.cancelled"

	// Tool events
	EventToolExecuted EventType = "tool.executed"
	EventToolFailed   EventType = "tool.failed"
	EventToolBlocked  EventType = "tool.blocked"

	// Safety events
	EventSafetyPreCheck    EventType = "safety.pre_check"
	EventSafetyPostCheck   EventType = "safety.post_check"
	EventPublicationScrub  EventType = "safety.publication_scrub"
	EventPolicyViolation   EventType = "safety.policy_violation"
	EventRateLimitExceeded EventType = "safety.rate_limited"

	// Session events
	EventSessionSaved  EventType = "session.saved"
	EventSessionLoaded EventType = "session.loaded"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventConfigLoaded   EventType = "system.config_loaded"
	EventSystemError    EventType = "system.error"
)

// Result represents the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultBlocked Result = "blocked"
	ResultPending Result = "pending"
)

// Event represents a single audit event.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Investigation context
	SessionID string `json:"session_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Tool      string `json:"tool,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithSession sets the investigation session this event belongs to.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithChannel sets the originating channel.
func (e *Event) WithChannel(channel string) *Event {
	e.Channel = channel
	return e
}

// WithTool sets the tool involved in the event.
func (e *Event) WithTool(tool string) *Event {
	e.Tool = tool
	return e
}

// WithDescription sets a human-readable description.
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event.
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds.
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
