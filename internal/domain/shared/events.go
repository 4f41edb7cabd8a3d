package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types emitted by the attendance ledger.
const (
	EventSessionCreated   EventType = "attendance.session_created"
	EventSessionEnded     EventType = "attendance.session_ended"
	EventAttendanceMarked EventType = "attendance.marked"
	EventCheckInMissed    EventType = "attendance.checkin_missed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionCreatedEvent is emitted when an administrator opens a session.
type SessionCreatedEvent struct {
	BaseEvent
	Name         string `json:"name"`
	OwnerID      string `json:"owner_id"`
	Detectable   bool   `json:"detectable"`
	ActiveTotal  int    `json:"active_total"`
}

// Payload implements Event interface.
func (e SessionCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name":         e.Name,
		"owner_id":     e.OwnerID,
		"detectable":   e.Detectable,
		"active_total": e.ActiveTotal,
	}
}

// NewSessionCreatedEvent creates a new SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, name, ownerID string, detectable bool, activeTotal int, at time.Time) SessionCreatedEvent {
	return SessionCreatedEvent{
		BaseEvent:   NewBaseEvent(EventSessionCreated, sessionID, at),
		Name:        name,
		OwnerID:     ownerID,
		Detectable:  detectable,
		ActiveTotal: activeTotal,
	}
}

// SessionEndedEvent is emitted once, when a session leaves the active state.
type SessionEndedEvent struct {
	BaseEvent
	Name        string        `json:"name"`
	Duration    time.Duration `json:"duration"`
	RecordCount int           `json:"record_count"`
}

// Payload implements Event interface.
func (e SessionEndedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name":         e.Name,
		"duration":     e.Duration.String(),
		"record_count": e.RecordCount,
	}
}

// NewSessionEndedEvent creates a new SessionEndedEvent.
func NewSessionEndedEvent(sessionID, name string, duration time.Duration, records int, at time.Time) SessionEndedEvent {
	return SessionEndedEvent{
		BaseEvent:   NewBaseEvent(EventSessionEnded, sessionID, at),
		Name:        name,
		Duration:    duration,
		RecordCount: records,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// AttendanceMarkedEvent is emitted when a new attendance record is stored.
// Duplicate marks do not emit.
type AttendanceMarkedEvent struct {
	BaseEvent
	RecordID   string `json:"record_id"`
	PersonID   string `json:"person_id"`
	PersonName string `json:"person_name"`
	Method     string `json:"method"`
	Date       string `json:"date"`
}

// Payload implements Event interface.
func (e AttendanceMarkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"record_id":   e.RecordID,
		"person_id":   e.PersonID,
		"person_name": e.PersonName,
		"method":      e.Method,
		"date":        e.Date,
	}
}

// NewAttendanceMarkedEvent creates a new AttendanceMarkedEvent. The aggregate is the session.
func NewAttendanceMarkedEvent(sessionID, recordID, personID, personName, method, date string, at time.Time) AttendanceMarkedEvent {
	return AttendanceMarkedEvent{
		BaseEvent:  NewBaseEvent(EventAttendanceMarked, sessionID, at),
		RecordID:   recordID,
		PersonID:   personID,
		PersonName: personName,
		Method:     method,
		Date:       date,
	}
}

// CheckInMissedEvent is emitted when a check-in attempt detects no session.
type CheckInMissedEvent struct {
	BaseEvent
	Attempts int `json:"attempts"`
	Failures int `json:"failures"`
}

// Payload implements Event interface.
func (e CheckInMissedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attempts": e.Attempts,
		"failures": e.Failures,
	}
}

// NewCheckInMissedEvent creates a new CheckInMissedEvent. The aggregate is the person.
func NewCheckInMissedEvent(personID string, attempts, failures int, at time.Time) CheckInMissedEvent {
	return CheckInMissedEvent{
		BaseEvent: NewBaseEvent(EventCheckInMissed, personID, at),
		Attempts:  attempts,
		Failures:  failures,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
