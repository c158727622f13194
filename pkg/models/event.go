package models

import (
	"fmt"
	"time"
)

// Event is the unit of work submitted by producers. Two events are the same
// logical event iff (Topic, EventID) match; payload, timestamp and source
// differences on a duplicate are ignored.
type Event struct {
	Topic     string                 `json:"topic"`
	EventID   string                 `json:"event_id"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
}

// Key returns the canonical identity of the event.
func (e *Event) Key() string {
	return e.Topic + ":" + e.EventID
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateEvent checks the producer-facing schema. The timestamp is parsed
// once here at the boundary; after validation it is carried verbatim and
// never reparsed.
func ValidateEvent(ev *Event) error {
	if ev == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event cannot be nil",
		}
	}

	if ev.Topic == "" {
		return &ValidationError{
			Field:   "topic",
			Message: "topic is required",
		}
	}

	if ev.EventID == "" {
		return &ValidationError{
			Field:   "event_id",
			Message: "event_id is required",
		}
	}

	if ev.Source == "" {
		return &ValidationError{
			Field:   "source",
			Message: "source is required",
		}
	}

	if ev.Timestamp == "" {
		return &ValidationError{
			Field:   "timestamp",
			Message: "timestamp is required",
		}
	}

	if _, err := time.Parse(time.RFC3339, ev.Timestamp); err != nil {
		return &ValidationError{
			Field:   "timestamp",
			Message: "timestamp must be a valid ISO8601 instant",
		}
	}

	return nil
}
