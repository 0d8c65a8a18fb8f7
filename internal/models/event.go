package models

import "time"

type EventType string

const (
	EventPropertyCreated EventType = "property_created"
	EventPropertyUpdated EventType = "property_updated"
	EventPropertyDeleted EventType = "property_deleted"
)

// ChangeEvent is the payload pushed to connected listeners after an
// accepted mutation. Fields is only set for updates and names the
// top-level fields touched by the patch.
type ChangeEvent struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Fields    []string  `json:"fields,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
