package kb

import "time"

// EventType discriminates content store mutations.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// DocumentEvent is published by the content store after each committed
// mutation. Delivery is at-least-once; the index writer is idempotent.
type DocumentEvent struct {
	Type       EventType `json:"type"`
	Document   Document  `json:"document"`
	EmittedAt  time.Time `json:"emitted_at"`
	SequenceID int64     `json:"sequence_id,omitempty"`
}
