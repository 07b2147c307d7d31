package model

import (
	"time"
)

// EventType represents the type of chat event.
type EventType string

const (
	EventTypeMessage          EventType = "message"
	EventTypeGenerationFailed EventType = "generation_failed"
	EventTypeDeleted          EventType = "deleted"
)

// ChatEvent is published to the event stream after pipeline side effects.
type ChatEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Type           EventType `json:"type"`
	Role           Role      `json:"role,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
