package model

import (
	"time"
)

// Conversation belongs to one (user, character) pair and optionally binds a persona.
type Conversation struct {
	ID          string    `gorm:"size:36;primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;index:idx_conversations_user_character,priority:1" json:"user_id"`
	CharacterID string    `gorm:"size:36;not null;index:idx_conversations_user_character,priority:2" json:"character_id"`
	PersonaID   *string   `gorm:"size:36" json:"persona_id,omitempty"`
	Title       *string   `gorm:"size:256" json:"title,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (Conversation) TableName() string { return "conversations" }

// StartConversationRequest is the request to start a new conversation.
type StartConversationRequest struct {
	CharacterID string  `json:"character_id"`
	PersonaID   *string `json:"persona_id,omitempty"`
}

// EnsureConversationRequest asks for the latest conversation with a character.
type EnsureConversationRequest struct {
	CharacterID string `json:"character_id"`
}

// RestartConversationRequest starts a fresh conversation from an existing one.
type RestartConversationRequest struct {
	KeepPersona *bool `json:"keep_persona,omitempty"`
}

// SetPersonaRequest binds or clears the persona of a conversation.
type SetPersonaRequest struct {
	PersonaID *string `json:"persona_id"`
}

// ConversationResponse is returned by conversation-creating endpoints.
type ConversationResponse struct {
	ConversationID string     `json:"conversation_id"`
	Character      *Character `json:"character,omitempty"`
}
