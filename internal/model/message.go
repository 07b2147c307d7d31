package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/capitalize-ai/character-chat/internal/normalize"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one append-only entry of a conversation.
type Message struct {
	ID             string `gorm:"size:36;primaryKey" json:"id"`
	ConversationID string `gorm:"size:36;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	Role           Role   `gorm:"size:16;not null" json:"role"`
	Content        string `gorm:"type:text;not null" json:"content"`

	// Payload holds a structured body produced upstream. Readers go through Text.
	Payload datatypes.JSON `json:"-"`

	Seq       int64     `gorm:"not null;index:idx_messages_conversation_created,priority:3" json:"seq"`
	CreatedAt time.Time `gorm:"index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

// TableName implements the gorm tabler interface.
func (Message) TableName() string { return "messages" }

// HasPayload reports whether a structured body is stored. A NULL column
// scans as the JSON literal null.
func (m *Message) HasPayload() bool {
	return len(m.Payload) > 0 && string(m.Payload) != "null"
}

// Text returns the message body as plain text, coercing structured payloads.
func (m *Message) Text() string {
	if m.Content != "" || !m.HasPayload() {
		return m.Content
	}
	return normalize.JSON(m.Payload)
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is the response after a successful send.
type SendMessageResponse struct {
	AssistantText string   `json:"assistant_text"`
	UserMessage   *Message `json:"user_message,omitempty"`
	Reply         *Message `json:"reply,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Used          int      `json:"used,omitempty"`
}

// MessageView is the display shape of a stored message.
type MessageView struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []MessageView `json:"messages"`
}
