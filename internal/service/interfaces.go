// Package service provides business logic for the character chat backend.
package service

import (
	"context"

	"github.com/capitalize-ai/character-chat/internal/llm"
	"github.com/capitalize-ai/character-chat/internal/model"
)

// Store is the persistence the services depend on.
type Store interface {
	EnsureProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id string, updates map[string]any) (*model.Profile, error)
	ListProfiles(ctx context.Context, limit int) ([]model.Profile, error)

	GetCharacter(ctx context.Context, id string) (*model.Character, error)
	CreateCharacter(ctx context.Context, c *model.Character) error
	ListCharacters(ctx context.Context, userID string, limit int) ([]model.Character, error)

	GetPersona(ctx context.Context, id string) (*model.Persona, error)
	CreatePersona(ctx context.Context, p *model.Persona) error
	ListPersonas(ctx context.Context, userID string) ([]model.Persona, error)

	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	LatestConversation(ctx context.Context, userID, characterID string) (*model.Conversation, error)
	SetConversationPersona(ctx context.Context, id string, personaID *string) error
	DeleteConversation(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, conversationID string, role model.Role, text string) (*model.Message, error)
	AppendMessageWithPayload(ctx context.Context, conversationID string, role model.Role, text string, payload []byte) (*model.Message, error)
	RecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// Generator produces a reply for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, messages []llm.ChatMessage) (*llm.Generation, error)
}

// EventPublisher receives pipeline side effects.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ChatEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// PublishEvent implements EventPublisher.
func (NopPublisher) PublishEvent(context.Context, *model.ChatEvent) error { return nil }
