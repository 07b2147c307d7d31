package service

import (
	"context"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/model"
)

// loadProfile is the single profile lookup of a request. It rejects
// anonymous and blocked callers before any other state is read.
func loadProfile(ctx context.Context, store Store, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperr.NotAuthenticated()
	}
	profile, err := store.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.Blocked {
		return nil, apperr.Blocked()
	}
	return profile, nil
}

// ownedConversation fetches a conversation and checks that userID owns it.
func ownedConversation(ctx context.Context, store Store, conversationID, userID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, apperr.Invalid("conversation id is required")
	}
	conv, err := store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, apperr.NotAllowed("conversation")
	}
	return conv, nil
}

// ownedPersona fetches a persona and checks that userID owns it.
func ownedPersona(ctx context.Context, store Store, personaID, userID string) (*model.Persona, error) {
	persona, err := store.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}
	if persona.UserID != userID {
		return nil, apperr.NotAllowed("persona")
	}
	return persona, nil
}

// visibleCharacter fetches a character the user may chat with. Private
// characters are only visible to their creator.
func visibleCharacter(ctx context.Context, store Store, characterID, userID string) (*model.Character, error) {
	if characterID == "" {
		return nil, apperr.Invalid("character id is required")
	}
	char, err := store.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if char.Visibility == model.VisibilityPrivate && char.CreatorID != userID {
		return nil, apperr.NotFound("character")
	}
	return char, nil
}
