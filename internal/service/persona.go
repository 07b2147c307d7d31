package service

import (
	"context"
	"strings"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// Persona field limits.
const (
	MaxPersonaNameChars        = 40
	MaxPersonaDescriptionChars = 800
)

// PersonaService manages the alternate identities a user may speak as.
type PersonaService struct {
	store  Store
	logger *logger.Logger
}

// NewPersonaService creates a new persona service.
func NewPersonaService(store Store, log *logger.Logger) *PersonaService {
	return &PersonaService{store: store, logger: log.Named("persona")}
}

// Create stores a persona for the user. Over-long fields are truncated.
func (s *PersonaService) Create(ctx context.Context, userID string, req *model.CreatePersonaRequest) (*model.Persona, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return nil, err
	}

	name := truncateRunes(strings.TrimSpace(req.Name), MaxPersonaNameChars)
	if name == "" {
		return nil, apperr.Invalid("persona name is required")
	}

	persona := &model.Persona{
		UserID:      userID,
		Name:        name,
		Description: truncateRunes(strings.TrimSpace(req.Description), MaxPersonaDescriptionChars),
	}
	if err := s.store.CreatePersona(ctx, persona); err != nil {
		return nil, err
	}
	return persona, nil
}

// List returns the user's personas.
func (s *PersonaService) List(ctx context.Context, userID string) ([]model.Persona, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return nil, err
	}
	return s.store.ListPersonas(ctx, userID)
}
