package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/consent"
	"github.com/capitalize-ai/character-chat/internal/entitlement"
	"github.com/capitalize-ai/character-chat/internal/llm"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/normalize"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// Character field limits.
const (
	MaxCharacterNameChars = 120
	MaxCharacterTextChars = 8000
	MaxCharacterTagsChars = 400
)

// Defaults applied to a generation request.
const (
	defaultCategory     = "General"
	defaultVibe         = "romantic"
	defaultRelationship = "strangers to something"
)

const characterWriterPrompt = `You write character profiles for an AI roleplay chat site.

Reply with one JSON object with the keys personality, greeting, example_dialogue and tags.
personality, greeting and example_dialogue are strings. tags is a single comma-separated string.

Rules:
- Immersive and emotionally engaging.
- No underage, non-consensual or incest content.
- When mature content is not allowed, keep it PG-13.
- When mature content is allowed, keep it adult and consensual without explicit instructions.
- The personality covers background, tone, speaking style, boundaries and goals.
- The greeting hooks the user immediately.
- The example dialogue has 6 to 10 lines alternating USER and CHAR.`

// CharacterService authors, lists and drafts characters.
type CharacterService struct {
	store     Store
	generator Generator
	logger    *logger.Logger
	now       func() time.Time
}

// NewCharacterService creates a new character service. The generator is
// expected to run in JSON mode.
func NewCharacterService(store Store, generator Generator, log *logger.Logger) *CharacterService {
	return &CharacterService{
		store:     store,
		generator: generator,
		logger:    log.Named("character"),
		now:       time.Now,
	}
}

// Create stores a character owned by the caller. Visibility defaults to
// public. Mature characters can only be authored by users who may be served
// mature content.
func (s *CharacterService) Create(ctx context.Context, userID string, req *model.CreateCharacterRequest) (*model.Character, error) {
	profile, err := loadProfile(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	name := truncateRunes(strings.TrimSpace(req.Name), MaxCharacterNameChars)
	if name == "" {
		return nil, apperr.Invalid("character name is required")
	}

	visibility := req.Visibility
	switch visibility {
	case "":
		visibility = model.VisibilityPublic
	case model.VisibilityPublic, model.VisibilityPrivate:
	default:
		return nil, apperr.Invalid(fmt.Sprintf("unknown visibility %q", visibility))
	}

	char := &model.Character{
		CreatorID:       userID,
		Name:            name,
		Description:     truncateRunes(strings.TrimSpace(req.Description), MaxCharacterTextChars),
		Personality:     truncateRunes(strings.TrimSpace(req.Personality), MaxCharacterTextChars),
		Greeting:        truncateRunes(strings.TrimSpace(req.Greeting), MaxCharacterTextChars),
		ExampleDialogue: truncateRunes(strings.TrimSpace(req.ExampleDialogue), MaxCharacterTextChars),
		Tags:            truncateRunes(normalize.Tags(req.Tags), MaxCharacterTagsChars),
		Mature:          req.Mature,
		Visibility:      visibility,
	}
	if decision := consent.MayServe(profile, char); !decision.Allowed {
		return nil, decision.Err()
	}

	if err := s.store.CreateCharacter(ctx, char); err != nil {
		return nil, err
	}
	s.logger.Info("character created",
		zap.String("character_id", char.ID),
		zap.String("creator_id", userID),
		zap.Bool("mature", char.Mature),
		zap.String("visibility", string(char.Visibility)),
	)
	return char, nil
}

// List returns the public characters plus the caller's own private ones,
// newest first.
func (s *CharacterService) List(ctx context.Context, userID string, limit int) ([]model.Character, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return nil, err
	}
	return s.store.ListCharacters(ctx, userID, limit)
}

// Get returns a character visible to the caller.
func (s *CharacterService) Get(ctx context.Context, userID, characterID string) (*model.Character, error) {
	if _, err := loadProfile(ctx, s.store, userID); err != nil {
		return nil, err
	}
	return visibleCharacter(ctx, s.store, characterID, userID)
}

// Generate drafts a character profile. It requires expanded access and
// stores nothing.
func (s *CharacterService) Generate(ctx context.Context, userID string, req *model.GenerateCharacterRequest) (*model.GeneratedCharacter, error) {
	profile, err := loadProfile(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	if !entitlement.HasExpandedAccess(entitlement.FromProfile(profile), s.now()) {
		return nil, apperr.PremiumRequired()
	}

	name := truncateRunes(strings.TrimSpace(req.Name), MaxCharacterNameChars)
	if name == "" {
		return nil, apperr.Invalid("character name is required")
	}
	if req.Mature {
		if decision := consent.MayServe(profile, &model.Character{Mature: true}); !decision.Allowed {
			return nil, decision.Err()
		}
	}

	gen, err := s.generator.Generate(ctx, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: characterWriterPrompt},
		{Role: llm.RoleUser, Content: draftBrief(name, req)},
	})
	if err != nil {
		return nil, err
	}

	raw := []byte(gen.Payload)
	if len(raw) == 0 {
		raw = []byte(gen.Text)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("draft decoded to %s", raw)
		}
		s.logger.Warn("character draft is not a JSON object", zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindGenerationFailed, "generation returned malformed output", err)
	}

	return &model.GeneratedCharacter{
		Personality:     strings.TrimSpace(normalize.Text(fields["personality"])),
		Greeting:        strings.TrimSpace(normalize.Text(fields["greeting"])),
		ExampleDialogue: strings.TrimSpace(normalize.Text(fields["example_dialogue"])),
		Tags:            normalize.Tags(fields["tags"]),
	}, nil
}

func draftBrief(name string, req *model.GenerateCharacterRequest) string {
	tags := strings.TrimSpace(req.Tags)
	if tags == "" {
		tags = "(none)"
	}
	mature := "No"
	if req.Mature {
		mature = "Yes (adult only)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", name)
	fmt.Fprintf(&b, "Category: %s\n", orDefault(req.Category, defaultCategory))
	fmt.Fprintf(&b, "User tags: %s\n", tags)
	fmt.Fprintf(&b, "Vibe: %s\n", orDefault(req.Vibe, defaultVibe))
	fmt.Fprintf(&b, "Relationship dynamic: %s\n", orDefault(req.Relationship, defaultRelationship))
	fmt.Fprintf(&b, "Mature content allowed: %s", mature)
	return b.String()
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
