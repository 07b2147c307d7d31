package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/model"
)

// Listing caps.
const (
	MaxProfileList   = 500
	MaxCharacterList = 200
)

// GetProfile returns the profile with the given id.
func (s *Store) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, readErr("profile", err)
	}
	return &p, nil
}

// EnsureProfile returns the profile for id, creating a free one on first use.
func (s *Store) EnsureProfile(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := s.db.WithContext(ctx).
		Where(model.Profile{ID: id}).
		Attrs(model.Profile{Tier: model.TierFree}).
		FirstOrCreate(&p).Error
	if err != nil {
		// A concurrent first request may have created the row.
		if existing, getErr := s.GetProfile(ctx, id); getErr == nil {
			return existing, nil
		}
		return nil, apperr.StorageFailed("ensure profile", err)
	}
	return &p, nil
}

// UpdateProfile applies column updates to a profile and returns the result.
func (s *Store) UpdateProfile(ctx context.Context, id string, updates map[string]any) (*model.Profile, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, apperr.StorageFailed("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("profile")
	}
	return s.GetProfile(ctx, id)
}

// ListProfiles returns the most recently created profiles.
func (s *Store) ListProfiles(ctx context.Context, limit int) ([]model.Profile, error) {
	if limit <= 0 || limit > MaxProfileList {
		limit = MaxProfileList
	}

	var profiles []model.Profile
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, apperr.StorageFailed("list profiles", err)
	}
	return profiles, nil
}

// GetCharacter returns the character with the given id.
func (s *Store) GetCharacter(ctx context.Context, id string) (*model.Character, error) {
	var c model.Character
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, readErr("character", err)
	}
	return &c, nil
}

// CreateCharacter stores a character, assigning an id when empty.
func (s *Store) CreateCharacter(ctx context.Context, c *model.Character) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Visibility == "" {
		c.Visibility = model.VisibilityPublic
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return apperr.StorageFailed("create character", err)
	}
	return nil
}

// ListCharacters returns the public characters plus the ones the user
// created, newest first.
func (s *Store) ListCharacters(ctx context.Context, userID string, limit int) ([]model.Character, error) {
	if limit <= 0 || limit > MaxCharacterList {
		limit = MaxCharacterList
	}

	var chars []model.Character
	err := s.db.WithContext(ctx).
		Where("visibility = ? OR creator_id = ?", model.VisibilityPublic, userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&chars).Error
	if err != nil {
		return nil, apperr.StorageFailed("list characters", err)
	}
	return chars, nil
}

// GetPersona returns the persona with the given id.
func (s *Store) GetPersona(ctx context.Context, id string) (*model.Persona, error) {
	var p model.Persona
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, readErr("persona", err)
	}
	return &p, nil
}

// CreatePersona stores a persona for its user.
func (s *Store) CreatePersona(ctx context.Context, p *model.Persona) error {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = s.now()
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return apperr.StorageFailed("create persona", err)
	}
	return nil
}

// ListPersonas returns a user's personas, newest first.
func (s *Store) ListPersonas(ctx context.Context, userID string) ([]model.Persona, error) {
	var personas []model.Persona
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&personas).Error
	if err != nil {
		return nil, apperr.StorageFailed("list personas", err)
	}
	return personas, nil
}

// withTx runs fn in a transaction bound to ctx.
func (s *Store) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
