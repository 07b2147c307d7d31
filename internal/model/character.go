package model

import (
	"time"
)

// Visibility controls whether a character is listed publicly.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Character is authored roleplay content.
type Character struct {
	ID              string     `gorm:"size:36;primaryKey" json:"id"`
	CreatorID       string     `gorm:"size:64;index" json:"creator_id"`
	Name            string     `gorm:"size:120;not null" json:"name"`
	Description     string     `gorm:"type:text" json:"description"`
	Personality     string     `gorm:"type:text" json:"personality"`
	Greeting        string     `gorm:"type:text" json:"greeting,omitempty"`
	ExampleDialogue string     `gorm:"type:text" json:"example_dialogue,omitempty"`
	Tags            string     `gorm:"size:400" json:"tags,omitempty"`
	Mature          bool       `gorm:"not null;default:false" json:"mature"`
	Visibility      Visibility `gorm:"size:16;not null;default:public" json:"visibility"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (Character) TableName() string { return "characters" }

// Persona is an alternate identity a user may speak as.
type Persona struct {
	ID          string    `gorm:"size:36;primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;index" json:"-"`
	Name        string    `gorm:"size:40;not null" json:"name"`
	Description string    `gorm:"size:800" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName implements the gorm tabler interface.
func (Persona) TableName() string { return "personas" }

// CreatePersonaRequest is the request to create a persona.
type CreatePersonaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCharacterRequest is the request to author a character.
type CreateCharacterRequest struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Personality     string     `json:"personality"`
	Greeting        string     `json:"greeting"`
	ExampleDialogue string     `json:"example_dialogue"`
	Tags            string     `json:"tags"`
	Mature          bool       `json:"mature"`
	Visibility      Visibility `json:"visibility,omitempty"`
}

// GenerateCharacterRequest asks the generation backend to draft a character.
type GenerateCharacterRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	Tags         string `json:"tags,omitempty"`
	Vibe         string `json:"vibe,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Mature       bool   `json:"mature"`
}

// GeneratedCharacter is a drafted character profile, not yet stored.
type GeneratedCharacter struct {
	Personality     string `json:"personality"`
	Greeting        string `json:"greeting"`
	ExampleDialogue string `json:"example_dialogue"`
	Tags            string `json:"tags"`
}
