// Package model defines the persistent records and request/response shapes
// of the character chat backend.
package model

import (
	"time"

	"gorm.io/gorm"
)

// Tier is the entitlement tier stored on a profile.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierAdmin   Tier = "admin"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierAdmin:
		return true
	}
	return false
}

// Profile is the per-account record read once per request.
type Profile struct {
	ID               string     `gorm:"size:64;primaryKey" json:"id"`
	Email            string     `gorm:"size:255" json:"email,omitempty"`
	DisplayName      string     `gorm:"size:60" json:"display_name,omitempty"`
	Bio              string     `gorm:"size:500" json:"bio,omitempty"`
	Tier             Tier       `gorm:"size:16;not null;default:free" json:"tier"`
	TrialEndsAt      *time.Time `json:"trial_ends_at,omitempty"`
	PremiumEndsAt    *time.Time `json:"premium_ends_at,omitempty"`
	Blocked          bool       `gorm:"not null;default:false" json:"blocked"`
	AgeConfirmed     bool       `gorm:"not null;default:false" json:"age_confirmed"`
	MatureEnabled    bool       `gorm:"not null;default:false;check:chk_profiles_mature_requires_age,(NOT mature_enabled) OR age_confirmed" json:"mature_enabled"`
	PaymentReference string     `gorm:"size:255" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (Profile) TableName() string { return "profiles" }

// BeforeSave keeps mature content disabled until age is confirmed.
func (p *Profile) BeforeSave(tx *gorm.DB) error {
	p.AgeConfirmed, p.MatureEnabled = ConsentFlags(p.AgeConfirmed, p.MatureEnabled)
	return nil
}

// ConsentFlags collapses the two user toggles so that mature content can
// only be enabled together with a confirmed age.
func ConsentFlags(ageConfirmed, matureEnabled bool) (bool, bool) {
	return ageConfirmed, ageConfirmed && matureEnabled
}

// UpdateSettingsRequest is the self-service settings payload.
type UpdateSettingsRequest struct {
	DisplayName   *string `json:"display_name,omitempty"`
	Bio           *string `json:"bio,omitempty"`
	AgeConfirmed  *bool   `json:"age_confirmed,omitempty"`
	MatureEnabled *bool   `json:"mature_enabled,omitempty"`
}

// MeResponse describes the caller's own account.
type MeResponse struct {
	Profile        *Profile `json:"profile"`
	ExpandedAccess bool     `json:"expanded_access"`
	DailyLimit     int      `json:"daily_limit,omitempty"`
	UsedToday      int      `json:"used_today,omitempty"`
}

// AdminAction is an administrator mutation of another profile.
type AdminAction struct {
	Action  string `json:"action"`
	UserID  string `json:"user_id"`
	Blocked bool   `json:"blocked,omitempty"`
	Tier    Tier   `json:"tier,omitempty"`
	Days    int    `json:"days,omitempty"`
}
