// Package entitlement decides whether a profile has expanded (unmetered) access.
package entitlement

import (
	"time"

	"github.com/capitalize-ai/character-chat/internal/model"
)

// Snapshot is the subset of a profile the resolver reads.
type Snapshot struct {
	Tier          model.Tier
	TrialEndsAt   *time.Time
	PremiumEndsAt *time.Time
}

// FromProfile builds a snapshot from a stored profile.
func FromProfile(p *model.Profile) Snapshot {
	return Snapshot{
		Tier:          p.Tier,
		TrialEndsAt:   p.TrialEndsAt,
		PremiumEndsAt: p.PremiumEndsAt,
	}
}

// HasExpandedAccess reports whether the snapshot grants unmetered access at now.
// Admin and premium tiers always do. Any other tier needs a trial or premium
// end time strictly after now.
func HasExpandedAccess(s Snapshot, now time.Time) bool {
	switch s.Tier {
	case model.TierAdmin, model.TierPremium:
		return true
	}
	return after(s.TrialEndsAt, now) || after(s.PremiumEndsAt, now)
}

// Expired reports whether a premium tier is carried past its paid period.
// The send path ignores this; operators use it to decide on revocation.
func Expired(s Snapshot, now time.Time) bool {
	if s.Tier != model.TierPremium || s.PremiumEndsAt == nil {
		return false
	}
	return !s.PremiumEndsAt.After(now)
}

func after(t *time.Time, now time.Time) bool {
	return t != nil && t.After(now)
}
