// Package consent gates mature characters behind the profile's consent flags.
package consent

import (
	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/model"
)

// Reason explains a denied decision.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonAgeNotConfirmed  Reason = "age_not_confirmed"
	ReasonMatureNotEnabled Reason = "mature_not_enabled"
)

// Decision is the outcome of the gate.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err returns the request error for a denied decision, or nil.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonAgeNotConfirmed:
		return apperr.New(apperr.KindAgeNotConfirmed, "confirm your age to chat with mature characters")
	case ReasonMatureNotEnabled:
		return apperr.New(apperr.KindMatureNotEnabled, "enable mature content in settings to chat with this character")
	}
	return nil
}

// MayServe decides whether the character may be served to the profile.
// Tier does not matter here.
func MayServe(p *model.Profile, c *model.Character) Decision {
	if !c.Mature {
		return Decision{Allowed: true}
	}
	if !p.AgeConfirmed {
		return Decision{Reason: ReasonAgeNotConfirmed}
	}
	if !p.MatureEnabled {
		return Decision{Reason: ReasonMatureNotEnabled}
	}
	return Decision{Allowed: true}
}
