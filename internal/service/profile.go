package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/entitlement"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/internal/quota"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// Profile field limits.
const (
	MaxDisplayNameChars = 60
	MaxBioChars         = 500
)

// Admin actions.
const (
	ActionSetBlocked   = "set_blocked"
	ActionSetTier      = "set_tier"
	ActionGrantTrial   = "grant_trial"
	ActionRevokeAccess = "revoke_access"
)

// ProfileService handles self-service settings and administration of profiles.
type ProfileService struct {
	store  Store
	ledger quota.Ledger
	logger *logger.Logger
	now    func() time.Time
}

// NewProfileService creates a new profile service.
func NewProfileService(store Store, ledger quota.Ledger, log *logger.Logger) *ProfileService {
	return &ProfileService{
		store:  store,
		ledger: ledger,
		logger: log.Named("profile"),
		now:    time.Now,
	}
}

// Me describes the caller's account. Blocked users can still read it.
func (s *ProfileService) Me(ctx context.Context, userID string) (*model.MeResponse, error) {
	if userID == "" {
		return nil, apperr.NotAuthenticated()
	}
	profile, err := s.store.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &model.MeResponse{
		Profile:        profile,
		ExpandedAccess: entitlement.HasExpandedAccess(entitlement.FromProfile(profile), now),
	}
	if !resp.ExpandedAccess {
		resp.DailyLimit = s.ledger.Limit()
		used, err := s.ledger.Usage(ctx, userID, quota.DayKey(now))
		if err != nil {
			s.logger.Warn("failed to read daily usage", zap.String("user_id", userID), zap.Error(err))
		}
		resp.UsedToday = used
	}
	return resp, nil
}

// UpdateSettings applies self-service settings. Mature content is switched
// off whenever age is not confirmed.
func (s *ProfileService) UpdateSettings(ctx context.Context, userID string, req *model.UpdateSettingsRequest) (*model.Profile, error) {
	profile, err := loadProfile(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.DisplayName != nil {
		updates["display_name"] = truncateRunes(strings.TrimSpace(*req.DisplayName), MaxDisplayNameChars)
	}
	if req.Bio != nil {
		updates["bio"] = truncateRunes(strings.TrimSpace(*req.Bio), MaxBioChars)
	}

	age, mature := profile.AgeConfirmed, profile.MatureEnabled
	if req.AgeConfirmed != nil {
		age = *req.AgeConfirmed
	}
	if req.MatureEnabled != nil {
		mature = *req.MatureEnabled
	}
	age, mature = model.ConsentFlags(age, mature)
	updates["age_confirmed"] = age
	updates["mature_enabled"] = mature

	return s.store.UpdateProfile(ctx, userID, updates)
}

// RequireAdmin returns the caller's profile when it has the admin tier.
func (s *ProfileService) RequireAdmin(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := loadProfile(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	if profile.Tier != model.TierAdmin {
		return nil, apperr.New(apperr.KindNotAllowed, "admin access required")
	}
	return profile, nil
}

// ListUsers returns the newest profiles for administration.
func (s *ProfileService) ListUsers(ctx context.Context, adminID string, limit int) ([]model.Profile, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx, limit)
}

// ApplyAdminAction mutates another profile on behalf of an administrator.
func (s *ProfileService) ApplyAdminAction(ctx context.Context, adminID string, action *model.AdminAction) (*model.Profile, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if action.UserID == "" {
		return nil, apperr.Invalid("user_id is required")
	}

	var updates map[string]any
	switch action.Action {
	case ActionSetBlocked:
		updates = map[string]any{"blocked": action.Blocked}

	case ActionSetTier:
		tier := action.Tier
		if tier == "" {
			tier = model.TierFree
		}
		if !tier.Valid() {
			return nil, apperr.Invalid("unknown tier " + string(tier))
		}
		updates = map[string]any{"tier": tier}

	case ActionGrantTrial:
		if action.Days != 3 && action.Days != 7 {
			return nil, apperr.Invalid("trial must be 3 or 7 days")
		}
		updates = map[string]any{"trial_ends_at": s.now().UTC().AddDate(0, 0, action.Days)}

	case ActionRevokeAccess:
		updates = map[string]any{
			"tier":            model.TierFree,
			"trial_ends_at":   nil,
			"premium_ends_at": nil,
		}

	default:
		return nil, apperr.Invalid("unknown action " + action.Action)
	}

	profile, err := s.store.UpdateProfile(ctx, action.UserID, updates)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin action applied",
		zap.String("admin_id", adminID),
		zap.String("user_id", action.UserID),
		zap.String("action", action.Action),
	)
	return profile, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
