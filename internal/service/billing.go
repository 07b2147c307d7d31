package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/model"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// Plan is a purchasable premium period.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// Days returns the length of the plan in days.
func (p Plan) Days() (int, bool) {
	switch p {
	case PlanMonthly:
		return 30, true
	case PlanYearly:
		return 365, true
	}
	return 0, false
}

// BillingService applies the entitlement side effect of confirmed payments.
type BillingService struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

// NewBillingService creates a new billing service.
func NewBillingService(store Store, log *logger.Logger) *BillingService {
	return &BillingService{
		store:  store,
		logger: log.Named("billing"),
		now:    time.Now,
	}
}

// ConfirmPayment upgrades the user to premium until now plus the plan length.
// Admins keep their tier and only receive the end date.
func (s *BillingService) ConfirmPayment(ctx context.Context, userID string, plan Plan, reference string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperr.Invalid("payment is missing the user reference")
	}
	days, ok := plan.Days()
	if !ok {
		return nil, apperr.Invalid("unknown plan " + string(plan))
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"premium_ends_at":   s.now().UTC().AddDate(0, 0, days),
		"payment_reference": reference,
	}
	if profile.Tier != model.TierAdmin {
		updates["tier"] = model.TierPremium
	}

	updated, err := s.store.UpdateProfile(ctx, userID, updates)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment confirmed",
		zap.String("user_id", userID),
		zap.String("plan", string(plan)),
		zap.String("reference", reference),
	)
	return updated, nil
}
