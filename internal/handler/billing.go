package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/service"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

const maxWebhookBytes = 64 * 1024

// BillingHandler receives payment confirmations.
type BillingHandler struct {
	service       *service.BillingService
	webhookSecret string
	logger        *logger.Logger
}

// NewBillingHandler creates a new billing handler.
func NewBillingHandler(svc *service.BillingService, webhookSecret string, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		service:       svc,
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

// StripeWebhook handles POST /api/v1/webhooks/stripe
func (h *BillingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		writeError(w, r, h.logger, apperr.New(apperr.KindStorageFailed, "webhook not configured"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, h.logger, apperr.Invalid("failed to read body"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		h.logger.Warn("stripe webhook signature failed", zap.Error(err))
		writeError(w, r, h.logger, apperr.Invalid("signature verification failed"))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			writeError(w, r, h.logger, apperr.Invalid("invalid session payload"))
			return
		}

		plan := service.Plan(sess.Metadata["plan"])
		if _, err := h.service.ConfirmPayment(r.Context(), sess.ClientReferenceID, plan, sess.ID); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	default:
		h.logger.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
