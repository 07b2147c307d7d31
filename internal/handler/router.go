package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Characters    *CharacterHandler
	Personas      *PersonaHandler
	Profiles      *ProfileHandler
	Billing       *BillingHandler
}

// RouterConfig holds the cross-cutting settings of the router.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Wrap, when set, wraps the whole router. It is used for panic reporting.
	Wrap func(http.Handler) http.Handler
}

// NewRouter builds the HTTP routes of the API.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", h.Billing.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.TrackUser)
			if cfg.RateLimitRequests > 0 {
				r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			}

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.Conversations.Start)
				r.Post("/ensure", h.Conversations.Ensure)

				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", h.Conversations.Delete)
					r.Post("/restart", h.Conversations.Restart)
					r.Put("/persona", h.Conversations.SetPersona)
					r.Get("/messages", h.Messages.List)
					r.Post("/messages", h.Messages.Send)
				})
			})

			r.Route("/characters", func(r chi.Router) {
				r.Get("/", h.Characters.List)
				r.Post("/", h.Characters.Create)
				r.Post("/generate", h.Characters.Generate)
				r.Get("/{id}", h.Characters.Get)
			})

			r.Get("/personas", h.Personas.List)
			r.Post("/personas", h.Personas.Create)

			r.Get("/me", h.Profiles.Me)
			r.Put("/me/settings", h.Profiles.UpdateSettings)

			r.Get("/admin/users", h.Profiles.ListUsers)
			r.Post("/admin/users", h.Profiles.AdminAction)
		})
	})

	if cfg.Wrap != nil {
		return cfg.Wrap(r)
	}
	return r
}
