package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	BroadcastRoles     []model.Role
	Logger             *logger.Logger

	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Broadcasts    *BroadcastHandler
	Calls         *CallHandler
	Inbox         *InboxHandler
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			// Unauthenticated traffic is limited per IP before token checks.
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RecordUser)
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", cfg.Conversations.List)
			r.Post("/", cfg.Conversations.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Conversations.Get)
				r.Patch("/settings", cfg.Conversations.UpdateSettings)
				r.Post("/leave", cfg.Conversations.Leave)
				r.Post("/participants", cfg.Conversations.AddParticipants)
				r.Post("/read", cfg.Conversations.MarkRead)

				r.Get("/messages", cfg.Messages.List)
				r.Post("/messages", cfg.Messages.Send)
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Patch("/", cfg.Messages.Edit)
			r.Delete("/", cfg.Messages.Delete)
			r.Post("/reactions", cfg.Messages.React)
			r.Post("/pin", cfg.Messages.Pin)
		})

		r.Route("/broadcasts", func(r chi.Router) {
			r.Get("/", cfg.Broadcasts.List)
			r.With(middleware.RequireRole(cfg.BroadcastRoles...)).Post("/", cfg.Broadcasts.Send)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Broadcasts.Get)
				r.Post("/read", cfg.Broadcasts.MarkRead)
				r.Delete("/", cfg.Broadcasts.Deactivate)
			})
		})

		r.Get("/calls/signals", cfg.Calls.Poll)
		r.Post("/calls/signals", cfg.Calls.Send)

		r.Get("/unread", cfg.Inbox.Unread)
		r.Get("/contacts", cfg.Inbox.Contacts)
	})

	return r
}
