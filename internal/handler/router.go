package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/ragchat/internal/llm"
	"github.com/capitalize-ai/ragchat/internal/middleware"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

// RouterConfig holds the handlers and limits the HTTP API is built from.
// Uploads may be nil when object storage is not configured.
type RouterConfig struct {
	Logger             *logger.Logger
	Extractor          *middleware.IdentityExtractor
	Registry           *llm.Registry
	Health             *HealthHandler
	Chat               *ChatHandler
	Conversations      *ConversationHandler
	Uploads            *UploadHandler
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	// The chat stream reports auth failures as events, so it sits outside Auth.
	// Both stream routes share one limiter.
	chatLimit := middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.Extractor)
	r.Get("/", cfg.Chat.Health)
	r.With(chatLimit).Post("/", cfg.Chat.Stream)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/chat/stream", cfg.Chat.Health)
		r.With(chatLimit).Post("/chat/stream", cfg.Chat.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Extractor))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.Extractor))

			r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
				WriteModels(w, cfg.Registry)
			})

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", cfg.Conversations.List)
				r.Get("/{id}", cfg.Conversations.Get)
				r.Delete("/{id}", cfg.Conversations.Delete)
			})
			r.Get("/search", cfg.Conversations.Search)

			if cfg.Uploads != nil {
				r.Post("/uploads", cfg.Uploads.Create)
				r.Post("/uploads/url", cfg.Uploads.Download)
			}
		})
	})

	return r
}
