package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/promptforge-app/promptforge/internal/api"
	"github.com/promptforge-app/promptforge/internal/audit"
	"github.com/promptforge-app/promptforge/internal/auth"
	"github.com/promptforge-app/promptforge/internal/config"
	"github.com/promptforge-app/promptforge/internal/database"
	mw "github.com/promptforge-app/promptforge/internal/middleware"
	"github.com/promptforge-app/promptforge/internal/nats"
	"github.com/promptforge-app/promptforge/internal/prompts"
)

// RouterDeps collects everything the router wires together. Construction
// happens in main; the router only arranges routes and middleware.
type RouterDeps struct {
	Config         *config.Config
	Logger         *slog.Logger
	Pool           *pgxpool.Pool
	NATS           *nats.Client
	Redis          *redis.Client
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	PromptsHandler *prompts.Handler
	AuditHandler   *audit.Handler
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(deps.Config.CORS.AllowedOrigins)))

	r.Get("/health/live", handleLiveness)
	r.Get("/health/ready", handleReadiness(deps.Pool, deps.Redis, deps.NATS))
	r.Handle("/metrics", promhttp.Handler())

	authLimiter := mw.NewRateLimiter(deps.Redis, "auth", deps.Config.Quota.RateLimit, deps.Config.Quota.RateWindowS)
	questionsLimiter := mw.NewRateLimiter(deps.Redis, "questions", deps.Config.Quota.RateLimit, deps.Config.Quota.RateWindowS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Middleware)
				r.Post("/register", deps.AuthHandler.Register)
				r.Post("/login", deps.AuthHandler.Login)
				r.Post("/refresh", deps.AuthHandler.Refresh)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware(deps.AuthService))
				r.Post("/logout", deps.AuthHandler.Logout)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(deps.AuthService))

			r.Post("/prompts/generate", deps.PromptsHandler.Generate)
			r.With(questionsLimiter.Middleware).Post("/prompts/questions", deps.PromptsHandler.Questions)
			r.Get("/quota", deps.PromptsHandler.QuotaStatus)
			r.Get("/audit", deps.AuditHandler.List)
		})
	})

	return r
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	api.JSONMessage(w, http.StatusOK, "ok")
}

// handleReadiness reports whether the dependencies the request path needs are
// reachable. NATS being down degrades the audit trail but not generation, so
// it is reported without failing readiness.
func handleReadiness(pool *pgxpool.Pool, redisClient *redis.Client, natsClient *nats.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.HealthCheck(ctx, pool); err != nil {
			api.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unavailable",
				"database": err.Error(),
			})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			api.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"redis":  err.Error(),
			})
			return
		}

		status := map[string]string{"status": "ok", "nats": "connected"}
		if natsClient == nil || !natsClient.Healthy() {
			status["nats"] = "disconnected"
		}
		api.JSON(w, http.StatusOK, status)
	}
}
