package routes

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/supplywise/auth-gateway/app"
	"github.com/supplywise/auth-gateway/handlers"
	"github.com/supplywise/auth-gateway/middleware"
	"github.com/supplywise/auth-gateway/utils"
)

// SetupRoutes configures all application routes and middleware.
// deps must carry both the authentication and authorization middleware.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Authentication never rejects; authorization decides
	r.Use(deps.AuthMiddleware.Authenticate)
	r.Use(middleware.NewRequestLogger(deps.Logger, "/healthz", "/readyz").Handler)
	r.Use(deps.AuthorizationMiddleware.Enforce)

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	var keyStatus handlers.KeyStatusProvider
	if deps.KeySource != nil {
		keyStatus = deps.KeySource
	}
	var decisions handlers.DecisionLister
	if deps.AccessDecisions != nil {
		decisions = deps.AccessDecisions
	}

	health := handlers.NewHealthHandler(db, keyStatus, deps.Logger)
	identity := handlers.NewIdentityHandler()

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Get("/api/auth/status", identity.HandleStatus)
	r.Get("/api/user/me", identity.HandleMe)

	if deps.KeySource != nil {
		admin := handlers.NewAdminHandler(deps.KeySource, decisions, deps.Logger)
		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/keys", admin.HandleKeys)
			r.Post("/keys/refresh", admin.HandleRefreshKeys)
			r.Get("/decisions/{subject}", admin.HandleDecisions)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}
