// Route registration and go-chi router setup.
// Public routes (/health, /auth/token) vs JWT-protected routes (/api/v1/*).
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinico/clinico/internal/api/handlers"
	apmiddleware "github.com/clinico/clinico/internal/api/middleware"
	"github.com/clinico/clinico/internal/domain/embedding"
	"github.com/clinico/clinico/internal/domain/generate"
	pkgauth "github.com/clinico/clinico/pkg/auth"
)

// Deps are the wired services the router exposes over HTTP.
type Deps struct {
	Signer       *pkgauth.TokenSigner
	APIUser      string
	APIPassHash  string
	Orchestrator *generate.Orchestrator
	Embeddings   *embedding.Store
}

// NewRouter creates and configures the chi router with all routes.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES (no auth required) =====

	// Health check — unauthenticated, used by load balancers and health probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handlers.NewAuthHandler(deps.Signer, deps.APIUser, deps.APIPassHash)
	r.Post("/auth/token", authHandler.Token) // POST /auth/token

	// ===== PROTECTED ROUTES (JWT required) =====

	generateHandler := handlers.NewGenerateHandler(deps.Orchestrator)
	searchHandler := handlers.NewSearchHandler(deps.Embeddings)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.Auth(deps.Signer))

		r.Post("/generate", generateHandler.Generate) // POST /api/v1/generate
		r.Post("/search", searchHandler.Search)       // POST /api/v1/search
	})

	return r
}
