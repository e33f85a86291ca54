/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend clients

ROUTE GROUPS:
  /api/hierarchy/*  Approval chain configuration
  /api/leaves/*     Leave applications and transitions
  /api/balances/*   Balance summaries
  /api/admin/*      Allocation management
  /healthz          Liveness probe

SECURITY NOTE:
  No authentication middleware. All endpoints are public; put an
  auth proxy in front before exposing this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Approval chain configuration
		r.Route("/hierarchy", func(r chi.Router) {
			r.Post("/approvers", h.AddApprover)
			r.Delete("/approvers/{id}", h.RemoveApprover)
			r.Get("/chain", h.GetChain)
		})

		// Leave applications
		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.SubmitLeave)
			r.Get("/", h.ListLeaves)
			r.Get("/pending", h.ListPendingLeaves)
			r.Get("/{id}", h.GetLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
		})

		// Balances
		r.Get("/balances/{officerID}", h.GetBalance)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/allocations", h.SetAllocation)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
