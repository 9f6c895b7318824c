/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/types/*       Leave type catalog
  /api/employees/*   Directory projection and balances
  /api/requests/*    Request workflow
  /api/companies/*   Company-level views
  /api/admin/*       Adjustments, rollover, seeding
  /api/holidays      Holiday registry
  /api/working-days  Business-day preview
  /api/audit         Balance mutation trail
  /healthz           Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// Leave type catalog
		r.Route("/types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Post("/", h.CreateLeaveType)
			r.Get("/{id}", h.GetLeaveType)
			r.Put("/{id}", h.UpdateLeaveType)
			r.Post("/{id}/deactivate", h.DeactivateLeaveType)
			r.Post("/{id}/reactivate", h.ReactivateLeaveType)
		})

		// Employees and balances
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balances", h.EmployeeBalances)
			r.Post("/{id}/balances/initialize", h.InitializeBalances)
		})

		// Request workflow
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/submit", h.SubmitRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Company views
		r.Route("/companies", func(r chi.Router) {
			r.Get("/{id}/summary", h.CompanySummary)
			r.Get("/{id}/on-leave", h.OnLeave)
		})

		// Admin operations
		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/rollover", h.TriggerRollover)
			r.Post("/seed", h.SeedDefaults)
		})

		// Holiday registry and calendar
		r.Get("/holidays", h.ListHolidays)
		r.Post("/holidays", h.CreateHoliday)
		r.Get("/working-days", h.PreviewWorkingDays)

		// Audit trail
		r.Get("/audit", h.AuditTrail)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "leave-engine",
			"endpoints": []string{
				"/api/types", "/api/employees", "/api/requests",
				"/api/companies/{id}/summary", "/api/companies/{id}/on-leave",
				"/api/holidays", "/api/working-days", "/api/audit",
			},
		})
	})

	return r
}
