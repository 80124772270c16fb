/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the collector app

ROUTE GROUPS:
  /api/classes/*    Class-day views, tallies, supervisors
  /api/students/*   Enrolment, history, prepayments
  /api/records/*    Record maintenance
  /api/settings/*   Default due amount
  /api/summary      School-wide totals
  /api/cron/*       Manual daily sweep (secret protected)
  /api/sweeps       Sweep history
  /healthz          Liveness

SECURITY NOTE:
  Only the cron endpoint checks a credential. Everything else expects to sit
  behind the school's authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/classes", func(r chi.Router) {
			r.Get("/", h.ListClasses)
			r.Post("/", h.CreateClass)
			r.Put("/{id}/supervisor", h.AssignSupervisor)
			r.Get("/{id}/students", h.ListClassStudents)
			r.Get("/{id}/records", h.GetClassDay)
			r.Get("/{id}/records/{status}", h.GetClassDayByStatus)
			r.Get("/{id}/summary", h.GetClassDaySummary)
			r.Post("/{id}/tally", h.SubmitTally)
		})

		r.Route("/students", func(r chi.Router) {
			r.Post("/", h.CreateStudent)
			r.Get("/{id}/records", h.GetStudentRecords)
			r.Post("/{id}/prepayments", h.CreatePrepayment)
		})

		r.Route("/records", func(r chi.Router) {
			r.Patch("/{id}/status", h.UpdateRecordStatus)
			r.Put("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})

		r.Get("/settings/amount", h.GetDueAmount)
		r.Put("/settings/amount", h.SetDueAmount)
		r.Get("/summary", h.GetSchoolSummary)

		r.Post("/cron/daily-records", h.TriggerDailySweep)
		r.Get("/sweeps", h.ListSweepRuns)
	})

	return r
}
