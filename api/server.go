/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/statuses, /api/rates   Reference data
  /api/savings/*              Caisse Spéciale contracts
  /api/loans/*                Crédit Spéciale loans
  /api/admin/*                Admin operations
  /api/scenarios/*            Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go, loans.go: Handler implementations
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
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/statuses", h.ListStatuses)
		r.Get("/rates", h.ListRates)

		// Savings routes
		r.Route("/savings", func(r chi.Router) {
			r.Get("/", h.ListSavings)
			r.Post("/", h.CreateSavings)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSavings)
				r.Put("/terms", h.AmendSavingsTerms)
				r.Post("/activate", h.ActivateSavings)
				r.Post("/contributions", h.RecordContribution)
				r.Post("/recompute", h.RecomputeSavings)
				r.Get("/final-refund", h.GetFinalRefund)
				r.Get("/early-exit", h.QuoteSavingsEarlyExit)
				r.Post("/early-withdraw", h.RequestEarlyWithdraw)
				r.Post("/refund/approve", h.ApproveRefund)
				r.Post("/refund/pay", h.PayRefund)
				r.Post("/rescind", h.ConfirmRescission)
				r.Post("/reinstate", h.Reinstate)
				r.Post("/reopen", h.Reopen)
				r.Get("/journal", h.GetSavingsJournal)
			})
		})

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.Put("/terms", h.AmendLoanTerms)
				r.Post("/activate", h.ActivateLoan)
				r.Post("/reschedule", h.RescheduleLoan)
				r.Post("/payments", h.RecordPayment)
				r.Post("/refresh", h.RefreshLoan)
				r.Get("/early-exit", h.QuoteLoanEarlyExit)
				r.Post("/settle", h.SettleLoan)
				r.Get("/journal", h.GetLoanJournal)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetScenario)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
