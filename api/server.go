/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Context-based routing with a composable middleware stack and RESTful
  route patterns.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique id per request for tracing
  4. CORS:       cross-origin requests for browser-based clients

ROUTE GROUPS:
  /api/v1/wallet/topup              POST   credit a user wallet from treasury
  /api/v1/wallet/bonus               POST   credit a user wallet from revenue
  /api/v1/wallet/spend                POST   debit a user wallet into revenue
  /api/v1/wallet/{userId}/balance    GET    current balance
  /api/v1/wallet/{userId}/ledger     GET    paginated ledger history
  /api/v1/wallet/{userId}/stats      GET    aggregate credit/debit totals

SEE ALSO:
  handlers.go: handler implementations
  cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds a chi.Mux wired to h's handlers.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1/wallet", func(r chi.Router) {
		r.Post("/topup", h.Topup)
		r.Post("/bonus", h.Bonus)
		r.Post("/spend", h.Spend)

		r.Route("/{userId}", func(r chi.Router) {
			r.Get("/balance", h.Balance)
			r.Get("/ledger", h.Ledger)
			r.Get("/stats", h.Stats)
		})
	})

	return r
}
