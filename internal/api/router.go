/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, timeouts and
 * authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the ledger service.
func Routes(h *Handlers, tokenSecret []byte) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Token issuance is the only unauthenticated endpoint besides health.
	r.Post("/auth/token", h.TokenHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokenSecret))

		// The core operation.
		r.Post("/transfers", h.TransferHandler)

		// Ledger reads.
		r.Get("/transfers", h.ListAllTransfersHandler)
		r.Get("/transfers/{email}", h.TransferHistoryHandler)

		// Account reads and role probes.
		r.Get("/accounts", h.ListAccountsHandler)
		r.Get("/accounts/admin/{email}", h.AdminProbeHandler)
		r.Get("/accounts/agent/{email}", h.AgentProbeHandler)
		r.Get("/accounts/{email}", h.GetAccountHandler)
	})

	return r
}
