// Package api exposes invoice processing over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/reconcile"
	"github.com/agenticap/invoice-cli/internal/store"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(cfg *config.Config, st store.Store, proc Processor, rc *reconcile.Reconciler) http.Handler {
	h := &Handlers{
		cfg:        cfg,
		store:      st,
		processor:  proc,
		reconciler: rc,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/capabilities", h.Capabilities)

		// Processing.
		r.Post("/invoices", h.ProcessInvoice)

		// Stored invoices.
		r.Get("/invoices", h.ListInvoices)
		r.Get("/invoices/{id}", h.GetInvoice)
		r.Get("/invoices/{id}/report", h.GetInvoiceReport)

		// Reconciliation without processing.
		r.Post("/reconcile", h.Reconcile)
		r.Post("/reconcile/batch", h.ReconcileBatch)

		// Analytics.
		r.Get("/analytics/summary", h.AnalyticsSummary)
	})

	return r
}
