package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/invoice-ai/invoiceai/internal/analytics"
	"github.com/invoice-ai/invoiceai/internal/async"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/export"
	"github.com/invoice-ai/invoiceai/internal/review"
	"github.com/invoice-ai/invoiceai/internal/store"
)

// Router wraps the mux router and the core components the handlers touch.
// The HTTP surface is a collaborator: it only reads snapshots and calls the
// guarded store/engine operations, never mutating an invoice directly.
type Router struct {
	*mux.Router
	store     *store.Store
	engine    *review.Engine
	queue     async.Queue
	aggregate *analytics.Aggregator
	exports   *export.Service
	hub       *Hub
	logger    *slog.Logger
}

// NewRouter creates the HTTP router with all routes.
func NewRouter(
	st *store.Store,
	engine *review.Engine,
	queue async.Queue,
	aggregate *analytics.Aggregator,
	exports *export.Service,
	hub *Hub,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		Router:    mux.NewRouter(),
		store:     st,
		engine:    engine,
		queue:     queue,
		aggregate: aggregate,
		exports:   exports,
		hub:       hub,
		logger:    logger,
	}

	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Upload & lifecycle
	api.HandleFunc("/invoices", r.uploadInvoices).Methods("POST")
	api.HandleFunc("/invoices", r.listInvoices).Methods("GET")
	api.HandleFunc("/invoices/{id}", r.getInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/retry", r.retryExtraction).Methods("POST")
	api.HandleFunc("/invoices/{id}/cancel", r.cancelExtraction).Methods("POST")

	// Review workflow
	api.HandleFunc("/review-queue", r.reviewQueue).Methods("GET")
	api.HandleFunc("/invoices/{id}/fields/{name}", r.correctField).Methods("PUT")
	api.HandleFunc("/invoices/{id}/approve", r.approveInvoice).Methods("POST")
	api.HandleFunc("/invoices/{id}/reject", r.rejectInvoice).Methods("POST")
	api.HandleFunc("/invoices/{id}/archive", r.archiveInvoice).Methods("POST")

	// History & exports
	api.HandleFunc("/history", r.listHistory).Methods("GET")
	api.HandleFunc("/history/{id}/export.json", r.exportInvoiceJSON).Methods("GET")
	api.HandleFunc("/history/{id}/export.csv", r.exportInvoiceCSV).Methods("GET")
	api.HandleFunc("/exports/ledger.xlsx", r.exportLedgerXLSX).Methods("GET")
	api.HandleFunc("/exports/report.pdf", r.exportReportPDF).Methods("GET")

	// Analytics
	api.HandleFunc("/analytics", r.getAnalytics).Methods("GET")

	// Live status events
	r.HandleFunc("/ws", r.hub.ServeWS)

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"invoices": r.store.Len(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps a core error onto its HTTP status.
func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, common.HTTPStatus(err), map[string]string{
		"error": err.Error(),
	})
}
