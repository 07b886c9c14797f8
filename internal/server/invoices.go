package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/async"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/entity"
	"github.com/invoice-ai/invoiceai/internal/review"
)

type uploadRequest struct {
	FileName  string   `json:"file_name"`
	FileNames []string `json:"file_names"`
}

type uploadResult struct {
	InvoiceID string `json:"invoice_id,omitempty"`
	FileName  string `json:"file_name"`
	Error     string `json:"error,omitempty"`
}

// uploadInvoices ingests one file (single mode) or many (batch mode) and
// queues extraction for each.
func (r *Router) uploadInvoices(w http.ResponseWriter, req *http.Request) {
	var body uploadRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, common.NewAppError("UPLOAD", "invalid request payload", common.ErrInvalidInput))
		return
	}
	names := body.FileNames
	if body.FileName != "" {
		names = append(names, body.FileName)
	}
	if len(names) == 0 {
		respondError(w, common.NewAppError("UPLOAD", "file_name or file_names is required", common.ErrInvalidInput))
		return
	}

	results := make([]uploadResult, 0, len(names))
	accepted := 0
	for _, name := range names {
		id, err := r.store.Ingest(name)
		if err != nil {
			results = append(results, uploadResult{FileName: name, Error: err.Error()})
			continue
		}
		if err := r.queue.Enqueue(req.Context(), async.Job{
			InvoiceID:   id,
			FileName:    name,
			SubmittedAt: time.Now(),
		}); err != nil {
			results = append(results, uploadResult{InvoiceID: id.String(), FileName: name, Error: err.Error()})
			continue
		}
		results = append(results, uploadResult{InvoiceID: id.String(), FileName: name})
		accepted++
	}

	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusConflict
	}
	respondJSON(w, status, map[string]any{"results": results})
}

func (r *Router) listInvoices(w http.ResponseWriter, req *http.Request) {
	var statuses []constants.InvoiceStatus
	if raw := req.URL.Query().Get("status"); raw != "" {
		s, ok := constants.ParseStatus(raw)
		if !ok {
			respondError(w, common.NewAppError("LIST", "unknown status: "+raw, common.ErrInvalidInput))
			return
		}
		statuses = append(statuses, s)
	}

	invoices := make([]*entity.Invoice, 0)
	for inv := range r.store.List(statuses...) {
		invoices = append(invoices, inv)
	}
	respondJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (r *Router) getInvoice(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	inv, err := r.store.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// retryExtraction re-queues an invoice stuck in processing after a service
// failure.
func (r *Router) retryExtraction(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	inv, err := r.store.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	if inv.Status != constants.StatusProcessing {
		respondError(w, common.NewAppError("RETRY",
			"only processing invoices can be retried", common.ErrInvalidState))
		return
	}
	if err := r.queue.Enqueue(req.Context(), async.Job{
		InvoiceID:   id,
		FileName:    inv.FileName,
		SubmittedAt: time.Now(),
	}); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (r *Router) cancelExtraction(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := r.queue.Cancel(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(constants.StatusCancelled)})
}

func (r *Router) reviewQueue(w http.ResponseWriter, req *http.Request) {
	filter := review.QueueFilter{Search: req.URL.Query().Get("q")}
	if raw := req.URL.Query().Get("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, common.NewAppError("QUEUE", "min_confidence must be numeric", common.ErrInvalidInput))
			return
		}
		filter.MinConfidence = v
	}
	if raw := req.URL.Query().Get("max_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, common.NewAppError("QUEUE", "max_confidence must be numeric", common.ErrInvalidInput))
			return
		}
		filter.MaxConfidence = v
	}

	invoices := make([]*entity.Invoice, 0)
	for inv := range r.engine.Queue(filter) {
		invoices = append(invoices, inv)
	}
	respondJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

type correctionRequest struct {
	Value string `json:"value"`
}

func (r *Router) correctField(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	name := mux.Vars(req)["name"]

	var body correctionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, common.NewAppError("CORRECT", "invalid request payload", common.ErrInvalidInput))
		return
	}
	if err := r.engine.CorrectField(id, name, body.Value); err != nil {
		respondError(w, err)
		return
	}
	inv, err := r.store.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

type resolveRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

func (r *Router) approveInvoice(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	var body resolveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, common.NewAppError("APPROVE", "invalid request payload", common.ErrInvalidInput))
		return
	}
	inv, err := r.engine.Approve(id, body.ReviewerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (r *Router) rejectInvoice(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	var body resolveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, common.NewAppError("REJECT", "invalid request payload", common.ErrInvalidInput))
		return
	}
	inv, err := r.engine.Reject(id, body.ReviewerID, body.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

type archiveRequest struct {
	Evict bool `json:"evict"`
}

func (r *Router) archiveInvoice(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	var body archiveRequest
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}
	if err := r.engine.Archive(id, body.Evict); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(constants.StatusArchived)})
}

func pathID(req *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(req)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.NewAppError("PATH", "id must be a UUID", common.ErrInvalidInput)
	}
	return id, nil
}
