package server

import (
	"net/http"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/common"
)

// listHistory returns the archive as JSON, newest first (the dashboard
// prepends fresh resolutions; the ledger itself stays insertion-ordered).
func (r *Router) listHistory(w http.ResponseWriter, req *http.Request) {
	var status constants.InvoiceStatus
	if raw := req.URL.Query().Get("status"); raw != "" {
		s, ok := constants.ParseStatus(raw)
		if !ok {
			respondError(w, common.NewAppError("HISTORY", "unknown status: "+raw, common.ErrInvalidInput))
			return
		}
		status = s
	}
	data, err := r.exports.LedgerJSON(status)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (r *Router) exportInvoiceJSON(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	data, err := r.exports.InvoiceJSON(id)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id.String()+`.json"`)
	_, _ = w.Write(data)
}

func (r *Router) exportInvoiceCSV(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	data, err := r.exports.InvoiceCSV(id)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id.String()+`.csv"`)
	_, _ = w.Write(data)
}

func (r *Router) exportLedgerXLSX(w http.ResponseWriter, _ *http.Request) {
	data, err := r.exports.LedgerXLSX()
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	_, _ = w.Write(data)
}

func (r *Router) exportReportPDF(w http.ResponseWriter, _ *http.Request) {
	data, err := r.exports.AnalyticsPDF(r.aggregate.Compute())
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
	_, _ = w.Write(data)
}

func (r *Router) getAnalytics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, r.aggregate.Compute())
}
