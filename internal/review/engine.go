// Package review implements the review workflow engine: the only path by
// which an invoice reaches approved or rejected, and the component that
// emits archive snapshots for resolved invoices.
package review

import (
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/archive"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/entity"
	"github.com/invoice-ai/invoiceai/internal/extract"
	"github.com/invoice-ai/invoiceai/internal/store"
)

// Engine drives needs_review invoices to a terminal resolution and keeps the
// history ledger in sync with every resolution, human or automatic.
type Engine struct {
	store  *store.Store
	ledger *archive.Ledger
	logger *slog.Logger
}

func NewEngine(st *store.Store, ledger *archive.Ledger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, ledger: ledger, logger: logger}
}

// Approve resolves the invoice positively on behalf of reviewerID and emits
// an archive snapshot. Safe to call again with the same reviewer; a repeat
// never appends a second snapshot. Claiming an already auto-approved invoice
// updates only the live record: its ledger snapshot was frozen at resolution
// time with no reviewer and stays that way, so analytics derived from the
// ledger count the resolution as automatic.
func (e *Engine) Approve(id uuid.UUID, reviewerID string) (*entity.Invoice, error) {
	snap, err := e.store.Approve(id, reviewerID)
	if err != nil {
		return nil, err
	}
	e.ensureArchived(snap)
	e.logger.Info("review.approve", "invoice_id", id, "reviewer", reviewerID)
	return snap, nil
}

// Reject resolves the invoice negatively. Rejected invoices are archived all
// the same, tagged with their rejected status, for audit.
func (e *Engine) Reject(id uuid.UUID, reviewerID, reason string) (*entity.Invoice, error) {
	snap, err := e.store.Reject(id, reviewerID, reason)
	if err != nil {
		return nil, err
	}
	e.ensureArchived(snap)
	e.logger.Info("review.reject", "invoice_id", id, "reviewer", reviewerID, "reason", reason)
	return snap, nil
}

// CorrectField forwards a per-field correction made during review.
func (e *Engine) CorrectField(id uuid.UUID, fieldName, newValue string) error {
	return e.store.CorrectField(id, fieldName, newValue)
}

// HandleExtractionResult records a completed extraction. When every field
// clears auto-approve the invoice resolves without a reviewer and its
// snapshot goes straight to the ledger.
func (e *Engine) HandleExtractionResult(id uuid.UUID, fields []extract.Field) (constants.InvoiceStatus, error) {
	status, err := e.store.CompleteExtraction(id, fields)
	if err != nil {
		return "", err
	}
	if status == constants.StatusApproved {
		if snap, err := e.store.GetByID(id); err == nil {
			e.ensureArchived(snap)
		}
	}
	return status, nil
}

// Archive finalizes a resolved invoice: the live record moves to archived
// and, when evict is set, leaves the active store entirely. The ledger keeps
// the snapshot either way. Unresolved invoices are refused before anything
// mutates; the ledger only ever holds resolved snapshots.
func (e *Engine) Archive(id uuid.UUID, evict bool) error {
	snap, err := e.store.GetByID(id)
	if err != nil {
		return err
	}
	if !snap.Status.Resolved() {
		return common.NewAppError("ARCHIVE",
			"invoice is not resolved: "+string(snap.Status), common.ErrInvalidTransition)
	}
	e.ensureArchived(snap)
	if err := e.store.MarkArchived(id); err != nil {
		return err
	}
	if evict {
		return e.store.Evict(id)
	}
	return nil
}

// QueueFilter narrows the review queue the way the dashboard filter bar
// does: an overall-confidence window plus a free-text match on the file name
// or any field value.
type QueueFilter struct {
	MinConfidence float64
	MaxConfidence float64
	Search        string
}

// Queue yields the invoices pending human review, oldest first, narrowed by
// the filter. A zero MaxConfidence means no upper bound.
func (e *Engine) Queue(filter QueueFilter) iter.Seq[*entity.Invoice] {
	pending := e.store.List(constants.StatusNeedsReview)
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	return func(yield func(*entity.Invoice) bool) {
		for inv := range pending {
			if inv.OverallConfidence < filter.MinConfidence {
				continue
			}
			if filter.MaxConfidence > 0 && inv.OverallConfidence > filter.MaxConfidence {
				continue
			}
			if search != "" && !matches(inv, search) {
				continue
			}
			if !yield(inv) {
				return
			}
		}
	}
}

func matches(inv *entity.Invoice, search string) bool {
	if strings.Contains(strings.ToLower(inv.FileName), search) {
		return true
	}
	for _, f := range inv.Fields {
		if strings.Contains(strings.ToLower(f.Value), search) {
			return true
		}
	}
	return false
}

// ensureArchived appends the snapshot unless the ledger already holds one
// for this invoice. Keeps repeated resolutions from duplicating history.
func (e *Engine) ensureArchived(snap *entity.Invoice) {
	if _, ok := e.ledger.Find(snap.ID); ok {
		return
	}
	e.ledger.Append(snap)
}
