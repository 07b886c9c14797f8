// Package store implements the invoice record store: the authoritative
// in-memory collection of invoices and their lifecycle state. Every status
// transition goes through a guarded method here; callers never mutate an
// invoice directly, they only ever see snapshots.
package store

import (
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/entity"
	"github.com/invoice-ai/invoiceai/internal/extract"
	"github.com/invoice-ai/invoiceai/internal/policy"
)

// record pairs an invoice with its own lock: extraction completion and
// review corrections on the same invoice must never interleave, while
// operations on different invoices proceed concurrently.
type record struct {
	mu  sync.Mutex
	inv *entity.Invoice
}

// Store is the invoice record store.
type Store struct {
	logger     *slog.Logger
	thresholds policy.Thresholds

	mu       sync.RWMutex
	invoices map[uuid.UUID]*record

	notify func(snapshot *entity.Invoice)
	now    func() time.Time
}

type Option func(*Store)

// WithNotify registers a callback invoked with a snapshot after every status
// transition. Used by the event hub; the callback must not call back into
// the store.
func WithNotify(fn func(snapshot *entity.Invoice)) Option {
	return func(s *Store) { s.notify = fn }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(thresholds policy.Thresholds, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger:     logger,
		thresholds: thresholds,
		invoices:   make(map[uuid.UUID]*record),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Thresholds returns the confidence thresholds the store classifies with.
func (s *Store) Thresholds() policy.Thresholds { return s.thresholds }

// Ingest creates a new record in uploaded status and returns its id.
// Fails with ErrDuplicateUpload if the same file name is still mid-flight
// (uploaded or processing); re-uploading an already-resolved file is fine.
func (s *Store) Ingest(fileName string) (uuid.UUID, error) {
	if fileName == "" {
		return uuid.Nil, common.NewAppError("INGEST", "file name is required", common.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.invoices {
		r.mu.Lock()
		inflight := r.inv.FileName == fileName &&
			(r.inv.Status == constants.StatusUploaded || r.inv.Status == constants.StatusProcessing)
		r.mu.Unlock()
		if inflight {
			return uuid.Nil, common.NewAppError("INGEST", "file already mid-flight: "+fileName, common.ErrDuplicateUpload)
		}
	}

	inv := &entity.Invoice{
		ID:        uuid.New(),
		FileName:  fileName,
		Status:    constants.StatusUploaded,
		CreatedAt: s.now().UTC(),
	}
	s.invoices[inv.ID] = &record{inv: inv}
	s.logger.Info("store.ingest", "invoice_id", inv.ID, "file_name", fileName)
	s.emit(inv)
	return inv.ID, nil
}

// BeginExtraction moves uploaded -> processing.
func (s *Store) BeginExtraction(id uuid.UUID) error {
	return s.transition(id, "store.extraction_started", func(inv *entity.Invoice) error {
		if inv.Status != constants.StatusUploaded {
			return transitionErr(inv.Status, constants.StatusProcessing)
		}
		inv.Status = constants.StatusProcessing
		return nil
	})
}

// CancelExtraction abandons an in-flight extraction: processing -> cancelled.
// A late result for a cancelled invoice is dropped by CompleteExtraction.
func (s *Store) CancelExtraction(id uuid.UUID) error {
	return s.transition(id, "store.extraction_cancelled", func(inv *entity.Invoice) error {
		if inv.Status != constants.StatusProcessing {
			return transitionErr(inv.Status, constants.StatusCancelled)
		}
		inv.Status = constants.StatusCancelled
		return nil
	})
}

// CompleteExtraction records the service result and classifies the invoice:
// auto_approve across every field short-circuits to approved (no reviewer),
// anything less lands in needs_review. A result for a cancelled invoice is
// dropped and reported as ErrExtractionCancelled so the caller can log it;
// the invoice stays cancelled.
func (s *Store) CompleteExtraction(id uuid.UUID, fields []extract.Field) (constants.InvoiceStatus, error) {
	if len(fields) == 0 {
		return "", common.NewAppError("EXTRACT_RESULT", "field list is empty", common.ErrInvalidInput)
	}

	var status constants.InvoiceStatus
	err := s.transition(id, "store.extraction_completed", func(inv *entity.Invoice) error {
		if inv.Status == constants.StatusCancelled {
			return common.NewAppError("EXTRACT_RESULT", "late result dropped", common.ErrExtractionCancelled)
		}
		if inv.Status != constants.StatusProcessing {
			return transitionErr(inv.Status, constants.StatusNeedsReview)
		}

		converted := make([]entity.ExtractedField, len(fields))
		for i, f := range fields {
			converted[i] = entity.ExtractedField{
				Name:          f.Key,
				Value:         f.Value,
				OriginalValue: f.Value,
				Confidence:    f.Confidence,
			}
		}

		// Every field is scored through the policy exactly once, here.
		tier := s.thresholds.Aggregate(converted)
		inv.Fields = converted
		inv.RecomputeConfidence()
		if tier == policy.TierAutoApprove {
			inv.Status = constants.StatusApproved
			t := s.now().UTC()
			inv.ResolvedAt = &t
		} else {
			inv.Status = constants.StatusNeedsReview
		}
		status = inv.Status
		return nil
	})
	return status, err
}

// CorrectField updates the working value of one field during review.
// OriginalValue and Confidence are untouched: corrections must not
// retroactively improve extraction confidence, the audit trail depends on it.
func (s *Store) CorrectField(id uuid.UUID, fieldName, newValue string) error {
	r, err := s.lookup(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inv.Status != constants.StatusNeedsReview {
		return common.NewAppError("CORRECT_FIELD",
			"correction outside needs_review on "+string(r.inv.Status), common.ErrInvalidState)
	}
	f, ok := r.inv.Field(fieldName)
	if !ok {
		return common.NewAppError("CORRECT_FIELD", "unknown field: "+fieldName, common.ErrNotFound)
	}
	f.Value = newValue
	r.inv.RecomputeConfidence()
	s.logger.Info("store.correct_field", "invoice_id", id, "field", fieldName)
	return nil
}

// Approve resolves a pending invoice positively. Allowed from needs_review,
// and from approved as an idempotent no-op when the reviewer matches (or the
// invoice was auto-approved and is being claimed). Approving a rejected
// invoice is a conflict; the original resolution wins.
func (s *Store) Approve(id uuid.UUID, reviewerID string) (*entity.Invoice, error) {
	if reviewerID == "" {
		return nil, common.NewAppError("APPROVE", "reviewer identity is required", common.ErrInvalidInput)
	}
	return s.resolve(id, "store.approve", func(inv *entity.Invoice) (bool, error) {
		switch inv.Status {
		case constants.StatusNeedsReview:
			inv.Status = constants.StatusApproved
			t := s.now().UTC()
			inv.ResolvedAt = &t
			inv.ResolvedBy = &reviewerID
			return true, nil
		case constants.StatusApproved:
			if inv.ResolvedBy == nil {
				// auto-approved; the reviewer takes ownership
				inv.ResolvedBy = &reviewerID
				return true, nil
			}
			if *inv.ResolvedBy == reviewerID {
				return false, nil // idempotent
			}
			return false, common.NewAppError("APPROVE",
				"already approved by "+*inv.ResolvedBy, common.ErrConflict)
		case constants.StatusRejected:
			return false, common.NewAppError("APPROVE", "invoice was rejected", common.ErrConflict)
		default:
			return false, transitionErr(inv.Status, constants.StatusApproved)
		}
	})
}

// Reject resolves a pending invoice negatively. Rejection is always a human
// decision, there is no auto-reject path, and only needs_review qualifies.
func (s *Store) Reject(id uuid.UUID, reviewerID, reason string) (*entity.Invoice, error) {
	if reviewerID == "" {
		return nil, common.NewAppError("REJECT", "reviewer identity is required", common.ErrInvalidInput)
	}
	return s.resolve(id, "store.reject", func(inv *entity.Invoice) (bool, error) {
		switch inv.Status {
		case constants.StatusNeedsReview:
			inv.Status = constants.StatusRejected
			t := s.now().UTC()
			inv.ResolvedAt = &t
			inv.ResolvedBy = &reviewerID
			if reason != "" {
				inv.RejectReason = &reason
			}
			return true, nil
		case constants.StatusRejected:
			if inv.ResolvedBy != nil && *inv.ResolvedBy == reviewerID {
				return false, nil // idempotent
			}
			return false, common.NewAppError("REJECT", "already rejected", common.ErrConflict)
		case constants.StatusApproved:
			return false, common.NewAppError("REJECT", "invoice was approved", common.ErrConflict)
		default:
			return false, transitionErr(inv.Status, constants.StatusRejected)
		}
	})
}

// MarkArchived moves a resolved invoice to archived after its snapshot has
// been appended to the history ledger.
func (s *Store) MarkArchived(id uuid.UUID) error {
	return s.transition(id, "store.archived", func(inv *entity.Invoice) error {
		if !inv.Status.Resolved() {
			return transitionErr(inv.Status, constants.StatusArchived)
		}
		inv.Status = constants.StatusArchived
		return nil
	})
}

// Evict removes an archived invoice from the active store. The ledger keeps
// its snapshot; ids in the archive may outlive the active store.
func (s *Store) Evict(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.invoices[id]
	if !ok {
		return common.NewAppError("EVICT", id.String(), common.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inv.Status != constants.StatusArchived {
		return common.NewAppError("EVICT",
			"only archived invoices may be evicted", common.ErrInvalidState)
	}
	delete(s.invoices, id)
	s.logger.Info("store.evict", "invoice_id", id)
	return nil
}

// GetByID returns a snapshot of the invoice.
func (s *Store) GetByID(id uuid.UUID) (*entity.Invoice, error) {
	r, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inv.Clone(), nil
}

// List returns a lazy, restartable sequence over a snapshot of the store
// taken at call time, oldest first. With statuses given, only matching
// invoices are yielded. Concurrent mutation never tears a yielded invoice.
func (s *Store) List(statuses ...constants.InvoiceStatus) iter.Seq[*entity.Invoice] {
	snapshot := s.snapshot()
	return func(yield func(*entity.Invoice) bool) {
		for _, inv := range snapshot {
			if len(statuses) > 0 && !statusIn(inv.Status, statuses) {
				continue
			}
			if !yield(inv) {
				return
			}
		}
	}
}

// Len reports the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.invoices)
}

// Clear drops every record. Session teardown only.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = make(map[uuid.UUID]*record)
	s.logger.Info("store.clear")
}

func (s *Store) snapshot() []*entity.Invoice {
	s.mu.RLock()
	records := make([]*record, 0, len(s.invoices))
	for _, r := range s.invoices {
		records = append(records, r)
	}
	s.mu.RUnlock()

	out := make([]*entity.Invoice, 0, len(records))
	for _, r := range records {
		r.mu.Lock()
		out = append(out, r.inv.Clone())
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) lookup(id uuid.UUID) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.invoices[id]
	if !ok {
		return nil, common.NewAppError("LOOKUP", id.String(), common.ErrNotFound)
	}
	return r, nil
}

// transition applies fn under the invoice lock and emits a notification on
// success. fn either mutates fully or returns an error leaving the invoice
// untouched; there is no partial application.
func (s *Store) transition(id uuid.UUID, event string, fn func(*entity.Invoice) error) error {
	r, err := s.lookup(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(r.inv); err != nil {
		return err
	}
	s.logger.Info(event, "invoice_id", id, "status", r.inv.Status)
	s.emit(r.inv)
	return nil
}

// resolve is transition's sibling for the resolution operations, which may
// legally repeat as no-ops. fn reports whether it changed the invoice;
// repeats that change nothing emit no event and log nothing.
func (s *Store) resolve(id uuid.UUID, event string, fn func(*entity.Invoice) (bool, error)) (*entity.Invoice, error) {
	r, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	changed, err := fn(r.inv)
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info(event, "invoice_id", id, "status", r.inv.Status)
		s.emit(r.inv)
	}
	return r.inv.Clone(), nil
}

func (s *Store) emit(inv *entity.Invoice) {
	if s.notify != nil {
		s.notify(inv.Clone())
	}
}

func statusIn(status constants.InvoiceStatus, set []constants.InvoiceStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

func transitionErr(from, to constants.InvoiceStatus) error {
	return common.NewAppError("TRANSITION",
		string(from)+" -> "+string(to), common.ErrInvalidTransition)
}
