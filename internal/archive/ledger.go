// Package archive implements the history ledger: an append-only,
// insertion-ordered collection of resolved invoice snapshots. Entries are
// deep copies frozen at archive time; nothing here is ever mutated.
package archive

import (
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/entity"
)

// Sink receives every appended record, so history can survive a restart.
// Sink failures are logged and do not block the in-memory ledger; the
// ledger is canonical for the lifetime of the process.
type Sink interface {
	Persist(rec *entity.ArchiveRecord) error
}

// Ledger is the in-memory history archive.
type Ledger struct {
	logger *slog.Logger
	sink   Sink
	now    func() time.Time

	mu      sync.RWMutex
	records []*entity.ArchiveRecord
}

type Option func(*Ledger)

// WithSink attaches a persistence sink for appended records.
func WithSink(sink Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLedger(logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{logger: logger, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append snapshots the invoice into the ledger. The snapshot keeps the
// resolution status (approved or rejected) for audit queries; the caller is
// responsible for moving the live record to archived afterwards.
func (l *Ledger) Append(inv *entity.Invoice) *entity.ArchiveRecord {
	rec := &entity.ArchiveRecord{
		Invoice:    *inv.Clone(),
		ArchivedAt: l.now().UTC(),
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Persist(rec); err != nil {
			l.logger.Error("archive.persist.failed", "invoice_id", rec.ID, "error", err)
		}
	}
	l.logger.Info("archive.append", "invoice_id", rec.ID, "status", rec.Status)
	return rec
}

// Restore preloads records (from a persistence sink) without re-persisting
// them. Called once on startup, before any Append.
func (l *Ledger) Restore(records []*entity.ArchiveRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, records...)
}

// Query returns a lazy, restartable sequence over the records matching the
// predicate, in insertion order. A nil predicate yields everything.
// Consumers must treat yielded records as read-only.
func (l *Ledger) Query(pred func(*entity.ArchiveRecord) bool) iter.Seq[*entity.ArchiveRecord] {
	l.mu.RLock()
	snapshot := make([]*entity.ArchiveRecord, len(l.records))
	copy(snapshot, l.records)
	l.mu.RUnlock()

	return func(yield func(*entity.ArchiveRecord) bool) {
		for _, rec := range snapshot {
			if pred != nil && !pred(rec) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// ByStatus yields records whose resolution status matches.
func (l *Ledger) ByStatus(status constants.InvoiceStatus) iter.Seq[*entity.ArchiveRecord] {
	return l.Query(func(rec *entity.ArchiveRecord) bool { return rec.Status == status })
}

// Find returns the first record archived for the given invoice id.
func (l *Ledger) Find(id uuid.UUID) (*entity.ArchiveRecord, bool) {
	for rec := range l.Query(func(rec *entity.ArchiveRecord) bool { return rec.ID == id }) {
		return rec, true
	}
	return nil, false
}

// Len reports the number of archived records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
