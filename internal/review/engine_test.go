package review

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/archive"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/extract"
	"github.com/invoice-ai/invoiceai/internal/policy"
	"github.com/invoice-ai/invoiceai/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *archive.Ledger) {
	t.Helper()
	st := store.New(policy.Thresholds{AutoApproveMin: 85, ReviewMin: 60}, testLogger())
	ledger := archive.NewLedger(testLogger())
	return NewEngine(st, ledger, testLogger()), st, ledger
}

func fieldsWith(confidences ...float64) []extract.Field {
	fields := make([]extract.Field, len(confidences))
	for i, c := range confidences {
		fields[i] = extract.Field{
			Key:        constants.StandardFields()[i%len(constants.StandardFields())],
			Value:      "v",
			Confidence: c,
		}
	}
	return fields
}

func ingestNeedsReview(t *testing.T, st *store.Store, name string) uuid.UUID {
	t.Helper()
	id, err := st.Ingest(name)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.BeginExtraction(id); err != nil {
		t.Fatalf("BeginExtraction: %v", err)
	}
	if _, err := st.CompleteExtraction(id, fieldsWith(95, 70)); err != nil {
		t.Fatalf("CompleteExtraction: %v", err)
	}
	return id
}

func TestApproveArchivesExactlyOnce(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id := ingestNeedsReview(t, st, "a.pdf")

	if _, err := eng.Approve(id, "rev-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("ledger len = %d, want 1", ledger.Len())
	}

	// Idempotent repeat by the same reviewer must not duplicate history.
	if _, err := eng.Approve(id, "rev-1"); err != nil {
		t.Fatalf("repeat Approve: %v", err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("ledger len after repeat = %d, want 1", ledger.Len())
	}

	rec, ok := ledger.Find(id)
	if !ok {
		t.Fatal("archived record not found")
	}
	if rec.Status != constants.StatusApproved {
		t.Fatalf("archived status = %q, want approved", rec.Status)
	}
	if rec.ResolvedBy == nil || *rec.ResolvedBy != "rev-1" {
		t.Fatalf("archived ResolvedBy = %v, want rev-1", rec.ResolvedBy)
	}
}

func TestRejectedInvoiceQueryableInArchive(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id := ingestNeedsReview(t, st, "dupe.pdf")

	if _, err := eng.Reject(id, "rev-2", "duplicate submission"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	var got []*uuid.UUID
	for rec := range ledger.ByStatus(constants.StatusRejected) {
		if rec.RejectReason == nil || *rec.RejectReason != "duplicate submission" {
			t.Fatalf("RejectReason = %v, want duplicate submission", rec.RejectReason)
		}
		cp := rec.ID
		got = append(got, &cp)
	}
	if len(got) != 1 || *got[0] != id {
		t.Fatalf("ByStatus(rejected) = %v, want [%s]", got, id)
	}

	live, err := st.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if live.Status != constants.StatusRejected {
		t.Fatalf("live status = %q, want rejected", live.Status)
	}
}

func TestAutoApproveArchivesWithoutReviewer(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id, err := st.Ingest("clean.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.BeginExtraction(id); err != nil {
		t.Fatalf("BeginExtraction: %v", err)
	}

	status, err := eng.HandleExtractionResult(id, fieldsWith(99, 96, 91))
	if err != nil {
		t.Fatalf("HandleExtractionResult: %v", err)
	}
	if status != constants.StatusApproved {
		t.Fatalf("status = %q, want approved", status)
	}

	rec, ok := ledger.Find(id)
	if !ok {
		t.Fatal("auto-approved invoice missing from ledger")
	}
	if rec.ResolvedBy != nil {
		t.Fatalf("ResolvedBy = %q, want nil for auto-approval", *rec.ResolvedBy)
	}
}

func TestClaimAfterAutoApproveUpdatesLiveRecordOnly(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id, err := st.Ingest("clean.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.BeginExtraction(id); err != nil {
		t.Fatalf("BeginExtraction: %v", err)
	}
	if _, err := eng.HandleExtractionResult(id, fieldsWith(99, 96, 91)); err != nil {
		t.Fatalf("HandleExtractionResult: %v", err)
	}

	// A reviewer claiming the auto-approval is recorded on the live
	// record; the ledger snapshot stays frozen with no reviewer.
	if _, err := eng.Approve(id, "rev-1"); err != nil {
		t.Fatalf("claim Approve: %v", err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("ledger len = %d, want 1", ledger.Len())
	}
	rec, ok := ledger.Find(id)
	if !ok {
		t.Fatal("auto-approved invoice missing from ledger")
	}
	if rec.ResolvedBy != nil {
		t.Fatalf("snapshot ResolvedBy = %q, want nil", *rec.ResolvedBy)
	}
	live, err := st.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if live.ResolvedBy == nil || *live.ResolvedBy != "rev-1" {
		t.Fatalf("live ResolvedBy = %v, want rev-1", live.ResolvedBy)
	}
}

func TestNeedsReviewResultNotArchived(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id, err := st.Ingest("odd.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.BeginExtraction(id); err != nil {
		t.Fatalf("BeginExtraction: %v", err)
	}

	status, err := eng.HandleExtractionResult(id, fieldsWith(98, 95, 68, 45))
	if err != nil {
		t.Fatalf("HandleExtractionResult: %v", err)
	}
	if status != constants.StatusNeedsReview {
		t.Fatalf("status = %q, want needs_review", status)
	}
	if ledger.Len() != 0 {
		t.Fatalf("ledger len = %d, want 0 before resolution", ledger.Len())
	}
}

func TestArchiveMovesLiveRecordAndKeepsSnapshot(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id := ingestNeedsReview(t, st, "done.pdf")
	if _, err := eng.Approve(id, "rev-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if err := eng.Archive(id, false); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	live, err := st.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if live.Status != constants.StatusArchived {
		t.Fatalf("live status = %q, want archived", live.Status)
	}

	// Snapshot still carries the resolution status, not archived.
	rec, ok := ledger.Find(id)
	if !ok {
		t.Fatal("snapshot missing after archive")
	}
	if rec.Status != constants.StatusApproved {
		t.Fatalf("snapshot status = %q, want approved", rec.Status)
	}
}

func TestArchiveWithEvictRemovesLiveRecord(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id := ingestNeedsReview(t, st, "gone.pdf")
	if _, err := eng.Reject(id, "rev-1", "bad scan"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if err := eng.Archive(id, true); err != nil {
		t.Fatalf("Archive evict: %v", err)
	}
	if _, err := st.GetByID(id); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("GetByID after evict = %v, want ErrNotFound", err)
	}
	if _, ok := ledger.Find(id); !ok {
		t.Fatal("ledger must retain evicted invoice")
	}
}

func TestArchiveUnresolvedRefusedWithoutSideEffects(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	id := ingestNeedsReview(t, st, "pending.pdf")

	if err := eng.Archive(id, false); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("Archive unresolved = %v, want ErrInvalidTransition", err)
	}
	// Failed archive must not leave an unresolved snapshot behind.
	if ledger.Len() != 0 {
		t.Fatalf("ledger len after failed Archive = %d, want 0", ledger.Len())
	}
	live, err := st.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if live.Status != constants.StatusNeedsReview {
		t.Fatalf("live status = %q, want needs_review untouched", live.Status)
	}

	// The real resolution snapshot must not be shadowed by the failed call.
	if _, err := eng.Approve(id, "rev-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	rec, ok := ledger.Find(id)
	if !ok {
		t.Fatal("resolution snapshot missing")
	}
	if rec.Status != constants.StatusApproved {
		t.Fatalf("snapshot status = %q, want approved", rec.Status)
	}
	if rec.ResolvedBy == nil || *rec.ResolvedBy != "rev-1" {
		t.Fatalf("snapshot ResolvedBy = %v, want rev-1", rec.ResolvedBy)
	}
}

func TestCorrectionThenApprove(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	id := ingestNeedsReview(t, st, "fixme.pdf")

	name := constants.FieldVendorName
	if err := eng.CorrectField(id, name, "Corrected Vendor"); err != nil {
		t.Fatalf("CorrectField: %v", err)
	}
	snap, err := eng.Approve(id, "rev-9")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	f, ok := snap.Field(name)
	if !ok || f.Value != "Corrected Vendor" {
		t.Fatalf("corrected value not carried into resolution: %+v", f)
	}
	if f.OriginalValue != "v" {
		t.Fatalf("OriginalValue = %q, want untouched extractor value", f.OriginalValue)
	}
}

func TestQueueFiltering(t *testing.T) {
	eng, st, _ := newTestEngine(t)

	low, err := st.Ingest("acme-services.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.BeginExtraction(low); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CompleteExtraction(low, fieldsWith(90, 45)); err != nil {
		t.Fatal(err)
	}

	mid, err := st.Ingest("techflow-q3.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := st.BeginExtraction(mid); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CompleteExtraction(mid, fieldsWith(92, 70)); err != nil {
		t.Fatal(err)
	}

	collect := func(filter QueueFilter) []uuid.UUID {
		var ids []uuid.UUID
		for inv := range eng.Queue(filter) {
			ids = append(ids, inv.ID)
		}
		return ids
	}

	if got := collect(QueueFilter{}); len(got) != 2 {
		t.Fatalf("unfiltered queue len = %d, want 2", len(got))
	}
	if got := collect(QueueFilter{MinConfidence: 60}); len(got) != 1 || got[0] != mid {
		t.Fatalf("MinConfidence=60 queue = %v, want [%s]", got, mid)
	}
	if got := collect(QueueFilter{MaxConfidence: 50}); len(got) != 1 || got[0] != low {
		t.Fatalf("MaxConfidence=50 queue = %v, want [%s]", got, low)
	}
	if got := collect(QueueFilter{Search: "TECHFLOW"}); len(got) != 1 || got[0] != mid {
		t.Fatalf("Search=TECHFLOW queue = %v, want [%s]", got, mid)
	}
	if got := collect(QueueFilter{Search: "no-such-vendor"}); len(got) != 0 {
		t.Fatalf("unmatched search queue = %v, want empty", got)
	}
}

func TestQueueExcludesResolved(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	id := ingestNeedsReview(t, st, "a.pdf")
	other := ingestNeedsReview(t, st, "b.pdf")
	if _, err := eng.Approve(id, "rev-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	var ids []uuid.UUID
	for inv := range eng.Queue(QueueFilter{}) {
		ids = append(ids, inv.ID)
	}
	if len(ids) != 1 || ids[0] != other {
		t.Fatalf("queue after approval = %v, want [%s]", ids, other)
	}
}
