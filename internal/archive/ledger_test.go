package archive

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedInvoice(name string) *entity.Invoice {
	reviewer := "rev-1"
	resolved := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &entity.Invoice{
		ID:       uuid.New(),
		FileName: name,
		Status:   constants.StatusApproved,
		Fields: []entity.ExtractedField{
			{Name: constants.FieldVendorName, Value: "Acme Corporation", OriginalValue: "Acme Corporation", Confidence: 97},
			{Name: constants.FieldTotalAmount, Value: "$1,250.00", OriginalValue: "$1,250.00", Confidence: 92},
		},
		OverallConfidence: 92,
		CreatedAt:         resolved.Add(-time.Minute),
		ResolvedAt:        &resolved,
		ResolvedBy:        &reviewer,
	}
}

func TestAppendSnapshotsAreFrozen(t *testing.T) {
	ledger := NewLedger(testLogger())
	inv := approvedInvoice("a.pdf")
	rec := ledger.Append(inv)

	// Mutating the source after archiving must not reach the snapshot.
	inv.Fields[0].Value = "Mutated Vendor"
	inv.Status = constants.StatusRejected
	*inv.ResolvedBy = "someone-else"

	if rec.Fields[0].Value != "Acme Corporation" {
		t.Fatalf("snapshot field mutated: %q", rec.Fields[0].Value)
	}
	if rec.Status != constants.StatusApproved {
		t.Fatalf("snapshot status mutated: %q", rec.Status)
	}
	if *rec.ResolvedBy != "rev-1" {
		t.Fatalf("snapshot ResolvedBy mutated: %q", *rec.ResolvedBy)
	}
}

func TestAppendStampsArchivedAt(t *testing.T) {
	at := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	ledger := NewLedger(testLogger(), WithClock(func() time.Time { return at }))

	rec := ledger.Append(approvedInvoice("a.pdf"))
	if !rec.ArchivedAt.Equal(at) {
		t.Fatalf("ArchivedAt = %v, want %v", rec.ArchivedAt, at)
	}
}

func TestQueryInsertionOrderAndRestart(t *testing.T) {
	ledger := NewLedger(testLogger())
	var want []uuid.UUID
	for _, name := range []string{"1.pdf", "2.pdf", "3.pdf"} {
		rec := ledger.Append(approvedInvoice(name))
		want = append(want, rec.ID)
	}

	seq := ledger.Query(nil)
	collect := func() []uuid.UUID {
		var ids []uuid.UUID
		for rec := range seq {
			ids = append(ids, rec.ID)
		}
		return ids
	}

	first := collect()
	if len(first) != 3 {
		t.Fatalf("query yielded %d records, want 3", len(first))
	}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("order at %d = %s, want %s", i, first[i], want[i])
		}
	}

	// Sequences are restartable.
	if second := collect(); len(second) != 3 {
		t.Fatalf("restarted query yielded %d records, want 3", len(second))
	}
}

func TestQuerySnapshotUnaffectedByLaterAppends(t *testing.T) {
	ledger := NewLedger(testLogger())
	ledger.Append(approvedInvoice("a.pdf"))

	seq := ledger.Query(nil)
	ledger.Append(approvedInvoice("b.pdf"))

	count := 0
	for range seq {
		count++
	}
	if count != 1 {
		t.Fatalf("pre-append sequence yielded %d records, want 1", count)
	}
	if ledger.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ledger.Len())
	}
}

func TestByStatus(t *testing.T) {
	ledger := NewLedger(testLogger())
	ledger.Append(approvedInvoice("ok.pdf"))

	rejected := approvedInvoice("bad.pdf")
	rejected.Status = constants.StatusRejected
	reason := "unreadable scan"
	rejected.RejectReason = &reason
	ledger.Append(rejected)

	var names []string
	for rec := range ledger.ByStatus(constants.StatusRejected) {
		names = append(names, rec.FileName)
	}
	if len(names) != 1 || names[0] != "bad.pdf" {
		t.Fatalf("ByStatus(rejected) = %v, want [bad.pdf]", names)
	}
}

func TestFind(t *testing.T) {
	ledger := NewLedger(testLogger())
	rec := ledger.Append(approvedInvoice("a.pdf"))

	got, ok := ledger.Find(rec.ID)
	if !ok || got.ID != rec.ID {
		t.Fatalf("Find(%s) = %v, %v", rec.ID, got, ok)
	}
	if _, ok := ledger.Find(uuid.New()); ok {
		t.Fatal("Find(unknown) reported a match")
	}
}

func TestRestoreDoesNotRePersist(t *testing.T) {
	sink := &countingSink{}
	ledger := NewLedger(testLogger(), WithSink(sink))

	ledger.Restore([]*entity.ArchiveRecord{
		{Invoice: *approvedInvoice("old.pdf"), ArchivedAt: time.Now().UTC()},
	})
	if sink.persisted != 0 {
		t.Fatalf("Restore persisted %d records, want 0", sink.persisted)
	}
	if ledger.Len() != 1 {
		t.Fatalf("Len after restore = %d, want 1", ledger.Len())
	}

	ledger.Append(approvedInvoice("new.pdf"))
	if sink.persisted != 1 {
		t.Fatalf("Append persisted %d records, want 1", sink.persisted)
	}
}

func TestSinkFailureDoesNotBlockAppend(t *testing.T) {
	ledger := NewLedger(testLogger(), WithSink(&countingSink{err: errors.New("disk full")}))

	rec := ledger.Append(approvedInvoice("a.pdf"))
	if rec == nil {
		t.Fatal("Append returned nil on sink failure")
	}
	if ledger.Len() != 1 {
		t.Fatalf("Len = %d, want 1 despite sink failure", ledger.Len())
	}
}

type countingSink struct {
	persisted int
	err       error
}

func (s *countingSink) Persist(*entity.ArchiveRecord) error {
	if s.err != nil {
		return s.err
	}
	s.persisted++
	return nil
}
