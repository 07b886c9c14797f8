package entity

import "time"

// ArchiveRecord is one entry in the history ledger: an immutable snapshot of
// an invoice taken at archive time. Status on the snapshot is the resolution
// status (approved or rejected) so audit queries by outcome keep working
// after the live record moves on to archived.
type ArchiveRecord struct {
	Invoice
	ArchivedAt time.Time `json:"archived_at"`
}
