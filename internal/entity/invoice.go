package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
)

// ExtractedField is one recognized datum on an invoice.
// OriginalValue is frozen at extraction time; only Value may be corrected
// during review, and corrections never touch Confidence.
type ExtractedField struct {
	Name          string  `json:"name"`
	Value         string  `json:"value"`
	OriginalValue string  `json:"original_value"`
	Confidence    float64 `json:"confidence"` // [0,100]
}

// Invoice is the central entity tracked by the record store.
type Invoice struct {
	ID       uuid.UUID               `json:"id"`
	FileName string                  `json:"file_name"`
	Status   constants.InvoiceStatus `json:"status"`
	Fields   []ExtractedField        `json:"fields"`
	// OverallConfidence is derived: the minimum across field confidences.
	// Recomputed whenever Fields change, never stored independently.
	OverallConfidence float64    `json:"overall_confidence"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy        *string    `json:"resolved_by,omitempty"`
	RejectReason      *string    `json:"reject_reason,omitempty"`
}

// RecomputeConfidence re-derives OverallConfidence from the current fields.
// An invoice with no fields has zero confidence.
func (inv *Invoice) RecomputeConfidence() {
	if len(inv.Fields) == 0 {
		inv.OverallConfidence = 0
		return
	}
	min := inv.Fields[0].Confidence
	for _, f := range inv.Fields[1:] {
		if f.Confidence < min {
			min = f.Confidence
		}
	}
	inv.OverallConfidence = min
}

// Field returns the field with the given name, if present.
func (inv *Invoice) Field(name string) (*ExtractedField, bool) {
	for i := range inv.Fields {
		if inv.Fields[i].Name == name {
			return &inv.Fields[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy. Archived snapshots are clones, so later
// mutation of the live record never leaks into the ledger.
func (inv *Invoice) Clone() *Invoice {
	cp := *inv
	if inv.Fields != nil {
		cp.Fields = make([]ExtractedField, len(inv.Fields))
		copy(cp.Fields, inv.Fields)
	}
	if inv.ResolvedAt != nil {
		t := *inv.ResolvedAt
		cp.ResolvedAt = &t
	}
	if inv.ResolvedBy != nil {
		s := *inv.ResolvedBy
		cp.ResolvedBy = &s
	}
	if inv.RejectReason != nil {
		s := *inv.RejectReason
		cp.RejectReason = &s
	}
	return &cp
}
