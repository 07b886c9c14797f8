package extract

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Request identifies the document the extraction service should read.
type Request struct {
	DocumentID uuid.UUID `json:"documentId"`
	FileName   string    `json:"fileName"`
}

// Field is one recognized datum as returned by the service.
type Field struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"` // [0,100]
}

// Result is the service response. Fields is a non-empty ordered sequence;
// order is the extraction order and is preserved downstream.
type Result struct {
	InvoiceID         uuid.UUID     `json:"invoiceId"`
	Fields            []Field       `json:"fields"`
	OverallConfidence float64       `json:"overallConfidence"`
	Duration          time.Duration `json:"-"`
}

// Extractor is the boundary to the external AI/OCR service. A failed call
// must surface common.ErrExtractionFailed; the invoice stays processing and
// the caller owns the retry.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Result, error)
}
