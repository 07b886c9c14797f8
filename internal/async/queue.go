package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one extraction request. Extend as needed later (priority, trace,
// retry budget).
type Job struct {
	InvoiceID   uuid.UUID
	FileName    string
	SubmittedAt time.Time
}

// Queue accepts extraction work without blocking the caller and supports
// abandoning an in-flight extraction.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Cancel(invoiceID uuid.UUID) error
	Shutdown(ctx context.Context)
}
