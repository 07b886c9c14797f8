package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/common"
	"github.com/invoice-ai/invoiceai/internal/extract"
	"github.com/invoice-ai/invoiceai/internal/review"
	"github.com/invoice-ai/invoiceai/internal/store"
)

// ExtractQueue runs extraction requests on a small worker pool so uploads
// never block on the external service. One invoice is handled by at most one
// worker at a time; cancellation tears down the in-flight call and any late
// result is dropped by the store.
type ExtractQueue struct {
	store     *store.Store
	engine    *review.Engine
	extractor extract.Extractor
	logger    *slog.Logger
	workers   int
	timeout   time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed and the send side of ch. Workers must never take it:
	// Enqueue holds it across a potentially blocking send, and a worker
	// waiting on mu would stop receiving and deadlock the queue.
	mu     sync.Mutex
	closed bool

	inflightMu sync.Mutex
	inflight   map[uuid.UUID]context.CancelFunc
}

type Option func(*ExtractQueue)

func WithWorkers(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ExtractQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewExtractQueue(st *store.Store, engine *review.Engine, extractor extract.Extractor, logger *slog.Logger, opts ...Option) *ExtractQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ExtractQueue{
		store:     st,
		engine:    engine,
		extractor: extractor,
		logger:    logger,
		workers:   4,
		timeout:   time.Minute,
		ch:        make(chan Job, 256),
		inflight:  make(map[uuid.UUID]context.CancelFunc),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ExtractQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue queues one extraction. Returns immediately; backpressure applies
// only when the buffer is full.
func (q *ExtractQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "invoice_id", job.InvoiceID)
		return common.NewAppError("ENQUEUE", "queue is shutting down", common.ErrInvalidState)
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued extraction", "invoice_id", job.InvoiceID, "file_name", job.FileName)
	default:
		q.logger.Warn("queue full, applying backpressure", "invoice_id", job.InvoiceID)
		q.ch <- job
	}
	return nil
}

// Cancel abandons an extraction. The invoice moves processing -> cancelled
// immediately; if a worker holds the invoice its service call is torn down
// and the late result dropped.
func (q *ExtractQueue) Cancel(invoiceID uuid.UUID) error {
	if err := q.store.CancelExtraction(invoiceID); err != nil {
		return err
	}
	q.inflightMu.Lock()
	cancel := q.inflight[invoiceID]
	q.inflightMu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.logger.Info("extraction cancelled", "invoice_id", invoiceID)
	return nil
}

func (q *ExtractQueue) process(workerID int, job Job) {
	inv, err := q.store.GetByID(job.InvoiceID)
	if err != nil {
		q.logger.Error("extraction job for unknown invoice", "worker_id", workerID, "invoice_id", job.InvoiceID)
		return
	}

	switch inv.Status {
	case constants.StatusUploaded:
		if err := q.store.BeginExtraction(job.InvoiceID); err != nil {
			q.logger.Error("begin extraction failed", "worker_id", workerID, "invoice_id", job.InvoiceID, "error", err)
			return
		}
	case constants.StatusProcessing:
		// retry of a previously failed extraction
	default:
		q.logger.Info("skipping extraction job", "worker_id", workerID, "invoice_id", job.InvoiceID, "status", inv.Status)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	q.inflightMu.Lock()
	q.inflight[job.InvoiceID] = cancel
	q.inflightMu.Unlock()
	defer func() {
		cancel()
		q.inflightMu.Lock()
		delete(q.inflight, job.InvoiceID)
		q.inflightMu.Unlock()
	}()

	res, err := q.extractor.Extract(ctx, extract.Request{DocumentID: job.InvoiceID, FileName: job.FileName})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// user abandoned it; the store already holds cancelled
			q.logger.Info("extraction abandoned", "worker_id", workerID, "invoice_id", job.InvoiceID)
			return
		}
		// recoverable: the invoice stays processing with a retry affordance
		q.logger.Error("extraction failed", "worker_id", workerID, "invoice_id", job.InvoiceID, "error", err)
		return
	}

	status, err := q.engine.HandleExtractionResult(job.InvoiceID, res.Fields)
	if err != nil {
		if errors.Is(err, common.ErrExtractionCancelled) {
			q.logger.Info("late extraction result dropped", "worker_id", workerID, "invoice_id", job.InvoiceID)
			return
		}
		q.logger.Error("recording extraction failed", "worker_id", workerID, "invoice_id", job.InvoiceID, "error", err)
		return
	}
	q.logger.Info("extraction processed",
		"worker_id", workerID,
		"invoice_id", job.InvoiceID,
		"status", status,
		"overall_confidence", res.OverallConfidence,
	)
}

// Shutdown drains the queue and stops the workers.
func (q *ExtractQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
