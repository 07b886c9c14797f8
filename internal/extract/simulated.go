package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/common"
)

// Simulated is a stand-in for the real AI/OCR pipeline. Output is a pure
// function of the file name, so repeated uploads of the same document
// extract identically and tests stay deterministic. Latency is simulated
// and honors context cancellation.
type Simulated struct {
	logger     *slog.Logger
	minLatency time.Duration
	maxLatency time.Duration
	// failEvery > 0 makes every n-th distinct document fail, to exercise
	// the retry path. Zero disables injected failures.
	failEvery uint32
}

type SimOption func(*Simulated)

func WithLatency(min, max time.Duration) SimOption {
	return func(s *Simulated) {
		if min > 0 && max >= min {
			s.minLatency, s.maxLatency = min, max
		}
	}
}

func WithFailEvery(n uint32) SimOption {
	return func(s *Simulated) { s.failEvery = n }
}

func NewSimulated(logger *slog.Logger, opts ...SimOption) *Simulated {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Simulated{
		logger:     logger,
		minLatency: 400 * time.Millisecond,
		maxLatency: 2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var simVendors = []string{
	"Acme Corporation",
	"TechFlow Inc",
	"CloudSoft Solutions",
	"Global Supplies Ltd",
	"Innovation Labs",
	"Office Essentials",
	"DataPro Systems",
	"Premium Materials Co",
}

// Extract produces a deterministic field set for the document and sleeps for
// a pseudo-random interval inside the configured latency window.
func (s *Simulated) Extract(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	seed := seedFor(req.FileName)
	rng := rand.New(rand.NewSource(int64(seed)))

	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(rng.Int63n(int64(span)))
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.logger.Info("extract.abandoned", "document_id", req.DocumentID, "file_name", req.FileName)
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	if s.failEvery > 0 && seed%s.failEvery == 0 {
		s.logger.Warn("extract.failed", "document_id", req.DocumentID, "file_name", req.FileName)
		return Result{}, common.NewAppError("EXTRACT_FAILED", "simulated service outage", common.ErrExtractionFailed)
	}

	res := Result{
		InvoiceID: req.DocumentID,
		Fields:    synthesizeFields(rng),
		Duration:  time.Since(start),
	}
	res.OverallConfidence = minConfidence(res.Fields)

	// The contract is enforced at the boundary, exactly as a real service
	// response would be.
	raw, err := json.Marshal(res)
	if err != nil {
		return Result{}, fmt.Errorf("marshal result: %w", err)
	}
	if err := ValidateResult(raw); err != nil {
		return Result{}, common.NewAppError("EXTRACT_CONTRACT", "service response violates contract", err)
	}

	s.logger.Info("extract.ok",
		"document_id", req.DocumentID,
		"file_name", req.FileName,
		"fields", len(res.Fields),
		"overall_confidence", res.OverallConfidence,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func synthesizeFields(rng *rand.Rand) []Field {
	vendor := simVendors[rng.Intn(len(simVendors))]
	number := fmt.Sprintf("INV-2024%04d", rng.Intn(10000))
	issued := time.Date(2024, time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
	due := issued.AddDate(0, 1, 0)
	total := 500 + rng.Float64()*34000
	tax := total * (0.05 + rng.Float64()*0.15)

	fields := []Field{
		{Key: constants.FieldInvoiceNumber, Value: number, Confidence: jitter(rng, 90, 99)},
		{Key: constants.FieldVendorName, Value: vendor, Confidence: jitter(rng, 85, 98)},
		{Key: constants.FieldInvoiceDate, Value: issued.Format("2006-01-02"), Confidence: jitter(rng, 75, 96)},
		{Key: constants.FieldDueDate, Value: due.Format("2006-01-02"), Confidence: jitter(rng, 45, 95)},
		{Key: constants.FieldTotalAmount, Value: fmt.Sprintf("$%.2f", total), Confidence: jitter(rng, 40, 97)},
	}
	// Tax line is missing from some documents, like real scans.
	if rng.Intn(4) != 0 {
		fields = append(fields, Field{
			Key:        constants.FieldTaxAmount,
			Value:      fmt.Sprintf("$%.2f", tax),
			Confidence: jitter(rng, 35, 90),
		})
	}
	return fields
}

func jitter(rng *rand.Rand, lo, hi float64) float64 {
	v := lo + rng.Float64()*(hi-lo)
	// one decimal, like the dashboard displays
	return float64(int(v*10)) / 10
}

func minConfidence(fields []Field) float64 {
	if len(fields) == 0 {
		return 0
	}
	min := fields[0].Confidence
	for _, f := range fields[1:] {
		if f.Confidence < min {
			min = f.Confidence
		}
	}
	return min
}

func seedFor(fileName string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fileName))
	return h.Sum32()
}
