// Package analytics derives read-only rollups from the record store and the
// history ledger. Nothing here keeps state: every snapshot is recomputed
// from the sources on demand, so the numbers can never drift from reality.
package analytics

import (
	"log/slog"
	"sort"
	"time"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/archive"
	"github.com/invoice-ai/invoiceai/internal/store"
)

// CostModel prices the savings estimate: what a human-processed invoice
// costs versus an automated one.
type CostModel struct {
	ManualCostPerInvoice     float64
	AutomationCostPerInvoice float64
}

// FieldAccuracy is the mean extraction confidence for one field label across
// the archive.
type FieldAccuracy struct {
	Name           string  `json:"name"`
	MeanConfidence float64 `json:"mean_confidence"`
	Samples        int     `json:"samples"`
}

// Snapshot is one on-demand rollup.
type Snapshot struct {
	GeneratedAt            time.Time       `json:"generated_at"`
	CountByStatus          map[string]int  `json:"count_by_status"`
	TotalProcessed         int             `json:"total_processed"`
	FieldAccuracy          []FieldAccuracy `json:"field_accuracy"`
	MeanConfidence         float64         `json:"mean_confidence"`
	MeanProcessingDuration time.Duration   `json:"mean_processing_duration"`
	ApprovedCount          int             `json:"approved_count"`
	RejectedCount          int             `json:"rejected_count"`
	ManualInterventions    int             `json:"manual_interventions"`
	EstimatedSavings       float64         `json:"estimated_savings"`
}

// Aggregator recomputes rollups from the store and ledger.
type Aggregator struct {
	store  *store.Store
	ledger *archive.Ledger
	costs  CostModel
	logger *slog.Logger
	now    func() time.Time
}

func NewAggregator(st *store.Store, ledger *archive.Ledger, costs CostModel, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: st, ledger: ledger, costs: costs, logger: logger, now: time.Now}
}

// Compute walks both sources and builds a fresh snapshot.
func (a *Aggregator) Compute() Snapshot {
	snap := Snapshot{
		GeneratedAt:   a.now().UTC(),
		CountByStatus: make(map[string]int),
	}
	for _, s := range constants.Statuses() {
		snap.CountByStatus[s] = 0
	}

	// Live records: archived ones are counted from the ledger instead, where
	// their resolution status survives.
	for inv := range a.store.List() {
		if inv.Status == constants.StatusArchived {
			continue
		}
		snap.CountByStatus[string(inv.Status)]++
	}

	type fieldAgg struct {
		sum float64
		n   int
	}
	fields := make(map[string]*fieldAgg)
	var (
		confSum     float64
		confN       int
		durationSum time.Duration
		durationN   int
	)

	for rec := range a.ledger.Query(nil) {
		snap.TotalProcessed++
		snap.CountByStatus[string(rec.Status)]++
		switch rec.Status {
		case constants.StatusApproved:
			snap.ApprovedCount++
			if rec.ResolvedBy != nil {
				snap.ManualInterventions++
			}
		case constants.StatusRejected:
			snap.RejectedCount++
			snap.ManualInterventions++
		}

		confSum += rec.OverallConfidence
		confN++
		for _, f := range rec.Fields {
			agg, ok := fields[f.Name]
			if !ok {
				agg = &fieldAgg{}
				fields[f.Name] = agg
			}
			agg.sum += f.Confidence
			agg.n++
		}
		if rec.ResolvedAt != nil {
			durationSum += rec.ResolvedAt.Sub(rec.CreatedAt)
			durationN++
		}
	}

	for name, agg := range fields {
		snap.FieldAccuracy = append(snap.FieldAccuracy, FieldAccuracy{
			Name:           name,
			MeanConfidence: agg.sum / float64(agg.n),
			Samples:        agg.n,
		})
	}
	sort.Slice(snap.FieldAccuracy, func(i, j int) bool {
		return snap.FieldAccuracy[i].Name < snap.FieldAccuracy[j].Name
	})

	if confN > 0 {
		snap.MeanConfidence = confSum / float64(confN)
	}
	if durationN > 0 {
		snap.MeanProcessingDuration = durationSum / time.Duration(durationN)
	}
	perInvoice := a.costs.ManualCostPerInvoice - a.costs.AutomationCostPerInvoice
	snap.EstimatedSavings = perInvoice * float64(snap.ApprovedCount)

	return snap
}

// LogSummary emits one structured summary line; wired to the daemon cron.
func (a *Aggregator) LogSummary() {
	snap := a.Compute()
	a.logger.Info("analytics.summary",
		"total_processed", snap.TotalProcessed,
		"approved", snap.ApprovedCount,
		"rejected", snap.RejectedCount,
		"manual_interventions", snap.ManualInterventions,
		"mean_confidence", snap.MeanConfidence,
		"mean_processing_ms", snap.MeanProcessingDuration.Milliseconds(),
		"estimated_savings", snap.EstimatedSavings,
	)
}
