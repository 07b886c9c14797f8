// Package policy holds the confidence policy: the single source of truth for
// turning a confidence score into a disposition tier. Both the automation
// path (auto-approve on extraction) and the review UI tint their decisions
// through it, so the two can never disagree.
package policy

import (
	"fmt"

	"github.com/invoice-ai/invoiceai/internal/entity"
)

// Tier is the disposition bucket for a confidence score. Ordering matters:
// a numerically lower Tier is stricter, and an invoice inherits the
// strictest tier among its fields.
type Tier int

const (
	TierManualFix Tier = iota
	TierNeedsReview
	TierAutoApprove
)

func (t Tier) String() string {
	switch t {
	case TierManualFix:
		return "manual_fix"
	case TierNeedsReview:
		return "needs_review"
	case TierAutoApprove:
		return "auto_approve"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Tint is the display hue the dashboard uses for a tier.
func (t Tier) Tint() string {
	switch t {
	case TierAutoApprove:
		return "emerald"
	case TierNeedsReview:
		return "amber"
	default:
		return "red"
	}
}

// Thresholds are the configured confidence cut-offs, both in [0,100] with
// AutoApproveMin >= ReviewMin.
type Thresholds struct {
	AutoApproveMin float64
	ReviewMin      float64
}

// DefaultThresholds mirror the dashboard defaults (85/60).
var DefaultThresholds = Thresholds{AutoApproveMin: 85, ReviewMin: 60}

// Classify maps a single confidence score to its tier. Pure, total over
// [0,100], and monotonic: a higher score never yields a stricter tier.
func (t Thresholds) Classify(confidence float64) Tier {
	switch {
	case confidence >= t.AutoApproveMin:
		return TierAutoApprove
	case confidence >= t.ReviewMin:
		return TierNeedsReview
	default:
		return TierManualFix
	}
}

// Aggregate returns the invoice-level tier: the worst (strictest) tier among
// its fields. One low-confidence field is enough to force human review even
// if every other field clears auto-approve. An invoice with no fields can
// never auto-approve.
func (t Thresholds) Aggregate(fields []entity.ExtractedField) Tier {
	if len(fields) == 0 {
		return TierManualFix
	}
	worst := TierAutoApprove
	for _, f := range fields {
		if tier := t.Classify(f.Confidence); tier < worst {
			worst = tier
		}
	}
	return worst
}
