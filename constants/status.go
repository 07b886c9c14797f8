package constants

// InvoiceStatus is the canonical lifecycle state of an invoice.
type InvoiceStatus string

// Stable values (store these exact strings in the archive DB).
const (
	StatusUploaded    InvoiceStatus = "uploaded"     // created, extraction not requested yet
	StatusProcessing  InvoiceStatus = "processing"   // extraction in flight
	StatusNeedsReview InvoiceStatus = "needs_review" // waiting on a human reviewer
	StatusApproved    InvoiceStatus = "approved"     // resolved positively (human or auto)
	StatusRejected    InvoiceStatus = "rejected"     // resolved negatively (always human)
	StatusArchived    InvoiceStatus = "archived"     // snapshot copied into the history ledger
	StatusCancelled   InvoiceStatus = "cancelled"    // extraction abandoned mid-flight
)

var allStatuses = []InvoiceStatus{
	StatusUploaded,
	StatusProcessing,
	StatusNeedsReview,
	StatusApproved,
	StatusRejected,
	StatusArchived,
	StatusCancelled,
}

// Statuses returns every lifecycle status as strings, in lifecycle order.
func Statuses() []string {
	result := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		result[i] = string(s)
	}
	return result
}

// ParseStatus maps a raw string onto a known status.
func ParseStatus(input string) (InvoiceStatus, bool) {
	for _, s := range allStatuses {
		if input == string(s) {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further field correction is permitted.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusArchived, StatusCancelled:
		return true
	}
	return false
}

// Resolved reports whether a reviewer (or the auto-approve shortcut) has
// settled the invoice one way or the other.
func (s InvoiceStatus) Resolved() bool {
	return s == StatusApproved || s == StatusRejected
}
