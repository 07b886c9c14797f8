package constants

// Canonical field labels emitted by the extraction service. Order matters:
// it is the extraction order and the display order downstream.
const (
	FieldInvoiceNumber = "Invoice Number"
	FieldVendorName    = "Vendor Name"
	FieldInvoiceDate   = "Invoice Date"
	FieldDueDate       = "Due Date"
	FieldTotalAmount   = "Total Amount"
	FieldTaxAmount     = "Tax Amount"
)

var standardFields = []string{
	FieldInvoiceNumber,
	FieldVendorName,
	FieldInvoiceDate,
	FieldDueDate,
	FieldTotalAmount,
	FieldTaxAmount,
}

// StandardFields returns the canonical field labels in extraction order.
func StandardFields() []string {
	result := make([]string, len(standardFields))
	copy(result, standardFields)
	return result
}
