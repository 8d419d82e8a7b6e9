package model

import (
	"github.com/shopspring/decimal"
)

// Field keys shared by extraction, validation, and reconciliation.
const (
	FieldVendorName    = "vendor_name"
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldDueDate       = "due_date"
	FieldTotalAmount   = "total_amount"
	FieldSubtotal      = "subtotal"
	FieldTaxAmount     = "tax_amount"
	FieldCurrency      = "currency"
)

// RequiredFields are the fields an invoice must carry to be processable.
// Order is the reporting order.
var RequiredFields = []string{
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldTotalAmount,
	FieldVendorName,
}

// LineItem is a single invoice line.
type LineItem struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// ExtractedRecord holds the structured fields produced by extraction.
// A nil pointer means the field was absent from the document; this is
// distinct from an empty string or zero amount and must stay that way
// through serialization (omitempty on pointers, never zero-fill).
type ExtractedRecord struct {
	VendorName    *string          `json:"vendor_name,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	InvoiceDate   *string          `json:"invoice_date,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount     *decimal.Decimal `json:"tax_amount,omitempty"`
	Currency      *string          `json:"currency,omitempty"`
	LineItems     []LineItem       `json:"line_items,omitempty"`

	// Confidence maps field key to extraction confidence in [0,1].
	// Fields without an entry have unknown confidence, not zero.
	Confidence map[string]float64 `json:"confidence,omitempty"`
}

// ReferenceRecord is ground truth from an external system (PO, ERP).
// Same field shape as ExtractedRecord, no confidence.
type ReferenceRecord struct {
	VendorName    *string          `json:"vendor_name,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	InvoiceDate   *string          `json:"invoice_date,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount     *decimal.Decimal `json:"tax_amount,omitempty"`
	Currency      *string          `json:"currency,omitempty"`
	LineItems     []LineItem       `json:"line_items,omitempty"`
}

// Has reports whether the named field is present on the record.
func (r ExtractedRecord) Has(field string) bool {
	switch field {
	case FieldVendorName:
		return r.VendorName != nil
	case FieldInvoiceNumber:
		return r.InvoiceNumber != nil
	case FieldInvoiceDate:
		return r.InvoiceDate != nil
	case FieldDueDate:
		return r.DueDate != nil
	case FieldTotalAmount:
		return r.TotalAmount != nil
	case FieldSubtotal:
		return r.Subtotal != nil
	case FieldTaxAmount:
		return r.TaxAmount != nil
	case FieldCurrency:
		return r.Currency != nil
	default:
		return false
	}
}

// MissingRequired returns the required fields absent from the record,
// in reporting order.
func (r ExtractedRecord) MissingRequired() []string {
	var missing []string
	for _, f := range RequiredFields {
		if !r.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// FieldConfidence returns the extraction confidence for a field, or the
// fallback when the extractor reported none.
func (r ExtractedRecord) FieldConfidence(field string, fallback float64) float64 {
	if c, ok := r.Confidence[field]; ok {
		return c
	}
	return fallback
}
