package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/agenticap/invoice-cli/internal/model"
)

type rawLineItem struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Amount      *decimal.Decimal `json:"amount"`
}

type rawRecord struct {
	VendorName    *string            `json:"vendor_name"`
	InvoiceNumber *string            `json:"invoice_number"`
	InvoiceDate   *string            `json:"invoice_date"`
	DueDate       *string            `json:"due_date"`
	Subtotal      *decimal.Decimal   `json:"subtotal"`
	TaxAmount     *decimal.Decimal   `json:"tax_amount"`
	TotalAmount   *decimal.Decimal   `json:"total_amount"`
	Currency      *string            `json:"currency"`
	LineItems     []rawLineItem      `json:"line_items"`
	Confidence    map[string]float64 `json:"confidence"`
}

// parseRecord decodes the model's JSON output into an ExtractedRecord.
// Markdown code fences around the JSON are tolerated; anything else
// non-JSON is an error.
func parseRecord(text string, defaultConfidence float64) (model.ExtractedRecord, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var raw rawRecord
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return model.ExtractedRecord{}, eris.Wrap(err, "extract: parse model output")
	}

	rec := model.ExtractedRecord{
		VendorName:    normalizeStr(raw.VendorName),
		InvoiceNumber: normalizeStr(raw.InvoiceNumber),
		InvoiceDate:   normalizeStr(raw.InvoiceDate),
		DueDate:       normalizeStr(raw.DueDate),
		Subtotal:      raw.Subtotal,
		TaxAmount:     raw.TaxAmount,
		TotalAmount:   raw.TotalAmount,
		Currency:      normalizeStr(raw.Currency),
		Confidence:    map[string]float64{},
	}

	for _, li := range raw.LineItems {
		rec.LineItems = append(rec.LineItems, model.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Amount:      li.Amount,
		})
	}

	for field, c := range raw.Confidence {
		rec.Confidence[field] = clamp01(c)
	}
	// Fill the default for present fields the model left unscored.
	for _, field := range model.RequiredFields {
		if rec.Has(field) {
			if _, ok := rec.Confidence[field]; !ok {
				rec.Confidence[field] = defaultConfidence
			}
		}
	}

	return rec, nil
}

// normalizeStr trims whitespace and treats empty strings as absent.
func normalizeStr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
