// Package reconcile compares extracted invoice records against
// reference records (purchase orders, ERP exports) field by field and
// produces reconciliation reports. All comparisons go through the
// match primitives; a missing value on either side yields an unmatched
// verdict, never an error.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/match"
	"github.com/agenticap/invoice-cli/internal/model"
)

// Reconciler compares records using configured tolerances. It is
// immutable after construction and safe for concurrent use.
type Reconciler struct {
	amountTolerance decimal.Decimal
	textThreshold   float64
	assigner        Assigner
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithAssigner replaces the batch assignment strategy.
func WithAssigner(a Assigner) Option {
	return func(r *Reconciler) { r.assigner = a }
}

// New builds a Reconciler from engine configuration. Invalid tolerances
// fail here, never during a comparison.
func New(cfg config.EngineConfig, opts ...Option) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "reconcile: invalid engine config")
	}
	r := &Reconciler{
		amountTolerance: decimal.NewFromFloat(cfg.AmountTolerance),
		textThreshold:   cfg.TextSimilarityThreshold,
		assigner:        GreedyAssigner{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile compares one extracted record against one reference record
// over total amount, invoice number, vendor name, and invoice date.
// The report is a pure function of the inputs.
func (r *Reconciler) Reconcile(extracted model.ExtractedRecord, ref model.ReferenceRecord) model.ReconciliationReport {
	verdicts := []model.FieldVerdict{
		r.reconcileAmount(extracted.TotalAmount, ref.TotalAmount),
		r.reconcileIdentifier(model.FieldInvoiceNumber, extracted.InvoiceNumber, ref.InvoiceNumber),
		r.reconcileText(model.FieldVendorName, extracted.VendorName, ref.VendorName),
		r.reconcileDate(extracted.InvoiceDate, ref.InvoiceDate),
	}

	matched := 0
	for _, v := range verdicts {
		if v.Matched {
			matched++
		}
	}
	score := 0.0
	if len(verdicts) > 0 {
		score = float64(matched) / float64(len(verdicts))
	}

	report := model.ReconciliationReport{
		Reconciled:    matched == len(verdicts),
		Score:         score,
		FieldVerdicts: verdicts,
	}
	report.Summary = buildSummary(report)
	return report
}

func (r *Reconciler) reconcileAmount(a, b *decimal.Decimal) model.FieldVerdict {
	v := model.FieldVerdict{
		Field:  model.FieldTotalAmount,
		ValueA: amountString(a),
		ValueB: amountString(b),
	}
	if a == nil || b == nil {
		v.Reason = "Missing amount data"
		return v
	}
	matched, diff := match.Numeric(*a, *b, r.amountTolerance)
	tol := r.amountTolerance
	v.Matched = matched
	v.Difference = &diff
	v.Tolerance = &tol
	if matched {
		v.Reason = "Amounts match within tolerance"
	} else {
		v.Reason = fmt.Sprintf("Difference of %s exceeds tolerance", diff.StringFixed(2))
	}
	return v
}

func (r *Reconciler) reconcileIdentifier(field string, a, b *string) model.FieldVerdict {
	v := model.FieldVerdict{
		Field:  field,
		ValueA: strValue(a),
		ValueB: strValue(b),
	}
	if a == nil || b == nil {
		v.Reason = "Missing " + field
		return v
	}
	v.Matched = match.Identifier(*a, *b)
	if v.Matched {
		v.Reason = field + " matches"
	} else {
		v.Reason = field + " mismatch"
	}
	return v
}

func (r *Reconciler) reconcileText(field string, a, b *string) model.FieldVerdict {
	v := model.FieldVerdict{
		Field:  field,
		ValueA: strValue(a),
		ValueB: strValue(b),
	}
	if a == nil || b == nil {
		v.Reason = "Missing " + field
		return v
	}
	matched, similarity := match.Text(*a, *b, r.textThreshold)
	threshold := r.textThreshold
	v.Matched = matched
	v.Similarity = &similarity
	v.Threshold = &threshold
	if matched {
		v.Reason = fmt.Sprintf("%s matches (similarity: %.2f%%)", field, similarity*100)
	} else {
		v.Reason = fmt.Sprintf("%s similarity too low (%.2f%%)", field, similarity*100)
	}
	return v
}

func (r *Reconciler) reconcileDate(a, b *string) model.FieldVerdict {
	v := model.FieldVerdict{
		Field:  model.FieldInvoiceDate,
		ValueA: strValue(a),
		ValueB: strValue(b),
	}
	if a == nil || b == nil {
		v.Reason = "Missing date"
		return v
	}
	v.Matched = match.Date(*a, *b)
	if v.Matched {
		v.Reason = "Dates match"
	} else {
		v.Reason = "Date mismatch"
	}
	return v
}

// ReconcileBatch pairs extracted records with references using the
// configured assignment strategy and reconciles each pair.
func (r *Reconciler) ReconcileBatch(extracted []model.ExtractedRecord, refs []model.ReferenceRecord) model.BatchResult {
	zap.L().Info("reconciling batch",
		zap.Int("extracted", len(extracted)),
		zap.Int("references", len(refs)))
	return r.assigner.Assign(extracted, refs, r.Reconcile)
}

// Assigner pairs extracted records with reference records. The score
// function reconciles a candidate pair; implementations must not
// mutate the input slices.
type Assigner interface {
	Assign(extracted []model.ExtractedRecord, refs []model.ReferenceRecord,
		score func(model.ExtractedRecord, model.ReferenceRecord) model.ReconciliationReport) model.BatchResult
}

// GreedyAssigner walks extracted records in order. For each one it
// considers the remaining references whose invoice number matches
// after normalization, keeps the candidate with the strictly best
// reconciliation score, and removes it from the pool. Ties go to the
// earlier reference.
type GreedyAssigner struct{}

func (GreedyAssigner) Assign(extracted []model.ExtractedRecord, refs []model.ReferenceRecord,
	score func(model.ExtractedRecord, model.ReferenceRecord) model.ReconciliationReport) model.BatchResult {

	result := model.BatchResult{
		TotalExtracted:  len(extracted),
		TotalReferences: len(refs),
	}

	remaining := make([]model.ReferenceRecord, len(refs))
	copy(remaining, refs)

	for _, ext := range extracted {
		bestIdx := -1
		bestScore := 0.0
		var bestReport model.ReconciliationReport

		if ext.InvoiceNumber != nil {
			for i, ref := range remaining {
				if ref.InvoiceNumber == nil || !match.Identifier(*ext.InvoiceNumber, *ref.InvoiceNumber) {
					continue
				}
				report := score(ext, ref)
				if report.Score > bestScore {
					bestIdx = i
					bestScore = report.Score
					bestReport = report
				}
			}
		}

		if bestIdx < 0 {
			result.UnmatchedExtracted = append(result.UnmatchedExtracted, ext)
			continue
		}
		result.Pairs = append(result.Pairs, model.BatchPair{
			Extracted: ext,
			Reference: remaining[bestIdx],
			Report:    bestReport,
		})
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	result.Matched = len(result.Pairs)
	result.UnmatchedReferences = remaining
	return result
}

func buildSummary(report model.ReconciliationReport) string {
	discrepancies := report.Discrepancies()

	var b strings.Builder
	b.WriteString("Reconciliation Summary:\n")
	fmt.Fprintf(&b, "- Total fields checked: %d\n", len(report.FieldVerdicts))
	fmt.Fprintf(&b, "- Matched: %d\n", len(report.Matches()))
	fmt.Fprintf(&b, "- Discrepancies: %d\n", len(discrepancies))

	if len(discrepancies) == 0 {
		b.WriteString("\nAll fields reconciled successfully!")
		return b.String()
	}
	b.WriteString("\nDiscrepancies found in:\n")
	for _, d := range discrepancies {
		fmt.Fprintf(&b, "  - %s: %s\n", d.Field, d.Reason)
	}
	return b.String()
}

func amountString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
