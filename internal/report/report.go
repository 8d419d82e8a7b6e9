// Package report scores processed invoices and renders human-readable
// reports. Confidence scoring is split in two: an extraction heuristic
// derived from the record itself, and an overall policy that folds in
// reconciliation when a reference was supplied.
package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/agenticap/invoice-cli/internal/model"
)

const (
	missingFieldPenalty = 0.15
	failedRulePenalty   = 0.10
	warningPenalty      = 0.05
)

// ExtractionConfidence scores how trustworthy an extracted record is,
// starting from 1.0 and deducting per missing required field, failed
// rule, and warning. The result is clamped to [0, 1]. Used when the
// extractor supplies no confidence of its own.
func ExtractionConfidence(rec model.ExtractedRecord, verdicts []model.RuleVerdict) float64 {
	score := 1.0
	score -= float64(len(rec.MissingRequired())) * missingFieldPenalty
	for _, v := range verdicts {
		switch v.Status {
		case model.RuleFailed:
			score -= failedRulePenalty
		case model.RuleWarning:
			score -= warningPenalty
		}
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ConfidencePolicy folds reconciliation results into an overall
// confidence. A nil report means no reference was supplied; that is a
// normal state, not an error.
type ConfidencePolicy interface {
	Overall(extractionConfidence float64, recon *model.ReconciliationReport) float64
}

// BoostAveragePolicy is the default policy. A successful
// reconciliation boosts confidence by 10% (capped at 1.0); a failed
// one averages confidence with the reconciliation score; absent
// reconciliation leaves confidence untouched.
type BoostAveragePolicy struct{}

func (BoostAveragePolicy) Overall(confidence float64, recon *model.ReconciliationReport) float64 {
	if recon == nil {
		return confidence
	}
	if recon.Reconciled {
		boosted := confidence * 1.1
		if boosted > 1.0 {
			return 1.0
		}
		return boosted
	}
	return (confidence + recon.Score) / 2
}

// Summarize renders rule verdicts and field discrepancies as one
// deterministic block: failed rules first, then warnings, then passed
// rules, then reconciliation discrepancies.
func Summarize(verdicts []model.RuleVerdict, recon *model.ReconciliationReport) string {
	var failed, warned, passed []model.RuleVerdict
	for _, v := range verdicts {
		switch v.Status {
		case model.RuleFailed:
			failed = append(failed, v)
		case model.RuleWarning:
			warned = append(warned, v)
		case model.RulePassed:
			passed = append(passed, v)
		}
	}

	var b strings.Builder
	for _, v := range failed {
		fmt.Fprintf(&b, "FAILED %s: %s\n", v.RuleName, v.ErrorMessage)
	}
	for _, v := range warned {
		fmt.Fprintf(&b, "WARNING %s: %s\n", v.RuleName, v.ErrorMessage)
	}
	for _, v := range passed {
		fmt.Fprintf(&b, "PASSED %s\n", v.RuleName)
	}
	if recon != nil {
		for _, d := range recon.Discrepancies() {
			fmt.Fprintf(&b, "DISCREPANCY %s: %s\n", d.Field, d.Reason)
		}
	}
	return b.String()
}

// FormatReport renders a full processing report for one invoice.
func FormatReport(inv model.Invoice) string {
	line := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)

	var b strings.Builder
	b.WriteString(line + "\n")
	b.WriteString("INVOICE PROCESSING REPORT\n")
	b.WriteString(line + "\n\n")

	b.WriteString("DOCUMENT INFORMATION:\n")
	b.WriteString(thin + "\n")
	fmt.Fprintf(&b, "File: %s\n", inv.FileName)
	fmt.Fprintf(&b, "Format: %s\n", inv.Format)
	fmt.Fprintf(&b, "Status: %s\n\n", inv.Status)

	b.WriteString("ANALYSIS RESULTS:\n")
	b.WriteString(thin + "\n")
	fmt.Fprintf(&b, "Extraction Confidence: %.2f%%\n", inv.ExtractionConfidence*100)
	fmt.Fprintf(&b, "Validation Status: %s\n", validationStatus(inv.RuleVerdicts))

	if fields := extractedFields(inv.Record); len(fields) > 0 {
		b.WriteString("\nExtracted Invoice Data:\n")
		for _, f := range fields {
			fmt.Fprintf(&b, "  %s: %s\n", f.key, f.value)
		}
	}

	if len(inv.RuleVerdicts) > 0 {
		b.WriteString("\nRule Verdicts:\n")
		b.WriteString(indent(Summarize(inv.RuleVerdicts, nil)))
	}

	if inv.Reconciliation != nil {
		recon := inv.Reconciliation
		b.WriteString("\nRECONCILIATION RESULTS:\n")
		b.WriteString(thin + "\n")
		if recon.Reconciled {
			b.WriteString("Status: RECONCILED\n")
		} else {
			b.WriteString("Status: DISCREPANCIES FOUND\n")
		}
		fmt.Fprintf(&b, "Score: %.2f%%\n", recon.Score*100)
		fmt.Fprintf(&b, "Matches: %d\n", len(recon.Matches()))
		fmt.Fprintf(&b, "Discrepancies: %d\n", len(recon.Discrepancies()))
		if disc := recon.Discrepancies(); len(disc) > 0 {
			b.WriteString("\nDiscrepancy Details:\n")
			for _, d := range disc {
				fmt.Fprintf(&b, "  - %s: %s\n", d.Field, d.Reason)
			}
		}
	}

	fmt.Fprintf(&b, "\nOVERALL CONFIDENCE: %.2f%%\n", inv.OverallConfidence*100)
	b.WriteString("\n" + line + "\n")
	return b.String()
}

type reportField struct {
	key   string
	value string
}

// extractedFields lists present fields in a fixed display order.
func extractedFields(rec model.ExtractedRecord) []reportField {
	var fields []reportField
	add := func(key string, v *string) {
		if v != nil {
			fields = append(fields, reportField{key, *v})
		}
	}
	addAmount := func(key string, d *decimal.Decimal) {
		if d != nil {
			fields = append(fields, reportField{key, d.StringFixed(2)})
		}
	}

	add(model.FieldVendorName, rec.VendorName)
	add(model.FieldInvoiceNumber, rec.InvoiceNumber)
	add(model.FieldInvoiceDate, rec.InvoiceDate)
	add(model.FieldDueDate, rec.DueDate)
	addAmount(model.FieldSubtotal, rec.Subtotal)
	addAmount(model.FieldTaxAmount, rec.TaxAmount)
	addAmount(model.FieldTotalAmount, rec.TotalAmount)
	add(model.FieldCurrency, rec.Currency)
	return fields
}

func validationStatus(verdicts []model.RuleVerdict) string {
	for _, v := range verdicts {
		if v.Status == model.RuleFailed {
			return "FAILED"
		}
	}
	return "PASSED"
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
