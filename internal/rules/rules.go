// Package rules implements record-level validation. Each rule inspects
// a single extracted record and either produces a verdict or abstains
// when the data it needs is absent. Missing data is never an error.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agenticap/invoice-cli/internal/model"
)

// Rule is a named check over one extracted record. Check returns nil
// when the rule abstains; an abstention is not a pass.
type Rule struct {
	Name        string
	Description string
	Check       func(model.ExtractedRecord) *model.RuleVerdict
}

// Engine evaluates a fixed rule set against extracted records.
type Engine struct {
	rules []Rule
}

// Thresholds carries the tunable limits for the built-in rules.
type Thresholds struct {
	MathCheckTolerance      decimal.Decimal
	TaxRateWarningThreshold decimal.Decimal
	LargeAmountThreshold    decimal.Decimal
}

// NewEngine builds the standard rule set with the given thresholds.
func NewEngine(th Thresholds) *Engine {
	return &Engine{rules: []Rule{
		requiredFieldsRule(),
		mathCheckRule(th.MathCheckTolerance),
		taxRateRule(th.TaxRateWarningThreshold),
		dateConsistencyRule(),
		amountSanityRule(th.LargeAmountThreshold),
	}}
}

// Evaluate runs every rule in registration order and returns the
// verdicts of the rules that did not abstain.
func (e *Engine) Evaluate(rec model.ExtractedRecord) []model.RuleVerdict {
	verdicts := make([]model.RuleVerdict, 0, len(e.rules))
	for _, r := range e.rules {
		v := r.Check(rec)
		if v == nil {
			zap.L().Debug("rule skipped", zap.String("rule", r.Name))
			continue
		}
		verdicts = append(verdicts, *v)
	}
	return verdicts
}

// Rules exposes the registered rules, for capability listings.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func requiredFieldsRule() Rule {
	const desc = "All required fields are present"
	return Rule{
		Name:        "required_fields_present",
		Description: desc,
		Check: func(rec model.ExtractedRecord) *model.RuleVerdict {
			missing := rec.MissingRequired()
			if len(missing) == 0 {
				return &model.RuleVerdict{
					RuleName:        "required_fields_present",
					RuleDescription: desc,
					Status:          model.RulePassed,
				}
			}
			return &model.RuleVerdict{
				RuleName:        "required_fields_present",
				RuleDescription: desc,
				Status:          model.RuleFailed,
				ErrorMessage:    "Missing " + strings.Join(missing, ", "),
			}
		},
	}
}

func mathCheckRule(tolerance decimal.Decimal) Rule {
	const desc = "Subtotal plus tax equals total"
	return Rule{
		Name:        "math_check_subtotal_tax",
		Description: desc,
		Check: func(rec model.ExtractedRecord) *model.RuleVerdict {
			if rec.Subtotal == nil || rec.TaxAmount == nil || rec.TotalAmount == nil {
				return nil
			}
			expected := rec.Subtotal.Add(*rec.TaxAmount)
			diff := expected.Sub(*rec.TotalAmount).Abs()
			v := &model.RuleVerdict{
				RuleName:        "math_check_subtotal_tax",
				RuleDescription: desc,
				ExpectedValue:   expected.StringFixed(2),
				ActualValue:     rec.TotalAmount.StringFixed(2),
				Tolerance:       tolerance.String(),
			}
			if diff.LessThanOrEqual(tolerance) {
				v.Status = model.RulePassed
				return v
			}
			v.Status = model.RuleFailed
			v.ErrorMessage = fmt.Sprintf("Subtotal %s + tax %s = %s does not equal total %s",
				rec.Subtotal.StringFixed(2), rec.TaxAmount.StringFixed(2),
				expected.StringFixed(2), rec.TotalAmount.StringFixed(2))
			return v
		},
	}
}

func taxRateRule(warnThreshold decimal.Decimal) Rule {
	const desc = "Tax rate is within a plausible range"
	return Rule{
		Name:        "tax_rate_sanity",
		Description: desc,
		Check: func(rec model.ExtractedRecord) *model.RuleVerdict {
			if rec.TaxAmount == nil || rec.TotalAmount == nil {
				return nil
			}
			// A non-positive total is amount_sanity's verdict; a rate
			// against it is meaningless here.
			if !rec.TaxAmount.IsPositive() || !rec.TotalAmount.IsPositive() {
				return nil
			}
			rate := rec.TaxAmount.Div(*rec.TotalAmount)
			v := &model.RuleVerdict{
				RuleName:        "tax_rate_sanity",
				RuleDescription: desc,
				ActualValue:     rate.StringFixed(4),
				Tolerance:       warnThreshold.String(),
			}
			if rate.GreaterThan(warnThreshold) {
				v.Status = model.RuleWarning
				v.ErrorMessage = fmt.Sprintf("Tax rate %s exceeds %s of total", rate.StringFixed(4), warnThreshold.String())
				return v
			}
			v.Status = model.RulePassed
			return v
		},
	}
}

func dateConsistencyRule() Rule {
	const desc = "Due date does not precede invoice date"
	return Rule{
		Name:        "date_consistency",
		Description: desc,
		Check: func(rec model.ExtractedRecord) *model.RuleVerdict {
			if rec.InvoiceDate == nil || rec.DueDate == nil {
				return nil
			}
			invoiced, err1 := time.Parse("2006-01-02", *rec.InvoiceDate)
			due, err2 := time.Parse("2006-01-02", *rec.DueDate)
			if err1 != nil || err2 != nil {
				// Unparseable dates are an extraction problem, not a
				// verdict for this rule.
				return nil
			}
			v := &model.RuleVerdict{
				RuleName:        "date_consistency",
				RuleDescription: desc,
				ExpectedValue:   *rec.InvoiceDate,
				ActualValue:     *rec.DueDate,
			}
			if due.Before(invoiced) {
				v.Status = model.RuleFailed
				v.ErrorMessage = fmt.Sprintf("Due date %s precedes invoice date %s", *rec.DueDate, *rec.InvoiceDate)
				return v
			}
			v.Status = model.RulePassed
			return v
		},
	}
}

func amountSanityRule(largeThreshold decimal.Decimal) Rule {
	const desc = "Total amount is positive and plausibly sized"
	return Rule{
		Name:        "amount_sanity",
		Description: desc,
		Check: func(rec model.ExtractedRecord) *model.RuleVerdict {
			if rec.TotalAmount == nil {
				return nil
			}
			v := &model.RuleVerdict{
				RuleName:        "amount_sanity",
				RuleDescription: desc,
				ActualValue:     rec.TotalAmount.StringFixed(2),
			}
			if rec.TotalAmount.LessThanOrEqual(decimal.Zero) {
				v.Status = model.RuleFailed
				v.ErrorMessage = fmt.Sprintf("Total amount %s is not positive", rec.TotalAmount.StringFixed(2))
				return v
			}
			if rec.TotalAmount.GreaterThan(largeThreshold) {
				v.Status = model.RuleWarning
				v.ErrorMessage = fmt.Sprintf("Total amount %s exceeds %s", rec.TotalAmount.StringFixed(2), largeThreshold.String())
				return v
			}
			v.Status = model.RulePassed
			return v
		},
	}
}
