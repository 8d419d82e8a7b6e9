package model

import "github.com/shopspring/decimal"

// RuleStatus is the outcome class of a validation rule.
type RuleStatus string

const (
	RulePassed  RuleStatus = "passed"
	RuleFailed  RuleStatus = "failed"
	RuleWarning RuleStatus = "warning"
)

// FieldVerdict records the outcome of comparing one field between an
// extracted record and a reference record. Immutable once produced.
type FieldVerdict struct {
	Field   string `json:"field"`
	Matched bool   `json:"matched"`
	ValueA  string `json:"value_a,omitempty"`
	ValueB  string `json:"value_b,omitempty"`
	Reason  string `json:"reason"`

	// Numeric comparisons.
	Difference *decimal.Decimal `json:"difference,omitempty"`
	Tolerance  *decimal.Decimal `json:"tolerance,omitempty"`

	// Text comparisons.
	Similarity *float64 `json:"similarity,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// RuleVerdict records the outcome of one validation rule evaluation.
// A rule that was skipped (required inputs absent) produces no verdict
// at all, which is distinct from a passed verdict.
type RuleVerdict struct {
	RuleName        string     `json:"rule_name"`
	RuleDescription string     `json:"rule_description"`
	Status          RuleStatus `json:"status"`
	ExpectedValue   string     `json:"expected_value,omitempty"`
	ActualValue     string     `json:"actual_value,omitempty"`
	Tolerance       string     `json:"tolerance,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// ReconciliationReport is the full outcome of reconciling one extracted
// record against one reference record. Created fresh per evaluation and
// never mutated afterwards.
type ReconciliationReport struct {
	Reconciled    bool           `json:"reconciled"`
	Score         float64        `json:"score"`
	FieldVerdicts []FieldVerdict `json:"field_verdicts"`
	Summary       string         `json:"summary"`
}

// Matches returns the verdicts that matched, in evaluation order.
func (r ReconciliationReport) Matches() []FieldVerdict {
	var out []FieldVerdict
	for _, v := range r.FieldVerdicts {
		if v.Matched {
			out = append(out, v)
		}
	}
	return out
}

// Discrepancies returns the verdicts that did not match, in evaluation order.
func (r ReconciliationReport) Discrepancies() []FieldVerdict {
	var out []FieldVerdict
	for _, v := range r.FieldVerdicts {
		if !v.Matched {
			out = append(out, v)
		}
	}
	return out
}
