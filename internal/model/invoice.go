package model

import "time"

// InvoiceStatus tracks an invoice through the processing pipeline.
type InvoiceStatus string

const (
	InvoiceStatusProcessing InvoiceStatus = "processing"
	InvoiceStatusCompleted  InvoiceStatus = "completed"
	InvoiceStatusFailed     InvoiceStatus = "failed"
)

// Invoice is the persistence envelope for one processed document:
// the extracted record plus every verdict the engine produced for it.
type Invoice struct {
	ID       string        `json:"id"`
	FileName string        `json:"file_name"`
	FilePath string        `json:"file_path,omitempty"`
	FileHash string        `json:"file_hash"`
	Format   string        `json:"format,omitempty"`
	Status   InvoiceStatus `json:"status"`

	Record       ExtractedRecord `json:"record"`
	RuleVerdicts []RuleVerdict   `json:"rule_verdicts,omitempty"`

	// Reconciliation is nil when no reference data was supplied.
	// Absence of reconciliation is not a failure state.
	Reconciliation *ReconciliationReport `json:"reconciliation,omitempty"`

	ExtractionConfidence float64 `json:"extraction_confidence"`
	OverallConfidence    float64 `json:"overall_confidence"`
	Refined              bool    `json:"refined,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BatchPair is one matched (extracted, reference) pair from batch
// reconciliation with its report.
type BatchPair struct {
	Extracted ExtractedRecord      `json:"extracted"`
	Reference ReferenceRecord      `json:"reference"`
	Report    ReconciliationReport `json:"report"`
}

// BatchResult summarizes one batch reconciliation run.
type BatchResult struct {
	TotalExtracted      int               `json:"total_extracted"`
	TotalReferences     int               `json:"total_references"`
	Matched             int               `json:"matched"`
	Pairs               []BatchPair       `json:"pairs"`
	UnmatchedExtracted  []ExtractedRecord `json:"unmatched_extracted,omitempty"`
	UnmatchedReferences []ReferenceRecord `json:"unmatched_references,omitempty"`
}
