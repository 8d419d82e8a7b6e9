// Package pipeline orchestrates the read, reason, reconcile flow for a
// single invoice document and for batches of documents.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/extract"
	"github.com/agenticap/invoice-cli/internal/ingest"
	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/reconcile"
	"github.com/agenticap/invoice-cli/internal/report"
	"github.com/agenticap/invoice-cli/internal/rules"
	"github.com/agenticap/invoice-cli/internal/store"
)

// Extractor is the LLM extraction dependency of the pipeline.
type Extractor interface {
	Extract(ctx context.Context, doc *ingest.Document) (model.ExtractedRecord, error)
	Refine(ctx context.Context, doc *ingest.Document, prev model.ExtractedRecord, failed []model.RuleVerdict) (model.ExtractedRecord, error)
	WarmCache(ctx context.Context) error
	MaxRefinements() int
}

var _ Extractor = (*extract.Extractor)(nil)

// Pipeline wires the document reader, extractor, rules engine,
// reconciler, and store into the end-to-end processing flow.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	reader     ingest.Reader
	extractor  Extractor
	rules      *rules.Engine
	reconciler *reconcile.Reconciler
	policy     report.ConfidencePolicy
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	reader ingest.Reader,
	extractor Extractor,
	reconciler *reconcile.Reconciler,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		reader:    reader,
		extractor: extractor,
		rules: rules.NewEngine(rules.Thresholds{
			MathCheckTolerance:      decimal.NewFromFloat(cfg.Engine.MathCheckTolerance),
			TaxRateWarningThreshold: decimal.NewFromFloat(cfg.Engine.TaxRateWarningThreshold),
			LargeAmountThreshold:    decimal.NewFromFloat(cfg.Engine.LargeAmountThreshold),
		}),
		reconciler: reconciler,
		policy:     report.BoostAveragePolicy{},
	}
}

// Rules exposes the validation rule set for capability listings.
func (p *Pipeline) Rules() []rules.Rule {
	return p.rules.Rules()
}

// RunOption adjusts how a single pipeline run behaves.
type RunOption func(*runOptions)

type runOptions struct {
	force bool
}

// WithForce reprocesses a document even when its content hash is
// already stored.
func WithForce() RunOption {
	return func(o *runOptions) { o.force = true }
}

// Run processes a single invoice document end to end: read the file,
// extract fields, validate, optionally reconcile against reference
// data, and persist the result. A document whose content hash is
// already stored is returned as-is without reprocessing, unless
// WithForce is given.
func (p *Pipeline) Run(ctx context.Context, filePath string, ref *model.ReferenceRecord, opts ...RunOption) (*model.Invoice, error) {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}

	log := zap.L().With(zap.String("file", filePath))
	log.Info("pipeline: processing invoice")

	doc, err := p.reader.Read(ctx, filePath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read document")
	}

	if !options.force {
		if existing, err := p.store.GetInvoiceByHash(ctx, doc.Hash); err != nil {
			return nil, eris.Wrap(err, "pipeline: dedupe lookup")
		} else if existing != nil {
			log.Info("pipeline: duplicate document, returning stored result",
				zap.String("invoice_id", existing.ID))
			return existing, nil
		}
	}

	inv := &model.Invoice{
		ID:       uuid.NewString(),
		FileName: doc.FileName,
		FilePath: doc.FilePath,
		FileHash: doc.Hash,
		Format:   doc.Format,
		Status:   model.InvoiceStatusProcessing,
	}

	rec, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		inv.Status = model.InvoiceStatusFailed
		inv.ErrorMessage = err.Error()
		if saveErr := p.store.SaveInvoice(ctx, inv); saveErr != nil {
			log.Warn("pipeline: failed to persist failed invoice", zap.Error(saveErr))
		}
		return inv, eris.Wrap(err, "pipeline: extract")
	}

	verdicts := p.rules.Evaluate(rec)
	rec, verdicts, inv.Refined = p.refine(ctx, doc, rec, verdicts)

	if ref != nil {
		recon := p.reconciler.Reconcile(rec, *ref)
		inv.Reconciliation = &recon
	}

	inv.Record = rec
	inv.RuleVerdicts = verdicts
	inv.ExtractionConfidence = report.ExtractionConfidence(rec, verdicts)
	inv.OverallConfidence = p.policy.Overall(inv.ExtractionConfidence, inv.Reconciliation)
	inv.Status = model.InvoiceStatusCompleted

	if err := p.store.SaveInvoice(ctx, inv); err != nil {
		return nil, eris.Wrap(err, "pipeline: save invoice")
	}

	log.Info("pipeline: invoice processed",
		zap.String("invoice_id", inv.ID),
		zap.Float64("overall_confidence", inv.OverallConfidence),
		zap.Bool("refined", inv.Refined))
	return inv, nil
}

// refine runs corrective extraction passes while validation rules fail.
// A refined record is accepted only when it fails strictly fewer rules
// than the record it replaces.
func (p *Pipeline) refine(ctx context.Context, doc *ingest.Document, rec model.ExtractedRecord, verdicts []model.RuleVerdict) (model.ExtractedRecord, []model.RuleVerdict, bool) {
	refinedAny := false
	for i := 0; i < p.extractor.MaxRefinements(); i++ {
		failed := failedVerdicts(verdicts)
		if len(failed) == 0 {
			break
		}

		refined, err := p.extractor.Refine(ctx, doc, rec, failed)
		if err != nil {
			zap.L().Warn("pipeline: refinement failed, keeping previous extraction",
				zap.String("file", doc.FileName), zap.Error(err))
			break
		}

		refinedVerdicts := p.rules.Evaluate(refined)
		if len(failedVerdicts(refinedVerdicts)) >= len(failed) {
			zap.L().Debug("pipeline: refinement did not improve, keeping previous extraction",
				zap.String("file", doc.FileName))
			break
		}

		rec = refined
		verdicts = refinedVerdicts
		refinedAny = true
	}
	return rec, verdicts, refinedAny
}

func failedVerdicts(verdicts []model.RuleVerdict) []model.RuleVerdict {
	var failed []model.RuleVerdict
	for _, v := range verdicts {
		if v.Status == model.RuleFailed {
			failed = append(failed, v)
		}
	}
	return failed
}
