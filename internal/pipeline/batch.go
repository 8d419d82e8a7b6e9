package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/resilience"
)

// BatchReport summarizes one batch processing run.
type BatchReport struct {
	Total      int                   `json:"total"`
	Successful int                   `json:"successful"`
	Failed     int                   `json:"failed"`
	Invoices   []*model.Invoice      `json:"invoices"`
	DeadLetter []resilience.DLQEntry `json:"dead_letter,omitempty"`
}

// RunBatch processes multiple invoice documents concurrently, bounded
// by batch.max_concurrent. References are paired with files by index;
// files beyond the reference list are processed without reconciliation.
// Failures are collected as dead letter entries, they never abort the
// rest of the batch.
func (p *Pipeline) RunBatch(ctx context.Context, filePaths []string, refs []model.ReferenceRecord) (*BatchReport, error) {
	log := zap.L().With(zap.Int("files", len(filePaths)))
	log.Info("pipeline: processing batch")

	// One sequential primer request warms the prompt cache before the
	// concurrent workers start.
	if len(filePaths) > 1 {
		if err := p.extractor.WarmCache(ctx); err != nil {
			log.Warn("pipeline: cache warm-up failed, continuing", zap.Error(err))
		}
	}

	maxConcurrent := p.cfg.Batch.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	rep := &BatchReport{
		Total:    len(filePaths),
		Invoices: make([]*model.Invoice, len(filePaths)),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, path := range filePaths {
		g.Go(func() error {
			var ref *model.ReferenceRecord
			if i < len(refs) {
				ref = &refs[i]
			}

			inv, err := p.Run(ctx, path, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed++
				rep.DeadLetter = append(rep.DeadLetter, newDLQEntry(path, "process", err))
				rep.Invoices[i] = inv
				return nil
			}
			rep.Successful++
			rep.Invoices[i] = inv
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rep, err
	}

	// Compact out slots left nil by documents that failed before an
	// invoice record existed.
	invoices := rep.Invoices[:0]
	for _, inv := range rep.Invoices {
		if inv != nil {
			invoices = append(invoices, inv)
		}
	}
	rep.Invoices = invoices

	log.Info("pipeline: batch complete",
		zap.Int("successful", rep.Successful),
		zap.Int("failed", rep.Failed))
	return rep, nil
}

func newDLQEntry(filePath, phase string, err error) resilience.DLQEntry {
	now := time.Now().UTC()
	return resilience.DLQEntry{
		ID:           uuid.NewString(),
		FilePath:     filePath,
		Error:        err.Error(),
		ErrorType:    resilience.ClassifyError(err),
		FailedPhase:  phase,
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  now.Add(time.Minute),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}
