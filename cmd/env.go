package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/agenticap/invoice-cli/internal/extract"
	"github.com/agenticap/invoice-cli/internal/ingest"
	"github.com/agenticap/invoice-cli/internal/ocr"
	"github.com/agenticap/invoice-cli/internal/pipeline"
	"github.com/agenticap/invoice-cli/internal/reconcile"
	"github.com/agenticap/invoice-cli/internal/store"
	"github.com/agenticap/invoice-cli/pkg/anthropic"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed
// by the process/batch/serve commands.
type pipelineEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Reconciler *reconcile.Reconciler
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the Anthropic client, and the
// processing pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("INVOICE_ANTHROPIC_KEY is not set")
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rc, err := reconcile.New(cfg.Engine)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ocrExtractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	client := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(client, cfg.Anthropic, cfg.Extract)
	reader := ingest.NewFileReader(cfg.Ingest, ocrExtractor)

	return &pipelineEnv{
		Store:      st,
		Pipeline:   pipeline.New(cfg, st, reader, extractor, rc),
		Reconciler: rc,
	}, nil
}

// initStore opens and migrates only the store, for commands that never
// touch the Anthropic API.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
