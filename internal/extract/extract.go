// Package extract turns ingested document text into structured invoice
// records using the Anthropic API. Calls are rate limited, retried on
// transient failures, and guarded by a circuit breaker.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/ingest"
	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/resilience"
	"github.com/agenticap/invoice-cli/pkg/anthropic"
)

// Extractor extracts invoice fields from document text.
type Extractor struct {
	client            anthropic.Client
	model             string
	maxTokens         int64
	defaultConfidence float64
	maxRefinements    int
	limiter           *rate.Limiter
	breaker           *resilience.CircuitBreaker
	retryCfg          resilience.RetryConfig
}

// New builds an Extractor from configuration.
func New(client anthropic.Client, anthCfg config.AnthropicConfig, cfg config.ExtractConfig) *Extractor {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	return &Extractor{
		client:            client,
		model:             anthCfg.Model,
		maxTokens:         cfg.MaxTokens,
		defaultConfidence: cfg.DefaultConfidence,
		maxRefinements:    cfg.MaxRefinements,
		limiter:           rate.NewLimiter(rate.Limit(rps), 1),
		breaker:           resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retryCfg:          retryCfg,
	}
}

// MaxRefinements reports how many corrective passes are allowed.
func (e *Extractor) MaxRefinements() int {
	return e.maxRefinements
}

// WarmCache issues a primer request so that subsequent extraction
// requests hit the prompt cache. Worth one small request before a
// batch; pointless for single documents.
func (e *Extractor) WarmCache(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "extract: rate limiter")
	}
	_, err := anthropic.PrimerRequest(ctx, e.client, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: "Acknowledge that you are ready to extract invoices."}},
	})
	return err
}

// Extract parses invoice fields out of a document. A document with no
// text yields an empty record without calling the API.
func (e *Extractor) Extract(ctx context.Context, doc *ingest.Document) (model.ExtractedRecord, error) {
	if strings.TrimSpace(doc.Text) == "" {
		zap.L().Warn("document has no text, skipping extraction",
			zap.String("file", doc.FileName))
		return model.ExtractedRecord{Confidence: map[string]float64{}}, nil
	}

	user := "Extract the invoice fields from this document:\n\n" + doc.Text
	resp, err := e.complete(ctx, user, "extract")
	if err != nil {
		return model.ExtractedRecord{}, err
	}
	return e.parseResponse(resp)
}

// Refine runs one corrective extraction pass, feeding the failed rule
// verdicts back to the model alongside the previous record.
func (e *Extractor) Refine(ctx context.Context, doc *ingest.Document, prev model.ExtractedRecord, failed []model.RuleVerdict) (model.ExtractedRecord, error) {
	var issues strings.Builder
	for _, v := range failed {
		fmt.Fprintf(&issues, "- %s: %s\n", v.RuleName, v.ErrorMessage)
	}

	user := fmt.Sprintf(`A previous extraction of this document failed validation.

Validation problems:
%s
Re-read the document carefully and produce a corrected extraction. Pay
particular attention to the fields named in the problems above.

Document:

%s`, issues.String(), doc.Text)

	resp, err := e.complete(ctx, user, "refine")
	if err != nil {
		return model.ExtractedRecord{}, err
	}
	return e.parseResponse(resp)
}

func (e *Extractor) complete(ctx context.Context, user, phase string) (*anthropic.MessageResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limiter")
	}

	req := anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	}

	resp, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, e.retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return e.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s request", phase)
	}

	resp.Usage.LogCost(e.model, phase)
	return resp, nil
}

func (e *Extractor) parseResponse(resp *anthropic.MessageResponse) (model.ExtractedRecord, error) {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	rec, err := parseRecord(text, e.defaultConfidence)
	if err != nil {
		return model.ExtractedRecord{}, err
	}
	return rec, nil
}
