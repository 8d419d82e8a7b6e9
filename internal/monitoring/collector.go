package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of processing health.
type MetricsSnapshot struct {
	InvoicesTotal      int     `json:"invoices_total"`
	InvoicesCompleted  int     `json:"invoices_completed"`
	InvoicesFailed     int     `json:"invoices_failed"`
	InvoicesProcessing int     `json:"invoices_processing"`
	FailureRate        float64 `json:"failure_rate"`
	AverageConfidence  float64 `json:"average_confidence"`
	ReconciledCount    int     `json:"reconciled_count"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the invoice store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of processing metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: store stats")
	}

	snap := &MetricsSnapshot{
		InvoicesTotal:      stats.TotalInvoices,
		InvoicesCompleted:  stats.ByStatus[string(model.InvoiceStatusCompleted)],
		InvoicesFailed:     stats.ByStatus[string(model.InvoiceStatusFailed)],
		InvoicesProcessing: stats.ByStatus[string(model.InvoiceStatusProcessing)],
		AverageConfidence:  stats.AverageConfidence,
		ReconciledCount:    stats.ReconciledCount,
		CollectedAt:        time.Now().UTC(),
	}

	finished := snap.InvoicesCompleted + snap.InvoicesFailed
	if finished > 0 {
		snap.FailureRate = float64(snap.InvoicesFailed) / float64(finished)
	}

	return snap, nil
}
