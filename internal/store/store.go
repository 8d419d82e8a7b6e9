package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/model"
)

// InvoiceFilter specifies criteria for listing invoices.
type InvoiceFilter struct {
	Status model.InvoiceStatus `json:"status,omitempty"`
	Vendor string              `json:"vendor,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Stats summarizes stored invoices for the analytics endpoint.
type Stats struct {
	TotalInvoices     int            `json:"total_invoices"`
	ByStatus          map[string]int `json:"by_status"`
	ReconciledCount   int            `json:"reconciled_count"`
	AverageConfidence float64        `json:"average_confidence"`
}

// Store defines the persistence interface for processed invoices.
type Store interface {
	// SaveInvoice inserts or replaces an invoice by ID.
	SaveInvoice(ctx context.Context, inv *model.Invoice) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	// GetInvoiceByHash returns nil without error when no invoice has
	// the given content hash.
	GetInvoiceByHash(ctx context.Context, hash string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error)
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open selects and opens a Store based on the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
