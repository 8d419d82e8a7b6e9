package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testInvoice(vendor, number, hash string) *model.Invoice {
	total := decimal.NewFromInt(1000)
	return &model.Invoice{
		ID:       uuid.NewString(),
		FileName: number + ".pdf",
		FileHash: hash,
		Format:   "pdf",
		Status:   model.InvoiceStatusCompleted,
		Record: model.ExtractedRecord{
			VendorName:    &vendor,
			InvoiceNumber: &number,
			TotalAmount:   &total,
		},
		ExtractionConfidence: 0.9,
		OverallConfidence:    0.95,
	}
}

func TestSQLiteSaveAndGetInvoice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := testInvoice("Acme Corp", "INV-001", "hash-1")
	inv.RuleVerdicts = []model.RuleVerdict{
		{RuleName: "amount_sanity", Status: model.RulePassed},
	}
	require.NoError(t, s.SaveInvoice(ctx, inv))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, "INV-001.pdf", got.FileName)
	assert.Equal(t, model.InvoiceStatusCompleted, got.Status)
	require.NotNil(t, got.Record.VendorName)
	assert.Equal(t, "Acme Corp", *got.Record.VendorName)
	require.NotNil(t, got.Record.TotalAmount)
	assert.True(t, got.Record.TotalAmount.Equal(decimal.NewFromInt(1000)))
	require.Len(t, got.RuleVerdicts, 1)
	assert.Equal(t, "amount_sanity", got.RuleVerdicts[0].RuleName)
	assert.Nil(t, got.Reconciliation)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteGetInvoiceNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetInvoice(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice not found")
}

func TestSQLiteSaveInvoiceUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := testInvoice("Acme Corp", "INV-001", "hash-1")
	inv.Status = model.InvoiceStatusProcessing
	require.NoError(t, s.SaveInvoice(ctx, inv))

	inv.Status = model.InvoiceStatusCompleted
	inv.OverallConfidence = 0.99
	require.NoError(t, s.SaveInvoice(ctx, inv))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusCompleted, got.Status)
	assert.InDelta(t, 0.99, got.OverallConfidence, 1e-9)

	invoices, err := s.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestSQLiteGetInvoiceByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := testInvoice("Acme Corp", "INV-001", "hash-dedupe")
	require.NoError(t, s.SaveInvoice(ctx, inv))

	got, err := s.GetInvoiceByHash(ctx, "hash-dedupe")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inv.ID, got.ID)

	miss, err := s.GetInvoiceByHash(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSQLiteListInvoicesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testInvoice("Acme Corp", "INV-001", "h1")
	b := testInvoice("Globex", "INV-002", "h2")
	c := testInvoice("Acme Corp", "INV-003", "h3")
	c.Status = model.InvoiceStatusFailed
	for _, inv := range []*model.Invoice{a, b, c} {
		require.NoError(t, s.SaveInvoice(ctx, inv))
	}

	all, err := s.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	acme, err := s.ListInvoices(ctx, InvoiceFilter{Vendor: "Acme Corp"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	failed, err := s.ListInvoices(ctx, InvoiceFilter{Status: model.InvoiceStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, c.ID, failed[0].ID)

	limited, err := s.ListInvoices(ctx, InvoiceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testInvoice("Acme Corp", "INV-001", "h1")
	a.OverallConfidence = 0.8
	a.Reconciliation = &model.ReconciliationReport{Reconciled: true, Score: 1.0}
	b := testInvoice("Globex", "INV-002", "h2")
	b.OverallConfidence = 0.6
	c := testInvoice("Initech", "INV-003", "h3")
	c.Status = model.InvoiceStatusFailed
	for _, inv := range []*model.Invoice{a, b, c} {
		require.NoError(t, s.SaveInvoice(ctx, inv))
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInvoices)
	assert.Equal(t, 2, stats.ByStatus["completed"])
	assert.Equal(t, 1, stats.ByStatus["failed"])
	assert.Equal(t, 1, stats.ReconciledCount)
	assert.InDelta(t, 0.7, stats.AverageConfidence, 1e-9)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
