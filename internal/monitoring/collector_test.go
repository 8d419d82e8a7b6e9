package monitoring

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	stats    *store.Stats
	statsErr error
}

func (m *mockStore) Stats(_ context.Context) (*store.Stats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	if m.stats == nil {
		return &store.Stats{ByStatus: map[string]int{}}, nil
	}
	return m.stats, nil
}

// Unused store methods, satisfy the interface.
func (m *mockStore) SaveInvoice(context.Context, *model.Invoice) error { return nil }
func (m *mockStore) GetInvoice(context.Context, string) (*model.Invoice, error) {
	return nil, nil
}
func (m *mockStore) GetInvoiceByHash(context.Context, string) (*model.Invoice, error) {
	return nil, nil
}
func (m *mockStore) ListInvoices(context.Context, store.InvoiceFilter) ([]model.Invoice, error) {
	return nil, nil
}
func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, snap.InvoicesTotal)
	assert.Equal(t, 0, snap.InvoicesFailed)
	assert.Equal(t, 0.0, snap.FailureRate)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_InvoiceMetrics(t *testing.T) {
	st := &mockStore{
		stats: &store.Stats{
			TotalInvoices: 10,
			ByStatus: map[string]int{
				string(model.InvoiceStatusCompleted):  6,
				string(model.InvoiceStatusFailed):     2,
				string(model.InvoiceStatusProcessing): 2,
			},
			ReconciledCount:   4,
			AverageConfidence: 0.87,
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, snap.InvoicesTotal)
	assert.Equal(t, 6, snap.InvoicesCompleted)
	assert.Equal(t, 2, snap.InvoicesFailed)
	assert.Equal(t, 2, snap.InvoicesProcessing)
	assert.InDelta(t, 0.25, snap.FailureRate, 0.001) // 2 failed / 8 finished
	assert.InDelta(t, 0.87, snap.AverageConfidence, 0.001)
	assert.Equal(t, 4, snap.ReconciledCount)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	st := &mockStore{
		stats: &store.Stats{
			TotalInvoices: 2,
			ByStatus: map[string]int{
				string(model.InvoiceStatusProcessing): 2,
			},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.0, snap.FailureRate)
}

func TestCollector_StatsError(t *testing.T) {
	c := NewCollector(&mockStore{statsErr: eris.New("db gone")})

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store stats")
}
