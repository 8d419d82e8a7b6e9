package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/pipeline"
	"github.com/agenticap/invoice-cli/internal/reconcile"
	"github.com/agenticap/invoice-cli/internal/rules"
	"github.com/agenticap/invoice-cli/internal/store"
)

type stubProcessor struct {
	invoice   *model.Invoice
	err       error
	lastPath  string
	lastRef   *model.ReferenceRecord
	lastForce bool
	rules     []rules.Rule
}

func (s *stubProcessor) Run(ctx context.Context, filePath string, ref *model.ReferenceRecord, opts ...pipeline.RunOption) (*model.Invoice, error) {
	s.lastPath = filePath
	s.lastRef = ref
	s.lastForce = len(opts) > 0
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice, nil
}

func (s *stubProcessor) Rules() []rules.Rule {
	return s.rules
}

func testAPIConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			AmountTolerance:         0.01,
			MathCheckTolerance:      0.02,
			TextSimilarityThreshold: 0.8,
			TaxRateWarningThreshold: 0.30,
			LargeAmountThreshold:    1_000_000,
		},
		Ingest: config.IngestConfig{MaxFileSize: 1 << 20},
	}
}

func newTestServer(t *testing.T, proc Processor) (*httptest.Server, store.Store) {
	t.Helper()
	cfg := testAPIConfig()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	rc, err := reconcile.New(cfg.Engine)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(cfg, st, proc, rc))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedInvoice(t *testing.T, st store.Store, id, vendor string) *model.Invoice {
	t.Helper()
	number := "INV-" + id
	total := decimal.NewFromInt(1000)
	inv := &model.Invoice{
		ID:       id,
		FileName: number + ".pdf",
		FileHash: "hash-" + id,
		Status:   model.InvoiceStatusCompleted,
		Record: model.ExtractedRecord{
			VendorName:    &vendor,
			InvoiceNumber: &number,
			TotalAmount:   &total,
		},
		ExtractionConfidence: 0.9,
		OverallConfidence:    0.95,
	}
	require.NoError(t, st.SaveInvoice(context.Background(), inv))
	return inv
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{})

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestCapabilities(t *testing.T) {
	engine := rules.NewEngine(rules.Thresholds{
		MathCheckTolerance:      decimal.NewFromFloat(0.02),
		TaxRateWarningThreshold: decimal.NewFromFloat(0.30),
		LargeAmountThreshold:    decimal.NewFromInt(1_000_000),
	})
	srv, _ := newTestServer(t, &stubProcessor{rules: engine.Rules()})

	resp, err := http.Get(srv.URL + "/api/v1/capabilities")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Read      bool `json:"read"`
		Reason    bool `json:"reason"`
		Reconcile bool `json:"reconcile"`
		Rules     []struct {
			Name string `json:"name"`
		} `json:"rules"`
	}
	decodeJSON(t, resp, &body)
	assert.True(t, body.Read)
	assert.True(t, body.Reason)
	assert.True(t, body.Reconcile)
	assert.Len(t, body.Rules, 5)
	assert.Equal(t, "required_fields_present", body.Rules[0].Name)
}

func multipartUpload(t *testing.T, fileName, content, reference string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if reference != "" {
		require.NoError(t, mw.WriteField("reference", reference))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestProcessInvoiceUpload(t *testing.T) {
	vendor := "Acme Corp"
	proc := &stubProcessor{invoice: &model.Invoice{
		ID:     "inv-1",
		Status: model.InvoiceStatusCompleted,
		Record: model.ExtractedRecord{VendorName: &vendor},
	}}
	srv, _ := newTestServer(t, proc)

	body, contentType := multipartUpload(t, "invoice.txt", "Invoice INV-001 from Acme Corp", "")
	resp, err := http.Post(srv.URL+"/api/v1/invoices", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Invoice
	decodeJSON(t, resp, &got)
	assert.Equal(t, "inv-1", got.ID)
	assert.Equal(t, "invoice.txt", filepath.Base(proc.lastPath))
	assert.Nil(t, proc.lastRef)
}

func TestProcessInvoiceUploadWithReference(t *testing.T) {
	proc := &stubProcessor{invoice: &model.Invoice{ID: "inv-1"}}
	srv, _ := newTestServer(t, proc)

	ref := `{"invoice_number":"INV-001","total_amount":"1000"}`
	body, contentType := multipartUpload(t, "invoice.txt", "text", ref)
	resp, err := http.Post(srv.URL+"/api/v1/invoices", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NotNil(t, proc.lastRef)
	require.NotNil(t, proc.lastRef.InvoiceNumber)
	assert.Equal(t, "INV-001", *proc.lastRef.InvoiceNumber)
}

func TestProcessInvoiceForce(t *testing.T) {
	proc := &stubProcessor{invoice: &model.Invoice{ID: "inv-1"}}
	srv, _ := newTestServer(t, proc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "invoice.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Invoice INV-001"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("force", "true"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/invoices", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, proc.lastForce)
}

func TestProcessInvoiceMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("reference", "{}"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/invoices", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessInvoicePipelineError(t *testing.T) {
	proc := &stubProcessor{err: eris.New("extraction failed")}
	srv, _ := newTestServer(t, proc)

	body, contentType := multipartUpload(t, "invoice.txt", "text", "")
	resp, err := http.Post(srv.URL+"/api/v1/invoices", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var got map[string]string
	decodeJSON(t, resp, &got)
	assert.Contains(t, got["error"], "extraction failed")
}

func TestListInvoices(t *testing.T) {
	srv, st := newTestServer(t, &stubProcessor{})
	seedInvoice(t, st, "a", "Acme Corp")
	seedInvoice(t, st, "b", "Globex")

	resp, err := http.Get(srv.URL + "/api/v1/invoices?vendor=Acme+Corp")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Invoices []model.Invoice `json:"invoices"`
		Count    int             `json:"count"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Invoices, 1)
	assert.Equal(t, "a", body.Invoices[0].ID)
}

func TestGetInvoice(t *testing.T) {
	srv, st := newTestServer(t, &stubProcessor{})
	seedInvoice(t, st, "a", "Acme Corp")

	resp, err := http.Get(srv.URL + "/api/v1/invoices/a")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Invoice
	decodeJSON(t, resp, &got)
	assert.Equal(t, "a", got.ID)

	missing, err := http.Get(srv.URL + "/api/v1/invoices/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGetInvoiceReport(t *testing.T) {
	srv, st := newTestServer(t, &stubProcessor{})
	seedInvoice(t, st, "a", "Acme Corp")

	resp, err := http.Get(srv.URL + "/api/v1/invoices/a/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	var text bytes.Buffer
	_, err = text.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, text.String(), "INVOICE PROCESSING REPORT")
	assert.Contains(t, text.String(), "Acme Corp")
}

func TestReconcileEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{})

	req := `{
		"extracted": {"invoice_number":"INV-001","vendor_name":"Acme Corp","invoice_date":"2025-01-15","total_amount":"1000"},
		"reference": {"invoice_number":"inv001","vendor_name":"Acme Corp","invoice_date":"2025-01-15","total_amount":"1000"}
	}`
	resp, err := http.Post(srv.URL+"/api/v1/reconcile", "application/json", strings.NewReader(req))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rep model.ReconciliationReport
	decodeJSON(t, resp, &rep)
	assert.True(t, rep.Reconciled)
	assert.InDelta(t, 1.0, rep.Score, 1e-9)
	assert.Len(t, rep.FieldVerdicts, 4)
}

func TestReconcileBatchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubProcessor{})

	req := `{
		"extracted": [{"invoice_number":"INV-001","total_amount":"1000"}],
		"references": [{"invoice_number":"INV-001","total_amount":"1000"}]
	}`
	resp, err := http.Post(srv.URL+"/api/v1/reconcile/batch", "application/json", strings.NewReader(req))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.BatchResult
	decodeJSON(t, resp, &result)
	assert.Equal(t, 1, result.Matched)
	require.Len(t, result.Pairs, 1)

	empty, err := http.Post(srv.URL+"/api/v1/reconcile/batch", "application/json",
		strings.NewReader(`{"extracted":[],"references":[]}`))
	require.NoError(t, err)
	defer empty.Body.Close()
	assert.Equal(t, http.StatusBadRequest, empty.StatusCode)
}

func TestAnalyticsSummary(t *testing.T) {
	srv, st := newTestServer(t, &stubProcessor{})
	seedInvoice(t, st, "a", "Acme Corp")
	seedInvoice(t, st, "b", "Globex")

	resp, err := http.Get(srv.URL + "/api/v1/analytics/summary")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats store.Stats
	decodeJSON(t, resp, &stats)
	assert.Equal(t, 2, stats.TotalInvoices)
	assert.Equal(t, 2, stats.ByStatus["completed"])
}
