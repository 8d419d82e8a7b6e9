package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/pipeline"
	"github.com/agenticap/invoice-cli/internal/reconcile"
	"github.com/agenticap/invoice-cli/internal/report"
	"github.com/agenticap/invoice-cli/internal/rules"
	"github.com/agenticap/invoice-cli/internal/store"
)

// Processor runs the end-to-end document pipeline for uploads.
type Processor interface {
	Run(ctx context.Context, filePath string, ref *model.ReferenceRecord, opts ...pipeline.RunOption) (*model.Invoice, error)
	Rules() []rules.Rule
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	cfg        *config.Config
	store      store.Store
	processor  Processor
	reconciler *reconcile.Reconciler
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Capabilities ---

func (h *Handlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	type ruleInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var ruleInfos []ruleInfo
	for _, rule := range h.processor.Rules() {
		ruleInfos = append(ruleInfos, ruleInfo{Name: rule.Name, Description: rule.Description})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"read":      true,
		"reason":    true,
		"reconcile": true,
		"rules":     ruleInfos,
	})
}

// --- ProcessInvoice ---

// ProcessInvoice accepts a multipart upload with a "file" part, an
// optional "reference" part holding reference record JSON, and an
// optional "force" part ("true" bypasses hash deduplication). The
// upload is spooled to disk and run through the full pipeline.
func (h *Handlers) ProcessInvoice(w http.ResponseWriter, r *http.Request) {
	maxSize := h.cfg.Ingest.MaxFileSize
	if maxSize <= 0 {
		maxSize = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	var ref *model.ReferenceRecord
	if raw := r.FormValue("reference"); raw != "" {
		ref = &model.ReferenceRecord{}
		if err := json.Unmarshal([]byte(raw), ref); err != nil {
			writeError(w, http.StatusBadRequest, "invalid reference record: "+err.Error())
			return
		}
	}

	tmpDir, err := os.MkdirTemp("", "invoice-upload-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "spool upload: "+err.Error())
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(header.Filename))
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "spool upload: "+err.Error())
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "spool upload: "+err.Error())
		return
	}
	dst.Close()

	var opts []pipeline.RunOption
	if r.FormValue("force") == "true" {
		opts = append(opts, pipeline.WithForce())
	}

	inv, err := h.processor.Run(r.Context(), tmpPath, ref, opts...)
	if err != nil {
		zap.L().Error("api: process invoice", zap.String("file", header.Filename), zap.Error(err))
		status := http.StatusUnprocessableEntity
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// --- ListInvoices ---

func (h *Handlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.InvoiceFilter{
		Status: model.InvoiceStatus(q.Get("status")),
		Vendor: q.Get("vendor"),
		Limit:  parseIntDefault(q.Get("limit"), 100),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}

	invoices, err := h.store.ListInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"count":    len(invoices),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// --- GetInvoice ---

func (h *Handlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inv, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// --- GetInvoiceReport ---

// GetInvoiceReport renders the stored invoice as a plain text report.
func (h *Handlers) GetInvoiceReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inv, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, report.FormatReport(*inv)); err != nil {
		zap.L().Error("api: write report", zap.Error(err))
	}
}

// --- Reconcile ---

type reconcileRequest struct {
	Extracted model.ExtractedRecord `json:"extracted"`
	Reference model.ReferenceRecord `json:"reference"`
}

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rep := h.reconciler.Reconcile(req.Extracted, req.Reference)
	writeJSON(w, http.StatusOK, rep)
}

// --- ReconcileBatch ---

type reconcileBatchRequest struct {
	Extracted  []model.ExtractedRecord `json:"extracted"`
	References []model.ReferenceRecord `json:"references"`
}

func (h *Handlers) ReconcileBatch(w http.ResponseWriter, r *http.Request) {
	var req reconcileBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Extracted) == 0 {
		writeError(w, http.StatusBadRequest, "extracted records are required")
		return
	}

	result := h.reconciler.ReconcileBatch(req.Extracted, req.References)
	writeJSON(w, http.StatusOK, result)
}

// --- AnalyticsSummary ---

func (h *Handlers) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
