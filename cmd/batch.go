package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenticap/invoice-cli/internal/ingest"
	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/pipeline"
)

var (
	batchReferences string
	batchDLQPath    string
	batchJSON       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file-or-dir>...",
	Short: "Process multiple invoice documents concurrently",
	Long:  "Processes each document through the full pipeline with bounded concurrency. Directory arguments are expanded to the supported invoice files they contain. References from --references are paired with files by position. Failures are written to a dead letter file instead of aborting the batch.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		files, err := expandBatchArgs(args)
		if err != nil {
			return err
		}

		var refs []model.ReferenceRecord
		if batchReferences != "" {
			refs, err = loadReferences(batchReferences)
			if err != nil {
				return err
			}
		}

		rep, err := env.Pipeline.RunBatch(ctx, files, refs)
		if err != nil {
			return err
		}

		if len(rep.DeadLetter) > 0 && batchDLQPath != "" {
			if err := writeDeadLetter(batchDLQPath, rep); err != nil {
				zap.L().Warn("failed to write dead letter file", zap.Error(err))
			} else {
				zap.L().Info("dead letter entries written",
					zap.String("path", batchDLQPath),
					zap.Int("entries", len(rep.DeadLetter)))
			}
		}

		if batchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		fmt.Printf("Processed %d invoices: %d successful, %d failed\n",
			rep.Total, rep.Successful, rep.Failed)
		for _, inv := range rep.Invoices {
			fmt.Printf("  %s  %s  confidence %.2f\n", inv.ID, inv.FileName, inv.OverallConfidence)
		}
		for _, entry := range rep.DeadLetter {
			fmt.Printf("  FAILED %s (%s): %s\n", entry.FilePath, entry.ErrorType, entry.Error)
		}
		return nil
	},
}

// expandBatchArgs resolves each argument into invoice file paths.
// Directories contribute their supported files in sorted order; other
// arguments pass through untouched so the pipeline can report them.
func expandBatchArgs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "read directory %s", arg)
		}
		var found []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(arg, entry.Name())
			if ingest.Supported(path) {
				found = append(found, path)
			}
		}
		if len(found) == 0 {
			return nil, eris.Errorf("directory %s contains no supported invoice files", arg)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func loadReferences(path string) ([]model.ReferenceRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return loadReferencesCSV(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read references file %s", path)
	}
	var refs []model.ReferenceRecord
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, eris.Wrapf(err, "parse references file %s", path)
	}
	return refs, nil
}

// loadReferencesCSV parses a header-driven CSV of reference records.
// Recognized columns are vendor_name, invoice_number, invoice_date,
// due_date, total_amount, subtotal, tax_amount, and currency; blank
// cells leave the field absent.
func loadReferencesCSV(path string) ([]model.ReferenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open references file %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "parse references file %s", path)
	}
	if len(rows) < 2 {
		return nil, eris.Errorf("references file %s has no data rows", path)
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	strCell := func(row []string, name string) *string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return nil
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return nil
		}
		return &v
	}
	decCell := func(row []string, name string) (*decimal.Decimal, error) {
		s := strCell(row, name)
		if s == nil {
			return nil, nil
		}
		d, err := decimal.NewFromString(*s)
		if err != nil {
			return nil, eris.Wrapf(err, "column %s", name)
		}
		return &d, nil
	}

	refs := make([]model.ReferenceRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		ref := model.ReferenceRecord{
			VendorName:    strCell(row, "vendor_name"),
			InvoiceNumber: strCell(row, "invoice_number"),
			InvoiceDate:   strCell(row, "invoice_date"),
			DueDate:       strCell(row, "due_date"),
			Currency:      strCell(row, "currency"),
		}
		for name, dst := range map[string]**decimal.Decimal{
			"total_amount": &ref.TotalAmount,
			"subtotal":     &ref.Subtotal,
			"tax_amount":   &ref.TaxAmount,
		} {
			d, err := decCell(row, name)
			if err != nil {
				return nil, eris.Wrapf(err, "references file %s row %d", path, n+2)
			}
			*dst = d
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func writeDeadLetter(path string, rep *pipeline.BatchReport) error {
	data, err := json.MarshalIndent(rep.DeadLetter, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal dead letter entries")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

func init() {
	batchCmd.Flags().StringVar(&batchReferences, "references", "", "path to reference records (JSON array or CSV), paired with files by position")
	batchCmd.Flags().StringVar(&batchDLQPath, "dlq", "", "path to write failed documents as dead letter JSON")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "emit the batch report as JSON")
	rootCmd.AddCommand(batchCmd)
}
