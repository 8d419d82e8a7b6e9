package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/reconcile"
)

var (
	reconcileExtracted string
	reconcileRef       string
	reconcileJSON      bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile extracted records against reference data",
	Long:  "Compares extracted invoice records with reference records without touching the API or the store. Both inputs may hold a single record or a JSON array; arrays are matched by invoice number and best field agreement.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := reconcile.New(cfg.Engine)
		if err != nil {
			return err
		}

		extracted, extractedMany, err := loadRecords[model.ExtractedRecord](reconcileExtracted)
		if err != nil {
			return err
		}
		refs, refsMany, err := loadRecords[model.ReferenceRecord](reconcileRef)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if extractedMany || refsMany {
			result := rc.ReconcileBatch(extracted, refs)
			if reconcileJSON {
				return enc.Encode(result)
			}
			fmt.Printf("Matched %d of %d extracted records against %d references\n",
				result.Matched, result.TotalExtracted, result.TotalReferences)
			for _, pair := range result.Pairs {
				fmt.Println(pair.Report.Summary)
			}
			return nil
		}

		rep := rc.Reconcile(extracted[0], refs[0])
		if reconcileJSON {
			return enc.Encode(rep)
		}
		fmt.Println(rep.Summary)
		return nil
	},
}

// loadRecords reads either a single record object or an array of
// records from a JSON file. The second return reports which form the
// file held.
func loadRecords[T any](path string) ([]T, bool, error) {
	if path == "" {
		return nil, false, eris.New("both --extracted and --reference are required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, eris.Wrapf(err, "read %s", path)
	}

	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		return many, true, nil
	}

	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, false, eris.Wrapf(err, "parse %s", path)
	}
	return []T{one}, false, nil
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileExtracted, "extracted", "", "path to extracted record JSON (object or array)")
	reconcileCmd.Flags().StringVar(&reconcileRef, "reference", "", "path to reference record JSON (object or array)")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "emit the full report as JSON")
	_ = reconcileCmd.MarkFlagRequired("extracted")
	_ = reconcileCmd.MarkFlagRequired("reference")
	rootCmd.AddCommand(reconcileCmd)
}
