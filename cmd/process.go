package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/pipeline"
	"github.com/agenticap/invoice-cli/internal/report"
)

var (
	processReference string
	processJSON      bool
	processForce     bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a single invoice document",
	Long:  "Reads the document, extracts invoice fields, validates them, optionally reconciles against a reference record, and stores the result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var ref *model.ReferenceRecord
		if processReference != "" {
			ref, err = loadReference(processReference)
			if err != nil {
				return err
			}
		}

		var opts []pipeline.RunOption
		if processForce {
			opts = append(opts, pipeline.WithForce())
		}

		inv, err := env.Pipeline.Run(ctx, args[0], ref, opts...)
		if err != nil {
			return err
		}

		if processJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(inv)
		}

		fmt.Print(report.FormatReport(*inv))
		return nil
	},
}

func loadReference(path string) (*model.ReferenceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read reference file %s", path)
	}
	var ref model.ReferenceRecord
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, eris.Wrapf(err, "parse reference file %s", path)
	}
	return &ref, nil
}

func init() {
	processCmd.Flags().StringVar(&processReference, "reference", "", "path to a reference record JSON file for reconciliation")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "emit the stored invoice as JSON instead of a text report")
	processCmd.Flags().BoolVar(&processForce, "force", false, "reprocess the document even if an identical file was already processed")
	rootCmd.AddCommand(processCmd)
}
