package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenticap/invoice-cli/internal/model"
	"github.com/agenticap/invoice-cli/internal/report"
	"github.com/agenticap/invoice-cli/internal/store"
)

var (
	listStatus string
	listVendor string
	listLimit  int
	showReport bool
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Inspect stored invoices",
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		invoices, err := st.ListInvoices(ctx, store.InvoiceFilter{
			Status: model.InvoiceStatus(listStatus),
			Vendor: listVendor,
			Limit:  listLimit,
		})
		if err != nil {
			return err
		}

		if len(invoices) == 0 {
			fmt.Println("No invoices found.")
			return nil
		}
		for _, inv := range invoices {
			vendor := ""
			if inv.Record.VendorName != nil {
				vendor = *inv.Record.VendorName
			}
			fmt.Printf("%s  %-10s  %-24s  %s  confidence %.2f\n",
				inv.ID, inv.Status, vendor, inv.FileName, inv.OverallConfidence)
		}
		return nil
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		inv, err := st.GetInvoice(ctx, args[0])
		if err != nil {
			return err
		}

		if showReport {
			fmt.Print(report.FormatReport(*inv))
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(inv)
	},
}

var invoicesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Total invoices:     %d\n", stats.TotalInvoices)
		for status, n := range stats.ByStatus {
			fmt.Printf("  %-17s %d\n", status+":", n)
		}
		fmt.Printf("Reconciled:         %d\n", stats.ReconciledCount)
		fmt.Printf("Average confidence: %.2f\n", stats.AverageConfidence)
		return nil
	},
}

func init() {
	invoicesListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (processing, completed, failed)")
	invoicesListCmd.Flags().StringVar(&listVendor, "vendor", "", "filter by exact vendor name")
	invoicesListCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum invoices to list")
	invoicesShowCmd.Flags().BoolVar(&showReport, "report", false, "render as a text report instead of JSON")
	invoicesCmd.AddCommand(invoicesListCmd, invoicesShowCmd, invoicesStatsCmd)
	rootCmd.AddCommand(invoicesCmd)
}
