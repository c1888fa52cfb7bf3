package commands

import (
	"fmt"

	"mediapart-bills/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listVendor *string
var listRuns *bool

func init() {
	listVendor = listCmd.Flags().String("vendor", "", "Only list the bills of this vendor.")
	listRuns = listCmd.Flags().Bool("runs", false, "List the latest sync runs instead of the bills.")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list [--vendor <name>] [--runs]",
	Short: "Lists the stored bills.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		store, closeDb, err := openStore(cmd.Context(), cfg)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer closeDb()

		if *listRuns {
			runs, err := store.Runs(cmd.Context(), 20)
			if err != nil {
				serviceutil.Fatal("failed to list runs", err)
			}
			t := newTable()
			t.AppendHeader(table.Row{"Run", "Markup", "Saved", "Skipped", "Failures", "Error"})
			for _, r := range runs {
				t.AppendRow(table.Row{r.ID, r.Era, r.Saved, r.Skipped, r.Failures, r.Error})
			}
			t.Render()
			return
		}

		bills, err := store.List(cmd.Context(), *listVendor)
		if err != nil {
			serviceutil.Fatal("failed to list bills", err)
		}
		t := newTable()
		t.AppendHeader(table.Row{"Vendor", "Bill", "Date", "Amount", "File"})
		for _, b := range bills {
			t.AppendRow(table.Row{
				b.Vendor,
				b.BillId,
				b.Date.Format("2006-01-02"),
				fmt.Sprintf("%.2f %s", b.Amount, b.Currency),
				b.FilePath,
			})
		}
		t.Render()
	},
}
