package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"mediapart-bills/internal/billstore"
	"mediapart-bills/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(matchCmd)
}

var matchCmd = &cobra.Command{
	Use:   "match <operations.json>",
	Short: "Links bank operations (a JSON list of {label, amount, date}) to the stored bills.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		contents, err := os.ReadFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read operations", err)
		}
		var operations []billstore.Operation
		err = json.Unmarshal(contents, &operations)
		if err != nil {
			serviceutil.Fatal("failed to parse operations", err)
		}

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		store, closeDb, err := openStore(cmd.Context(), cfg)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer closeDb()

		matches, err := store.MatchOperations(cmd.Context(), operations)
		if err != nil {
			serviceutil.Fatal("failed to match operations", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Operation", "Date", "Amount", "Bill", "File"})
		for _, m := range matches {
			for _, b := range m.Bills {
				t.AppendRow(table.Row{
					m.Operation.Label,
					m.Operation.Date.Format("2006-01-02"),
					fmt.Sprintf("%.2f", m.Operation.Amount),
					b.BillId,
					b.FilePath,
				})
			}
		}
		t.Render()
	},
}
