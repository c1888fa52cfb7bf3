package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"mediapart-bills/internal/billing"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/scrapers/mediapart"
	"mediapart-bills/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var parseJson *bool

func init() {
	parseJson = parseCmd.Flags().Bool("json", false, "Print the records as JSON.")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <file.html> [--json]",
	Short: "Extracts the bills of a saved bills page without going online.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			serviceutil.Fatal("failed to open page", err)
		}
		defer f.Close()

		doc, err := billing.ParseHTML(f)
		if err != nil {
			serviceutil.Fatal("failed to parse html", err)
		}
		parser := mediapart.NewDocumentParser(mediapart.DefaultUrls(), chrono.NewStandardImpl(), tel)
		result, err := parser.Parse(doc)
		if err != nil {
			serviceutil.Fatal("failed to extract bills", err)
		}

		if *parseJson {
			out, err := json.MarshalIndent(result.Records, "", "  ")
			if err != nil {
				serviceutil.Fatal("failed to serialize records", err)
			}
			fmt.Println(string(out))
			return
		}

		fmt.Printf("markup: %s\n", result.Era)
		t := newTable()
		t.AppendHeader(table.Row{"Bill", "Period", "Amount", "File"})
		for _, r := range result.Records {
			t.AppendRow(table.Row{
				r.BillId,
				fmt.Sprintf("%s - %s", r.StartDate, r.EndDate),
				fmt.Sprintf("%.2f %s", r.Amount, r.Currency),
				r.FileUrl,
			})
		}
		t.Render()

		if len(result.Failures) == 0 {
			return
		}
		failures := newTable()
		failures.AppendHeader(table.Row{"Extractor", "Line", "Error", "Text"})
		for _, f := range result.Failures {
			failures.AppendRow(table.Row{f.Extractor, f.Index, f.Err.Error(), f.Text})
		}
		failures.Render()
	},
}
