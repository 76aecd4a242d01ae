package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Neonotso/budget-agent/internal/core"
)

// exportRow is the flat export form of a transaction.
type exportRow struct {
	Row         int    `csv:"row" json:"row" yaml:"row"`
	ID          string `csv:"id" json:"id" yaml:"id"`
	Date        string `csv:"date" json:"date" yaml:"date"`
	Description string `csv:"description" json:"description" yaml:"description"`
	Amount      string `csv:"amount" json:"amount" yaml:"amount"`
	Type        string `csv:"type" json:"type" yaml:"type"`
	Category    string `csv:"category" json:"category" yaml:"category"`
}

type exportBudget struct {
	Category string `json:"category" yaml:"category"`
	Limit    string `json:"limit" yaml:"limit"`
}

// exportDoc is the YAML and JSON export layout.
type exportDoc struct {
	Transactions []exportRow    `json:"transactions" yaml:"transactions"`
	Budgets      []exportBudget `json:"budgets,omitempty" yaml:"budgets,omitempty"`
}

func toExportRows(txs []core.Transaction) []exportRow {
	rows := make([]exportRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, exportRow{
			Row:         t.RowIndex,
			ID:          t.ID,
			Date:        t.Date,
			Description: t.Description,
			Amount:      core.FormatAmount(t.Amount),
			Type:        string(t.Type),
			Category:    t.Category,
		})
	}
	return rows
}

func (a *app) exportCmd() *cobra.Command {
	var format, output, month string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions as CSV, YAML or JSON",
		Long: `export writes every transaction to --output, or stdout. CSV holds the
transactions only; YAML and JSON add the budgets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			format = strings.ToLower(format)
			switch format {
			case "csv", "yaml", "json":
			default:
				return fmt.Errorf("unsupported format %q: use csv, yaml or json", format)
			}

			txs, err := a.ledger.GetAllTransactions(cmd.Context())
			if err != nil {
				return err
			}
			if month != "" {
				txs = inMonth(txs, month)
			}
			rows := toExportRows(txs)

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}

			if format == "csv" {
				return writeCSV(w, rows)
			}

			budgets, err := a.ledger.GetBudgets(cmd.Context())
			if err != nil {
				return err
			}
			doc := exportDoc{Transactions: rows}
			for _, b := range budgets {
				doc.Budgets = append(doc.Budgets, exportBudget{Category: b.Category, Limit: core.FormatAmount(b.Limit)})
			}
			if format == "json" {
				return a.printJSON(w, doc)
			}
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return fmt.Errorf("encode yaml: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv, yaml or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&month, "month", "", "only transactions in this month (YYYY-MM)")
	return cmd
}

func writeCSV(w io.Writer, rows []exportRow) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
