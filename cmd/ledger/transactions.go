package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/ledger"
)

func (a *app) addCmd() *cobra.Command {
	var in core.NewTransaction
	var amount string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a transaction",
		Example: `  ledger add --amount 12.50 --description "Lunch" --category Dining
  ledger add --date yesterday --amount 2000 --type income --category Salary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amt, err := core.ParseAmount(amount)
			if err != nil {
				return err
			}
			in.Amount = amt
			in.Date = core.ResolveDate(in.Date, a.now())

			res, err := a.ledger.AddTransaction(cmd.Context(), in)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), res.Transaction)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (id %s)\n", describe(res.Transaction), res.Transaction.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Date, "date", "today", "date as YYYY-MM-DD, today or yesterday")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "description")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "amount")
	cmd.Flags().StringVarP(&in.Type, "type", "t", string(core.Expense), "Income or Expense")
	cmd.Flags().StringVarP(&in.Category, "category", "c", "", "category")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txs, err := a.ledger.GetAllTransactions(cmd.Context())
			if err != nil {
				return err
			}
			if month != "" {
				txs = inMonth(txs, month)
			}
			return a.printTransactions(cmd.OutOrStdout(), txs)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "only transactions in this month (YYYY-MM)")
	return cmd
}

func (a *app) findCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "find",
		Short:   "List transactions matching the given fields",
		Example: `  ledger find --description coffee --amount 4.5`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := criteriaFlags(cmd, "")
			if err != nil {
				return err
			}
			txs, err := a.ledger.FindMatching(cmd.Context(), c)
			if err != nil {
				return err
			}
			return a.printTransactions(cmd.OutOrStdout(), txs)
		},
	}
	addCriteriaFlags(cmd, "")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change fields of one transaction",
		Long: `edit changes one transaction, chosen by --row, --id or --match-* fields.
Only the fields given with --date, --description, --amount, --type and
--category change. When the match fields select several transactions
nothing is changed and the candidates are listed.`,
		Example: `  ledger edit --match-description lunch --amount 14
  ledger edit --row 5 --category Groceries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := targetFlags(cmd)
			if err != nil {
				return err
			}
			patch, err := patchFlags(cmd)
			if err != nil {
				return err
			}
			if patch.Date != nil {
				d := core.ResolveDate(*patch.Date, a.now())
				patch.Date = &d
			}
			res, err := a.ledger.EditTransaction(cmd.Context(), ledger.EditRequest{Target: target, Patch: patch})
			if err != nil {
				return a.explain(cmd.ErrOrStderr(), err)
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), map[string]any{"before": res.Before, "after": res.After, "strategy": res.Strategy})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated row %d: %s\n", res.Before.RowIndex, describe(res.After))
			return nil
		},
	}
	addTargetFlags(cmd)
	addPatchFlags(cmd)
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one transaction",
		Example: `  ledger delete --row 7
  ledger delete --match-description gym --match-amount 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := targetFlags(cmd)
			if err != nil {
				return err
			}
			tx, err := a.ledger.Delete(cmd.Context(), target)
			if err != nil {
				return a.explain(cmd.ErrOrStderr(), err)
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), tx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted row %d: %s\n", tx.RowIndex, describe(tx))
			return nil
		},
	}
	addTargetFlags(cmd)
	return cmd
}

// explain lists the candidates of an ambiguous match before returning err.
func (a *app) explain(w io.Writer, err error) error {
	var amb *core.AmbiguousError
	if errors.As(err, &amb) {
		fmt.Fprintln(w, "Several transactions match, narrow the selection:")
		_ = a.printTransactions(w, amb.Candidates)
	}
	return err
}

func (a *app) printTransactions(w io.Writer, txs []core.Transaction) error {
	if a.jsonOut {
		if txs == nil {
			txs = []core.Transaction{}
		}
		return a.printJSON(w, txs)
	}
	if len(txs) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tDATE\tDESCRIPTION\tAMOUNT\tTYPE\tCATEGORY\tID")
	for _, t := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.RowIndex, t.Date, t.Description, core.FormatAmount(t.Amount), t.Type, t.Category, t.ID)
	}
	return tw.Flush()
}

func describe(t core.Transaction) string {
	return fmt.Sprintf("%s %s %s %q (%s)", t.Date, t.Type, core.FormatAmount(t.Amount), t.Description, t.Category)
}

func inMonth(txs []core.Transaction, month string) []core.Transaction {
	var out []core.Transaction
	for _, t := range txs {
		if t.InMonth(month) {
			out = append(out, t)
		}
	}
	return out
}

var criteriaFields = []string{"date", "description", "amount", "type", "category"}

func addCriteriaFlags(cmd *cobra.Command, prefix string) {
	for _, f := range criteriaFields {
		cmd.Flags().String(prefix+f, "", "match on "+f)
	}
}

func criteriaFlags(cmd *cobra.Command, prefix string) (core.Criteria, error) {
	var c core.Criteria
	amount, err := optAmount(cmd, prefix+"amount")
	if err != nil {
		return c, err
	}
	c.Amount = amount
	c.Date = optString(cmd, prefix+"date")
	c.Description = optString(cmd, prefix+"description")
	c.Type = optString(cmd, prefix+"type")
	c.Category = optString(cmd, prefix+"category")
	return c, nil
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().Int("row", 0, "physical row of the transaction (2 is the first transaction)")
	cmd.Flags().String("id", "", "transaction ID")
	addCriteriaFlags(cmd, "match-")
	cmd.MarkFlagsMutuallyExclusive("row", "id")
}

// targetFlags picks the row, then the ID, then the match criteria.
func targetFlags(cmd *cobra.Command) (ledger.Target, error) {
	if cmd.Flags().Changed("row") {
		row, _ := cmd.Flags().GetInt("row")
		return ledger.ByRow(row), nil
	}
	if cmd.Flags().Changed("id") {
		id, _ := cmd.Flags().GetString("id")
		return ledger.ByID(id), nil
	}
	c, err := criteriaFlags(cmd, "match-")
	if err != nil {
		return ledger.Target{}, err
	}
	return ledger.ByCriteria(c), nil
}

func addPatchFlags(cmd *cobra.Command) {
	for _, f := range criteriaFields {
		cmd.Flags().String(f, "", "new "+f)
	}
}

func patchFlags(cmd *cobra.Command) (core.TransactionPatch, error) {
	var p core.TransactionPatch
	amount, err := optAmount(cmd, "amount")
	if err != nil {
		return p, err
	}
	p.Amount = amount
	p.Date = optString(cmd, "date")
	p.Description = optString(cmd, "description")
	p.Type = optString(cmd, "type")
	p.Category = optString(cmd, "category")
	return p, nil
}

// optString returns nil unless the flag was given.
func optString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func optAmount(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	s := optString(cmd, name)
	if s == nil {
		return nil, nil
	}
	d, err := core.ParseAmount(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
