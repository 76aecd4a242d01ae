package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/ledger"
)

func (a *app) budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show and set category budgets",
	}

	set := &cobra.Command{
		Use:   "set CATEGORY LIMIT",
		Short: "Set the limit of a category, creating it when missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			change, err := a.ledger.ModifyBudget(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return a.printChange(cmd.OutOrStdout(), change)
		},
	}

	create := &cobra.Command{
		Use:   "create CATEGORY [LIMIT]",
		Short: "Create a new category, failing if it already exists",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := decimal.Zero
			if len(args) == 2 {
				var err error
				if limit, err = core.ParseAmount(args[1]); err != nil {
					return err
				}
			}
			change, err := a.ledger.CreateCategory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return a.printChange(cmd.OutOrStdout(), change)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			budgets, err := a.ledger.GetBudgets(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.jsonOut {
				if budgets == nil {
					budgets = []core.Budget{}
				}
				return a.printJSON(w, budgets)
			}
			if len(budgets) == 0 {
				fmt.Fprintln(w, "No budgets.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tLIMIT")
			for _, b := range budgets {
				fmt.Fprintf(tw, "%s\t%s\n", b.Category, core.FormatAmount(b.Limit))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(set, create, list)
	return cmd
}

func (a *app) printChange(w io.Writer, change ledger.BudgetChange) error {
	if a.jsonOut {
		return a.printJSON(w, map[string]any{"budget": change.Budget, "created": change.Created})
	}
	verb := "Updated"
	if change.Created {
		verb = "Created"
	}
	fmt.Fprintf(w, "%s budget %s: %s\n", verb, change.Budget.Category, core.FormatAmount(change.Budget.Limit))
	return nil
}

func (a *app) categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the known categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := a.ledger.GetAllExistingCategories(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				if cats == nil {
					cats = []string{}
				}
				return a.printJSON(cmd.OutOrStdout(), cats)
			}
			for _, c := range cats {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Spending against budget per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.ledger.BudgetSummary(cmd.Context(), month)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.jsonOut {
				if rows == nil {
					rows = []core.CategorySummary{}
				}
				return a.printJSON(w, rows)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tLIMIT\tSPENT\tINCOME\tREMAINING\t")
			for _, r := range rows {
				flag := ""
				if r.OverBudget {
					flag = "over"
				}
				limit := "-"
				if r.HasBudget {
					limit = core.FormatAmount(r.Limit)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Category, limit,
					core.FormatAmount(r.Spent), core.FormatAmount(r.Income), core.FormatAmount(r.Remaining), flag)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "restrict to a month (YYYY-MM)")
	return cmd
}
