package ledger

import (
	"context"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/Neonotso/budget-agent/internal/core"
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// BudgetSummary aggregates spending and income per category, optionally
// restricted to month (YYYY-MM). Budget categories come first in sheet
// order, followed by categories seen only in transactions.
func (m *Manager) BudgetSummary(ctx context.Context, month string) ([]core.CategorySummary, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if month != "" && !monthPattern.MatchString(month) {
		return nil, core.Invalid("month", month, core.ErrInvalidDate)
	}

	var (
		budgets []budgetRow
		snap    snapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		budgets, _, err = m.readBudgetRows(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = m.readTransactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := core.NewCategorySet()
	byKey := map[string]*core.CategorySummary{}
	var order []string
	entry := func(name string) *core.CategorySummary {
		canon := set.Add(name)
		key := core.CategoryKey(canon)
		if s, ok := byKey[key]; ok {
			return s
		}
		s := &core.CategorySummary{Category: canon}
		byKey[key] = s
		order = append(order, key)
		return s
	}

	for _, b := range parseBudgets(budgets) {
		s := entry(b.Category)
		if !s.HasBudget {
			s.Limit = b.Limit
			s.HasBudget = true
		}
	}
	for _, tx := range snap.txs {
		if month != "" && !tx.InMonth(month) {
			continue
		}
		name := tx.Category
		if core.CategoryKey(name) == "" {
			name = "Uncategorized"
		}
		s := entry(name)
		switch tx.Type {
		case core.Income:
			s.Income = s.Income.Add(tx.Amount)
		default:
			s.Spent = s.Spent.Add(tx.Amount)
		}
	}

	out := make([]core.CategorySummary, 0, len(order))
	for _, key := range order {
		s := byKey[key]
		s.Remaining = s.Limit.Sub(s.Spent)
		s.OverBudget = s.HasBudget && s.Spent.GreaterThan(s.Limit)
		out = append(out, *s)
	}
	return out, nil
}
