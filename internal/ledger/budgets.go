package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets"
)

// BudgetChange reports the outcome of an upsert.
type BudgetChange struct {
	Budget  core.Budget
	Created bool
}

type budgetRow struct {
	category string
	limit    string
	row      int
}

// ModifyBudget sets the limit of category, creating the budget row when no
// case-insensitive match exists. Repeating the call changes nothing.
func (m *Manager) ModifyBudget(ctx context.Context, category string, limit decimal.Decimal) (BudgetChange, error) {
	return m.upsertBudget(ctx, category, limit, false)
}

// CreateCategory adds a new budget category and fails with
// core.ErrCategoryExists when it is already present.
func (m *Manager) CreateCategory(ctx context.Context, category string, limit decimal.Decimal) (BudgetChange, error) {
	return m.upsertBudget(ctx, category, limit, true)
}

func (m *Manager) upsertBudget(ctx context.Context, category string, limit decimal.Decimal, createOnly bool) (BudgetChange, error) {
	if err := m.ready(); err != nil {
		return BudgetChange{}, err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return BudgetChange{}, core.Invalid("category", "", core.ErrEmptyCategory)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	rows, physical, err := m.readBudgetRows(ctx)
	if err != nil {
		return BudgetChange{}, err
	}
	for _, r := range rows {
		if !core.SameCategory(r.category, category) {
			continue
		}
		if createOnly {
			return BudgetChange{}, fmt.Errorf("%s: %w", r.category, core.ErrCategoryExists)
		}
		if err := m.store.Update(ctx, sheets.Cell(m.budgetTable, r.row, "B"), []string{core.FormatAmount(limit)}); err != nil {
			return BudgetChange{}, fmt.Errorf("update budget %s: %w", r.category, err)
		}
		b := core.Budget{Category: r.category, Limit: limit, RowIndex: r.row}
		m.logger.InfoContext(ctx, "budget updated", log.FieldCategory, b.Category, log.FieldRowIndex, b.RowIndex)
		m.publish(ctx, core.LedgerEvent{Op: core.OpBudgetSet, Budget: &b})
		return BudgetChange{Budget: b}, nil
	}

	if _, err := m.store.Append(ctx, m.budgetTable, []string{category, core.FormatAmount(limit)}); err != nil {
		return BudgetChange{}, fmt.Errorf("append budget %s: %w", category, err)
	}
	b := core.Budget{Category: category, Limit: limit, RowIndex: physical + 1}
	m.logger.InfoContext(ctx, "budget created", log.FieldCategory, b.Category)
	op := core.OpBudgetSet
	if createOnly {
		op = core.OpCategoryCreated
	}
	m.publish(ctx, core.LedgerEvent{Op: op, Budget: &b})
	return BudgetChange{Budget: b, Created: true}, nil
}

// GetBudgets lists the budget rows whose limit parses.
func (m *Manager) GetBudgets(ctx context.Context) ([]core.Budget, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	rows, _, err := m.readBudgetRows(ctx)
	if err != nil {
		return nil, err
	}
	return parseBudgets(rows), nil
}

func parseBudgets(rows []budgetRow) []core.Budget {
	out := make([]core.Budget, 0, len(rows))
	for _, r := range rows {
		limit, err := core.ParseAmount(r.limit)
		if err != nil {
			continue
		}
		out = append(out, core.Budget{Category: r.category, Limit: limit, RowIndex: r.row})
	}
	return out
}

// readBudgetRows returns every non-blank category row after the header,
// regardless of whether its limit parses, and the physical row count.
func (m *Manager) readBudgetRows(ctx context.Context) ([]budgetRow, int, error) {
	rng := sheets.Columns(m.budgetTable, "A", "B")
	rows, err := m.store.Read(ctx, rng)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []budgetRow
	for i, row := range rows {
		if i == 0 {
			continue
		}
		row = sheets.Pad(row, 2)
		if strings.TrimSpace(row[0]) == "" {
			continue
		}
		out = append(out, budgetRow{category: strings.TrimSpace(row[0]), limit: row[1], row: i + 1})
	}
	return out, len(rows), nil
}

// GetAllExistingCategories returns the category universe: budget
// categories, plus transaction categories when configured. Names are
// deduplicated case-insensitively keeping the first spelling, budgets first.
func (m *Manager) GetAllExistingCategories(ctx context.Context) ([]string, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	set, err := m.categoryUniverse(ctx)
	if err != nil {
		return nil, err
	}
	return set.Names(), nil
}

func (m *Manager) categoryUniverse(ctx context.Context) (*core.CategorySet, error) {
	var budgetCol, txCol [][]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rng := sheets.Columns(m.budgetTable, "A", "A")
		rows, err := m.store.Read(gctx, rng)
		if err != nil {
			return fmt.Errorf("read %s: %w", rng, err)
		}
		budgetCol = rows
		return nil
	})
	if m.categorySource == CategoriesFromAll {
		g.Go(func() error {
			rng := sheets.Columns(m.txTable, "E", "E")
			rows, err := m.store.Read(gctx, rng)
			if err != nil {
				return fmt.Errorf("read %s: %w", rng, err)
			}
			txCol = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := core.NewCategorySet()
	addColumn(set, budgetCol, BudgetHeader[0])
	addColumn(set, txCol, TransactionHeader[4])
	return set, nil
}

func addColumn(set *core.CategorySet, rows [][]string, header string) {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), header) {
			continue
		}
		set.Add(row[0])
	}
}

// canonicalCategory returns the existing spelling of name, or name itself
// when it is new.
func (m *Manager) canonicalCategory(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return name, nil
	}
	set, err := m.categoryUniverse(ctx)
	if err != nil {
		return "", fmt.Errorf("category lookup: %w", err)
	}
	if canon, ok := set.Lookup(name); ok {
		return canon, nil
	}
	return strings.TrimSpace(name), nil
}
