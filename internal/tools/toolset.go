// Package tools exposes the ledger as named tools for a dialogue agent.
// Every call returns a Result; errors and panics never escape.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/ledger"
	"github.com/Neonotso/budget-agent/internal/log"
)

// Ledger is the subset of ledger.Manager the tools drive.
type Ledger interface {
	AddTransaction(ctx context.Context, in core.NewTransaction) (ledger.AddResult, error)
	GetAllTransactions(ctx context.Context) ([]core.Transaction, error)
	FindMatching(ctx context.Context, c core.Criteria) ([]core.Transaction, error)
	EditTransaction(ctx context.Context, req ledger.EditRequest) (ledger.EditResult, error)
	Delete(ctx context.Context, target ledger.Target) (core.Transaction, error)
	ModifyBudget(ctx context.Context, category string, limit decimal.Decimal) (ledger.BudgetChange, error)
	CreateCategory(ctx context.Context, category string, limit decimal.Decimal) (ledger.BudgetChange, error)
	GetBudgets(ctx context.Context) ([]core.Budget, error)
	GetAllExistingCategories(ctx context.Context) ([]string, error)
	BudgetSummary(ctx context.Context, month string) ([]core.CategorySummary, error)
}

var _ Ledger = (*ledger.Manager)(nil)

type handler func(ctx context.Context, raw json.RawMessage) (Result, error)

type tool struct {
	spec Spec
	run  handler
}

// Toolset dispatches tool calls by name.
type Toolset struct {
	ledger               Ledger
	now                  func() time.Time
	requireKnownCategory bool
	logger               *log.Logger
	tools                map[string]tool
}

type Option func(*Toolset)

func WithClock(now func() time.Time) Option {
	return func(t *Toolset) { t.now = now }
}

// WithRequireKnownCategory makes add_transaction refuse categories that
// are not in the category universe.
func WithRequireKnownCategory(require bool) Option {
	return func(t *Toolset) { t.requireKnownCategory = require }
}

func WithLogger(l *log.Logger) Option {
	return func(t *Toolset) {
		if l != nil {
			t.logger = l.WithComponent(log.ComponentTools)
		}
	}
}

func New(l Ledger, opts ...Option) *Toolset {
	t := &Toolset{
		ledger:               l,
		now:                  time.Now,
		requireKnownCategory: true,
		logger:               log.Default().WithComponent(log.ComponentTools),
	}
	for _, o := range opts {
		o(t)
	}
	t.tools = map[string]tool{
		"add_transaction":    {specAddTransaction, t.addTransaction},
		"get_transactions":   {specGetTransactions, t.getTransactions},
		"find_transactions":  {specFindTransactions, t.findTransactions},
		"edit_transaction":   {specEditTransaction, t.editTransaction},
		"delete_transaction": {specDeleteTransaction, t.deleteTransaction},
		"modify_budget":      {specModifyBudget, t.modifyBudget},
		"create_category":    {specCreateCategory, t.createCategory},
		"get_categories":     {specGetCategories, t.getCategories},
		"get_budgets":        {specGetBudgets, t.getBudgets},
		"budget_summary":     {specBudgetSummary, t.budgetSummary},
	}
	return t
}

// Names lists the registered tools in alphabetical order.
func (t *Toolset) Names() []string {
	names := make([]string, 0, len(t.tools))
	for n := range t.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Specs describes every tool, in Names order.
func (t *Toolset) Specs() []Spec {
	out := make([]Spec, 0, len(t.tools))
	for _, n := range t.Names() {
		out = append(out, t.tools[n].spec)
	}
	return out
}

func (t *Toolset) Has(name string) bool {
	_, ok := t.tools[name]
	return ok
}

// Call runs the named tool. It always returns a Result.
func (t *Toolset) Call(ctx context.Context, name string, raw json.RawMessage) (res Result) {
	logger := t.logger.With(log.FieldTool, name)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "tool panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = failure(fmt.Sprintf("Internal error while running %s.", name))
		}
	}()

	tl, ok := t.tools[name]
	if !ok {
		return failure(fmt.Sprintf("Unknown tool %q.", name))
	}
	res, err := tl.run(ctx, raw)
	if err != nil {
		res = fromError(err)
		logger.WithError(err).WarnContext(ctx, "tool failed", log.FieldStatus, string(res.Status))
		return res
	}
	logger.InfoContext(ctx, "tool completed", log.FieldStatus, string(res.Status))
	return res
}

func (t *Toolset) addTransaction(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a addArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	if a.Amount == nil {
		return Result{}, core.Invalid("amount", "", core.ErrInvalidAmount)
	}
	typ := a.Type
	if typ == "" {
		typ = a.TransactionType
	}

	if t.requireKnownCategory && a.Category != "" {
		cats, err := t.ledger.GetAllExistingCategories(ctx)
		if err != nil {
			return Result{}, err
		}
		if !containsCategory(cats, a.Category) {
			return Result{
				Status: StatusError,
				Message: fmt.Sprintf("Category '%s' does not exist. Would you like to create it or choose an existing category? Existing categories: %s.",
					a.Category, joinCategories(cats)),
				Data: map[string]any{"categories": cats},
			}, nil
		}
	}

	res, err := t.ledger.AddTransaction(ctx, core.NewTransaction{
		Date:        core.ResolveDate(a.Date, t.now()),
		Description: a.Description,
		Amount:      a.Amount.Decimal,
		Type:        typ,
		Category:    a.Category,
	})
	if err != nil {
		return Result{}, err
	}
	return success("Added "+describe(res.Transaction)+".", map[string]any{
		"transaction":   transactionViewOf(res.Transaction),
		"cells_written": res.CellsWritten,
	}), nil
}

func (t *Toolset) getTransactions(ctx context.Context, _ json.RawMessage) (Result, error) {
	txs, err := t.ledger.GetAllTransactions(ctx)
	if err != nil {
		return Result{}, err
	}
	return success(fmt.Sprintf("Found %d transactions.", len(txs)), map[string]any{
		"transactions": transactionViews(txs),
	}), nil
}

func (t *Toolset) findTransactions(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a criteriaArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	c := a.criteria()
	if c.Date != nil {
		d := core.ResolveDate(*c.Date, t.now())
		c.Date = &d
	}
	txs, err := t.ledger.FindMatching(ctx, c)
	if err != nil {
		return Result{}, err
	}
	msg := fmt.Sprintf("Found %d matching transactions.", len(txs))
	if len(txs) == 0 {
		msg = msgNotFound
	}
	return success(msg, map[string]any{"transactions": transactionViews(txs)}), nil
}

func (t *Toolset) target(rowIndex *int, id string, match criteriaArgs) ledger.Target {
	switch {
	case rowIndex != nil:
		return ledger.ByRow(*rowIndex)
	case id != "":
		return ledger.ByID(id)
	}
	c := match.criteria()
	if c.Date != nil {
		d := core.ResolveDate(*c.Date, t.now())
		c.Date = &d
	}
	return ledger.ByCriteria(c)
}

func (t *Toolset) editTransaction(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a editArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	patch := a.Changes.patch()
	if patch.Date != nil {
		d := core.ResolveDate(*patch.Date, t.now())
		patch.Date = &d
	}
	res, err := t.ledger.EditTransaction(ctx, ledger.EditRequest{
		Target: t.target(a.RowIndex, a.ID, a.Match),
		Patch:  patch,
	})
	if err != nil {
		return Result{}, err
	}
	return success("Updated transaction: now "+describe(res.After)+".", map[string]any{
		"transaction": transactionViewOf(res.After),
		"previous":    transactionViewOf(res.Before),
	}), nil
}

func (t *Toolset) deleteTransaction(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a deleteArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	deleted, err := t.ledger.Delete(ctx, t.target(a.RowIndex, a.ID, a.Match))
	if err != nil {
		return Result{}, err
	}
	msg := fmt.Sprintf("Deleted row %d.", deleted.RowIndex)
	if deleted.Type != "" {
		msg = "Deleted " + describe(deleted) + "."
	}
	return success(msg, map[string]any{"transaction": transactionViewOf(deleted)}), nil
}

func (t *Toolset) modifyBudget(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a budgetArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	limit, err := a.limit()
	if err != nil {
		return Result{}, err
	}
	ch, err := t.ledger.ModifyBudget(ctx, a.Category, limit)
	if err != nil {
		return Result{}, err
	}
	msg := fmt.Sprintf("Budget for %s updated to %s.", ch.Budget.Category, core.FormatAmount(limit))
	if ch.Created {
		msg = fmt.Sprintf("Budget for %s added with limit %s.", ch.Budget.Category, core.FormatAmount(limit))
	}
	return success(msg, map[string]any{"budget": budgetViews([]core.Budget{ch.Budget})[0], "created": ch.Created}), nil
}

func (t *Toolset) createCategory(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a budgetArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	limit, err := a.limit()
	if err != nil {
		limit = decimal.Zero
	}
	ch, err := t.ledger.CreateCategory(ctx, a.Category, limit)
	if err != nil {
		return Result{}, err
	}
	return success(fmt.Sprintf("Category %s created with a budget of %s.", ch.Budget.Category, core.FormatAmount(limit)),
		map[string]any{"budget": budgetViews([]core.Budget{ch.Budget})[0]}), nil
}

func (t *Toolset) getCategories(ctx context.Context, _ json.RawMessage) (Result, error) {
	cats, err := t.ledger.GetAllExistingCategories(ctx)
	if err != nil {
		return Result{}, err
	}
	return success("Existing categories: "+joinCategories(cats)+".", map[string]any{"categories": cats}), nil
}

func (t *Toolset) getBudgets(ctx context.Context, _ json.RawMessage) (Result, error) {
	bs, err := t.ledger.GetBudgets(ctx)
	if err != nil {
		return Result{}, err
	}
	return success(fmt.Sprintf("Found %d budgets.", len(bs)), map[string]any{"budgets": budgetViews(bs)}), nil
}

func (t *Toolset) budgetSummary(ctx context.Context, raw json.RawMessage) (Result, error) {
	var a summaryArgs
	if err := decode(raw, &a); err != nil {
		return Result{}, err
	}
	month := a.Month
	switch month {
	case "this month", "current":
		month = t.now().Format("2006-01")
	case "last month", "previous":
		now := t.now()
		month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0).Format("2006-01")
	}
	sum, err := t.ledger.BudgetSummary(ctx, month)
	if err != nil {
		return Result{}, err
	}
	over := 0
	for _, s := range sum {
		if s.OverBudget {
			over++
		}
	}
	msg := fmt.Sprintf("%d categories, %d over budget.", len(sum), over)
	if month != "" {
		msg = month + ": " + msg
	}
	return success(msg, map[string]any{"summary": summaryViews(sum), "month": month}), nil
}

func containsCategory(cats []string, name string) bool {
	for _, c := range cats {
		if core.SameCategory(c, name) {
			return true
		}
	}
	return false
}
