package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Neonotso/budget-agent/internal/core"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusAmbiguous Status = "ambiguous"
)

const (
	msgNotFound  = "No matching transaction found."
	msgAmbiguous = "Multiple transactions match your criteria. Please be more specific."
)

// Result is what the dialogue agent receives from a tool call. Data keys
// are flattened next to status and message when encoded.
type Result struct {
	Status  Status
	Message string
	Data    map[string]any
}

func (r Result) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		m[k] = v
	}
	m["status"] = r.Status
	m["message"] = r.Message
	return json.Marshal(m)
}

func success(msg string, data map[string]any) Result {
	return Result{Status: StatusSuccess, Message: msg, Data: data}
}

func failure(msg string) Result {
	return Result{Status: StatusError, Message: msg}
}

// fromError maps ledger errors onto tool results.
func fromError(err error) Result {
	var amb *core.AmbiguousError
	var ve *core.ValidationError
	switch {
	case errors.As(err, &amb):
		return Result{
			Status:  StatusAmbiguous,
			Message: msgAmbiguous,
			Data:    map[string]any{"candidates": transactionViews(amb.Candidates)},
		}
	case errors.Is(err, core.ErrNotFound):
		return failure(msgNotFound)
	case errors.Is(err, core.ErrRowOutOfRange):
		return failure("That row does not exist in the ledger: " + err.Error() + ".")
	case errors.Is(err, core.ErrCategoryExists):
		return failure("That category already exists: " + err.Error() + ".")
	case errors.Is(err, core.ErrNotConnected):
		return failure("The ledger is not connected yet. Please try again shortly.")
	case errors.As(err, &ve):
		return failure("Invalid input: " + ve.Error() + ".")
	}
	return failure("Error: " + err.Error())
}

type transactionView struct {
	RowIndex    int         `json:"row_index"`
	ID          string      `json:"id,omitempty"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
}

type budgetView struct {
	Category string      `json:"category"`
	Limit    json.Number `json:"limit"`
	RowIndex int         `json:"row_index"`
}

type summaryView struct {
	Category   string      `json:"category"`
	Limit      json.Number `json:"limit"`
	Spent      json.Number `json:"spent"`
	Income     json.Number `json:"income"`
	Remaining  json.Number `json:"remaining"`
	OverBudget bool        `json:"over_budget"`
	HasBudget  bool        `json:"has_budget"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func transactionViewOf(t core.Transaction) transactionView {
	return transactionView{
		RowIndex:    t.RowIndex,
		ID:          t.ID,
		Date:        t.Date,
		Description: t.Description,
		Amount:      number(t.Amount),
		Type:        string(t.Type),
		Category:    t.Category,
	}
}

func transactionViews(txs []core.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionViewOf(t))
	}
	return out
}

func budgetViews(bs []core.Budget) []budgetView {
	out := make([]budgetView, 0, len(bs))
	for _, b := range bs {
		out = append(out, budgetView{Category: b.Category, Limit: number(b.Limit), RowIndex: b.RowIndex})
	}
	return out
}

func summaryViews(ss []core.CategorySummary) []summaryView {
	out := make([]summaryView, 0, len(ss))
	for _, s := range ss {
		out = append(out, summaryView{
			Category:   s.Category,
			Limit:      number(s.Limit),
			Spent:      number(s.Spent),
			Income:     number(s.Income),
			Remaining:  number(s.Remaining),
			OverBudget: s.OverBudget,
			HasBudget:  s.HasBudget,
		})
	}
	return out
}

func describe(t core.Transaction) string {
	s := fmt.Sprintf("%s of %s on %s", t.Type, core.FormatAmount(t.Amount), t.Date)
	if t.Description != "" {
		s += fmt.Sprintf(" (%s)", t.Description)
	}
	if t.Category != "" {
		s += " in " + t.Category
	}
	return s
}

func joinCategories(cats []string) string {
	if len(cats) == 0 {
		return "none"
	}
	return strings.Join(cats, ", ")
}
