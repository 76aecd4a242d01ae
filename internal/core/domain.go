package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

// DateLayout is the on-sheet representation of a transaction date.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	// Transaction is one row of the Transactions table.
	//
	// RowIndex is the 1-based physical row observed at the last read. It is
	// only meaningful until the next mutation of the table. ID is stable
	// across edits; rows written before IDs existed carry an empty ID.
	Transaction struct {
		ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
		Date        string          `json:"date" yaml:"date"`
		Description string          `json:"description" yaml:"description"`
		Amount      decimal.Decimal `json:"amount" yaml:"amount"`
		Type        TransactionType `json:"type" yaml:"type"`
		Category    string          `json:"category" yaml:"category"`
		RowIndex    int             `json:"row_index" yaml:"row_index"`
	}

	// NewTransaction is the input of an add. Type is matched
	// case-insensitively and canonicalised on Build.
	NewTransaction struct {
		Date        string
		Description string
		Amount      decimal.Decimal
		Type        string
		Category    string
	}

	// Budget is one row of the Budgets table.
	Budget struct {
		Category string          `json:"category" yaml:"category"`
		Limit    decimal.Decimal `json:"limit" yaml:"limit"`
		RowIndex int             `json:"row_index" yaml:"row_index"`
	}
)

// ParseTransactionType accepts "income"/"expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(s), string(Income)):
		return Income, nil
	case strings.EqualFold(strings.TrimSpace(s), string(Expense)):
		return Expense, nil
	}
	return "", invalid("type", s, ErrInvalidType)
}

// ParseDate validates a YYYY-MM-DD date and returns it normalised.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", invalid("date", s, ErrInvalidDate)
	}
	return t.Format(DateLayout), nil
}

// ResolveDate maps the relative words "today" and "yesterday" to calendar
// dates relative to now. Anything else is returned trimmed and unchanged.
func ResolveDate(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "today":
		return now.Format(DateLayout)
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(DateLayout)
	}
	return s
}

// Build validates the input and returns the transaction to be written,
// without ID or row index.
func (n NewTransaction) Build() (Transaction, error) {
	date, err := ParseDate(n.Date)
	if err != nil {
		return Transaction{}, err
	}
	typ, err := ParseTransactionType(n.Type)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Date:        date,
		Description: strings.TrimSpace(n.Description),
		Amount:      n.Amount,
		Type:        typ,
		Category:    strings.TrimSpace(n.Category),
	}, nil
}

// Time parses the transaction date. The second result is false for rows
// whose date text is not YYYY-MM-DD.
func (t Transaction) Time() (time.Time, bool) {
	ts, err := time.Parse(DateLayout, strings.TrimSpace(t.Date))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// InMonth reports whether the transaction falls in month (YYYY-MM).
func (t Transaction) InMonth(month string) bool {
	ts, ok := t.Time()
	if !ok {
		return strings.HasPrefix(strings.TrimSpace(t.Date), month)
	}
	return ts.Format("2006-01") == month
}

// Cells renders the transaction as a Transactions row (A..F).
func (t Transaction) Cells() []string {
	return []string{t.Date, t.Description, FormatAmount(t.Amount), string(t.Type), t.Category, t.ID}
}

// CategoryKey is the identity used for category comparison.
func CategoryKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SameCategory compares two category spellings case-insensitively.
func SameCategory(a, b string) bool {
	return CategoryKey(a) == CategoryKey(b)
}
