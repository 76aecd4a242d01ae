package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Criteria selects transactions. Nil or blank fields are ignored; a
// Criteria with no fields set matches every transaction.
type Criteria struct {
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Type        *string          `json:"type,omitempty"`
	Category    *string          `json:"category,omitempty"`
}

// IsEmpty reports whether no criterion is set.
func (c Criteria) IsEmpty() bool {
	return blank(c.Date) && blank(c.Description) && c.Amount == nil && blank(c.Type) && blank(c.Category)
}

// Matches applies every set criterion:
// amount within AmountTolerance, description as a case-insensitive
// substring, the remaining fields case-insensitive exact.
func (c Criteria) Matches(t Transaction) bool {
	if c.Amount != nil && !AmountsMatch(t.Amount, *c.Amount) {
		return false
	}
	if !blank(c.Description) &&
		!strings.Contains(strings.ToLower(t.Description), strings.ToLower(strings.TrimSpace(*c.Description))) {
		return false
	}
	if !blank(c.Date) && !strings.EqualFold(strings.TrimSpace(t.Date), strings.TrimSpace(*c.Date)) {
		return false
	}
	if !blank(c.Type) && !strings.EqualFold(string(t.Type), strings.TrimSpace(*c.Type)) {
		return false
	}
	if !blank(c.Category) && !SameCategory(t.Category, *c.Category) {
		return false
	}
	return true
}

// Filter returns the transactions matching c, in order.
func (c Criteria) Filter(txs []Transaction) []Transaction {
	var out []Transaction
	for _, t := range txs {
		if c.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// TransactionPatch is a partial update. Nil fields keep the old value; a
// zero amount is a legitimate edit.
type TransactionPatch struct {
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Type        *string          `json:"type,omitempty"`
	Category    *string          `json:"category,omitempty"`
}

func (p TransactionPatch) IsEmpty() bool {
	return p.Date == nil && p.Description == nil && p.Amount == nil && p.Type == nil && p.Category == nil
}

// Apply merges the patch over t and validates the changed fields. ID and
// RowIndex are carried over.
func (p TransactionPatch) Apply(t Transaction) (Transaction, error) {
	out := t
	if p.Date != nil {
		d, err := ParseDate(*p.Date)
		if err != nil {
			return Transaction{}, err
		}
		out.Date = d
	}
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.Type != nil {
		typ, err := ParseTransactionType(*p.Type)
		if err != nil {
			return Transaction{}, err
		}
		out.Type = typ
	}
	if p.Category != nil {
		out.Category = strings.TrimSpace(*p.Category)
	}
	return out, nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
