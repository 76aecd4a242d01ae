package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Neonotso/budget-agent/internal/core"
)

// amount accepts a JSON number or a string such as "$20" or "12,50".
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

func (a *amount) ptr() *decimal.Decimal {
	if a == nil {
		return nil
	}
	d := a.Decimal
	return &d
}

type criteriaArgs struct {
	Date            *string `json:"date"`
	Description     *string `json:"description"`
	Amount          *amount `json:"amount"`
	Type            *string `json:"type"`
	TransactionType *string `json:"transaction_type"`
	Category        *string `json:"category"`
}

func (c criteriaArgs) criteria() core.Criteria {
	typ := c.Type
	if typ == nil {
		typ = c.TransactionType
	}
	return core.Criteria{
		Date:        c.Date,
		Description: c.Description,
		Amount:      c.Amount.ptr(),
		Type:        typ,
		Category:    c.Category,
	}
}

type (
	addArgs struct {
		Date            string  `json:"date"`
		Description     string  `json:"description"`
		Amount          *amount `json:"amount"`
		Type            string  `json:"type"`
		TransactionType string  `json:"transaction_type"`
		Category        string  `json:"category"`
	}

	editArgs struct {
		RowIndex *int         `json:"row_index"`
		ID       string       `json:"id"`
		Match    criteriaArgs `json:"match"`
		Changes  criteriaArgs `json:"changes"`
	}

	deleteArgs struct {
		RowIndex *int         `json:"row_index"`
		ID       string       `json:"id"`
		Match    criteriaArgs `json:"match"`
	}

	budgetArgs struct {
		Category string  `json:"category"`
		Limit    *amount `json:"limit"`
		Amount   *amount `json:"amount"`
	}

	summaryArgs struct {
		Month string `json:"month"`
	}
)

func (a budgetArgs) limit() (decimal.Decimal, error) {
	switch {
	case a.Limit != nil:
		return a.Limit.Decimal, nil
	case a.Amount != nil:
		return a.Amount.Decimal, nil
	}
	return decimal.Zero, core.Invalid("limit", "", core.ErrInvalidAmount)
}

func (c criteriaArgs) patch() core.TransactionPatch {
	typ := c.Type
	if typ == nil {
		typ = c.TransactionType
	}
	return core.TransactionPatch{
		Date:        c.Date,
		Description: c.Description,
		Amount:      c.Amount.ptr(),
		Type:        typ,
		Category:    c.Category,
	}
}

// decode fills v from raw tool arguments. Empty input and null mean no
// arguments.
func decode(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if core.IsValidation(err) {
			return err
		}
		return core.Invalid("arguments", "", fmt.Errorf("malformed JSON: %w", err))
	}
	return nil
}
