package core

import "time"

// LedgerOp names a mutation of the ledger.
type LedgerOp string

const (
	OpTransactionAdded   LedgerOp = "transaction.added"
	OpTransactionEdited  LedgerOp = "transaction.edited"
	OpTransactionDeleted LedgerOp = "transaction.deleted"
	OpBudgetSet          LedgerOp = "budget.set"
	OpCategoryCreated    LedgerOp = "category.created"
)

// LedgerEvent describes a mutation that has been applied.
type LedgerEvent struct {
	Op          LedgerOp     `json:"op"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Previous    *Transaction `json:"previous,omitempty"`
	Budget      *Budget      `json:"budget,omitempty"`
	At          time.Time    `json:"at"`
}
