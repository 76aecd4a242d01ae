// Package worker keeps a replica ledger in step with the primary one by
// replaying published ledger events onto a second store.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Neonotso/budget-agent/internal/amqp"
	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/ledger"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets"
)

var (
	txLastCol     = sheets.ColumnLetter(len(ledger.TransactionHeader) - 1)
	budgetLastCol = sheets.ColumnLetter(len(ledger.BudgetHeader) - 1)
)

// Mirror applies ledger events to a replica store. Transactions are
// located by ID, falling back to the row index for rows without one, so a
// replica that started as a copy stays row-for-row identical.
type Mirror struct {
	replica     sheets.Store
	txTable     string
	budgetTable string
	logger      *log.Logger

	mu sync.Mutex
}

func NewMirror(replica sheets.Store, txTable, budgetTable string, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default()
	}
	if txTable == "" {
		txTable = ledger.DefaultTransactionsTable
	}
	if budgetTable == "" {
		budgetTable = ledger.DefaultBudgetsTable
	}
	return &Mirror{
		replica:     replica,
		txTable:     txTable,
		budgetTable: budgetTable,
		logger:      logger.WithComponent(log.ComponentWorker),
	}
}

// Prepare creates the replica tables and headers when missing.
func (m *Mirror) Prepare(ctx context.Context) error {
	mgr := ledger.New(m.replica,
		ledger.WithTables(m.txTable, m.budgetTable),
		ledger.WithLogger(log.Discard()))
	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("prepare replica: %w", err)
	}
	return nil
}

// HandleLedgerMessage applies one event. Unknown operations are skipped.
func (m *Mirror) HandleLedgerMessage(ctx context.Context, msg *amqp.LedgerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.DebugContext(ctx, "applying ledger event",
		log.FieldOperation, string(msg.Op), log.FieldRequestID, msg.RequestID)

	switch msg.Op {
	case core.OpTransactionAdded:
		if msg.Transaction == nil {
			return fmt.Errorf("%s without transaction", msg.Op)
		}
		return m.applyAdd(ctx, *msg.Transaction)
	case core.OpTransactionEdited:
		if msg.Transaction == nil || msg.Previous == nil {
			return fmt.Errorf("%s without before and after", msg.Op)
		}
		return m.applyEdit(ctx, *msg.Previous, *msg.Transaction)
	case core.OpTransactionDeleted:
		if msg.Transaction == nil {
			return fmt.Errorf("%s without transaction", msg.Op)
		}
		return m.applyDelete(ctx, *msg.Transaction)
	case core.OpBudgetSet, core.OpCategoryCreated:
		if msg.Budget == nil {
			return fmt.Errorf("%s without budget", msg.Op)
		}
		return m.applyBudget(ctx, *msg.Budget)
	default:
		m.logger.WarnContext(ctx, "skipping unknown ledger event", log.FieldOperation, string(msg.Op))
		return nil
	}
}

func (m *Mirror) applyAdd(ctx context.Context, tx core.Transaction) error {
	rows, err := m.readTransactions(ctx)
	if err != nil {
		return err
	}
	// Redelivered events must not duplicate the row.
	if tx.ID != "" {
		if row := findByID(rows, tx.ID); row > 0 {
			return m.replica.Update(ctx, sheets.Row(m.txTable, row, "A", txLastCol), tx.Cells())
		}
	}
	if _, err := m.replica.Append(ctx, m.txTable, tx.Cells()); err != nil {
		return fmt.Errorf("append to replica: %w", err)
	}
	return nil
}

func (m *Mirror) applyEdit(ctx context.Context, before, after core.Transaction) error {
	rows, err := m.readTransactions(ctx)
	if err != nil {
		return err
	}
	row := locate(rows, before)
	if row == 0 {
		row = locate(rows, after)
	}
	if row == 0 {
		m.logger.WarnContext(ctx, "edited transaction missing from replica, appending",
			log.FieldTxID, after.ID, log.FieldRowIndex, before.RowIndex)
		_, err := m.replica.Append(ctx, m.txTable, after.Cells())
		return err
	}

	// A recreate edit moved the row to the end of the table.
	if after.RowIndex != before.RowIndex {
		if err := m.replica.DeleteRows(ctx, m.txTable, row-1, row); err != nil {
			return fmt.Errorf("delete replica row %d: %w", row, err)
		}
		_, err := m.replica.Append(ctx, m.txTable, after.Cells())
		return err
	}
	return m.replica.Update(ctx, sheets.Row(m.txTable, row, "A", txLastCol), after.Cells())
}

func (m *Mirror) applyDelete(ctx context.Context, tx core.Transaction) error {
	rows, err := m.readTransactions(ctx)
	if err != nil {
		return err
	}
	row := locate(rows, tx)
	if row == 0 {
		m.logger.WarnContext(ctx, "deleted transaction missing from replica",
			log.FieldTxID, tx.ID, log.FieldRowIndex, tx.RowIndex)
		return nil
	}
	if err := m.replica.DeleteRows(ctx, m.txTable, row-1, row); err != nil {
		return fmt.Errorf("delete replica row %d: %w", row, err)
	}
	return nil
}

func (m *Mirror) applyBudget(ctx context.Context, b core.Budget) error {
	rows, err := m.replica.Read(ctx, sheets.Columns(m.budgetTable, "A", budgetLastCol))
	if err != nil {
		return fmt.Errorf("read replica budgets: %w", err)
	}
	limit := core.FormatAmount(b.Limit)
	for i, r := range rows {
		if i == 0 || len(r) == 0 || !core.SameCategory(r[0], b.Category) {
			continue
		}
		return m.replica.Update(ctx, sheets.Cell(m.budgetTable, i+1, "B"), []string{limit})
	}
	_, err = m.replica.Append(ctx, m.budgetTable, []string{b.Category, limit})
	return err
}

// Resync overwrites the replica tables with the content of source. It is
// the recovery path for events lost while the mirror was not running.
func (m *Mirror) Resync(ctx context.Context, source sheets.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range []struct{ table, lastCol string }{
		{m.txTable, txLastCol},
		{m.budgetTable, budgetLastCol},
	} {
		src, err := source.Read(ctx, sheets.Columns(t.table, "A", t.lastCol))
		if err != nil {
			return fmt.Errorf("read source %s: %w", t.table, err)
		}
		dst, err := m.replica.Read(ctx, sheets.Columns(t.table, "A", t.lastCol))
		if err != nil {
			return fmt.Errorf("read replica %s: %w", t.table, err)
		}
		if len(dst) > 1 {
			if err := m.replica.DeleteRows(ctx, t.table, 1, len(dst)); err != nil {
				return fmt.Errorf("clear replica %s: %w", t.table, err)
			}
		}
		for i, row := range src {
			if i == 0 {
				continue // header
			}
			if _, err := m.replica.Append(ctx, t.table, row); err != nil {
				return fmt.Errorf("copy %s row %d: %w", t.table, i+1, err)
			}
		}
		m.logger.InfoContext(ctx, "table resynced", log.FieldTable, t.table, "rows", max(len(src)-1, 0))
	}
	return nil
}

func (m *Mirror) readTransactions(ctx context.Context) ([][]string, error) {
	rows, err := m.replica.Read(ctx, sheets.Columns(m.txTable, "A", txLastCol))
	if err != nil {
		return nil, fmt.Errorf("read replica transactions: %w", err)
	}
	return rows, nil
}

// findByID returns the 1-based row holding id, or 0.
func findByID(rows [][]string, id string) int {
	idCol := len(ledger.TransactionHeader) - 1
	for i, r := range rows {
		if i > 0 && len(r) > idCol && strings.TrimSpace(r[idCol]) == id {
			return i + 1
		}
	}
	return 0
}

func locate(rows [][]string, tx core.Transaction) int {
	if tx.ID != "" {
		if row := findByID(rows, tx.ID); row > 0 {
			return row
		}
	}
	if tx.RowIndex > 1 && tx.RowIndex <= len(rows) {
		return tx.RowIndex
	}
	return 0
}
