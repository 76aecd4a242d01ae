package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets"
)

type targetKind int

const (
	targetRow targetKind = iota + 1
	targetID
	targetCriteria
)

// Target identifies the transaction an edit or delete applies to.
type Target struct {
	kind     targetKind
	row      int
	id       string
	criteria core.Criteria
}

// ByRow addresses a transaction by its physical row as of the last read.
func ByRow(row int) Target { return Target{kind: targetRow, row: row} }

// ByID addresses a transaction by its stable ID.
func ByID(id string) Target { return Target{kind: targetID, id: id} }

// ByCriteria addresses the single transaction matching c.
func ByCriteria(c core.Criteria) Target { return Target{kind: targetCriteria, criteria: c} }

func (t Target) String() string {
	switch t.kind {
	case targetRow:
		return "row " + strconv.Itoa(t.row)
	case targetID:
		return "id " + t.id
	case targetCriteria:
		return "criteria"
	}
	return "no target"
}

// validate rejects targets that can be refused without reading the store.
func (t Target) validate() error {
	switch t.kind {
	case targetRow:
		if t.row <= 1 {
			return core.Invalid("row_index", strconv.Itoa(t.row), core.ErrHeaderRow)
		}
	case targetID:
		if t.id == "" {
			return core.Invalid("id", "", core.ErrNoCriteria)
		}
	case targetCriteria:
		if t.criteria.IsEmpty() {
			return core.Invalid("criteria", "", core.ErrNoCriteria)
		}
	default:
		return core.Invalid("target", "", core.ErrNoCriteria)
	}
	return nil
}

type (
	AddResult struct {
		Transaction  core.Transaction
		CellsWritten int
	}

	EditRequest struct {
		Target Target
		Patch  core.TransactionPatch
	}

	EditResult struct {
		Before   core.Transaction
		After    core.Transaction
		Strategy EditStrategy
	}

	// snapshot is one read of the Transactions table.
	snapshot struct {
		txs  []core.Transaction
		rows int // physical rows including the header
	}
)

// AddTransaction validates and appends a new transaction.
func (m *Manager) AddTransaction(ctx context.Context, in core.NewTransaction) (AddResult, error) {
	if err := m.ready(); err != nil {
		return AddResult{}, err
	}
	tx, err := in.Build()
	if err != nil {
		return AddResult{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if tx.Category, err = m.canonicalCategory(ctx, tx.Category); err != nil {
		return AddResult{}, err
	}
	tx.ID = m.newID()
	n, err := m.store.Append(ctx, m.txTable, tx.Cells())
	if err != nil {
		return AddResult{}, fmt.Errorf("append transaction: %w", err)
	}
	m.logger.InfoContext(ctx, "transaction added",
		log.FieldTxID, tx.ID, log.FieldAmount, tx.Amount.String(), log.FieldCategory, tx.Category, log.FieldCells, n)
	m.publish(ctx, core.LedgerEvent{Op: core.OpTransactionAdded, Transaction: &tx})
	return AddResult{Transaction: tx, CellsWritten: n}, nil
}

// GetAllTransactions returns every well-formed transaction row. Rows whose
// amount does not parse are skipped.
func (m *Manager) GetAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	snap, err := m.readTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return snap.txs, nil
}

// FindMatching returns every transaction matching c, in row order.
func (m *Manager) FindMatching(ctx context.Context, c core.Criteria) ([]core.Transaction, error) {
	txs, err := m.GetAllTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return c.Filter(txs), nil
}

// EditTransaction applies a partial update to exactly one transaction.
func (m *Manager) EditTransaction(ctx context.Context, req EditRequest) (EditResult, error) {
	if err := m.ready(); err != nil {
		return EditResult{}, err
	}
	if err := req.Target.validate(); err != nil {
		return EditResult{}, err
	}
	if req.Patch.IsEmpty() {
		return EditResult{}, core.Invalid("patch", "", core.ErrEmptyPatch)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	snap, err := m.readTransactions(ctx)
	if err != nil {
		return EditResult{}, err
	}
	before, err := snap.resolve(req.Target)
	if err != nil {
		return EditResult{}, err
	}
	if before.RowIndex == 0 {
		return EditResult{}, fmt.Errorf("%s: %w", req.Target, core.ErrNotFound)
	}
	after, err := req.Patch.Apply(before)
	if err != nil {
		return EditResult{}, err
	}
	if req.Patch.Category != nil {
		if after.Category, err = m.canonicalCategory(ctx, after.Category); err != nil {
			return EditResult{}, err
		}
	}
	if after.ID == "" {
		after.ID = m.newID()
	}

	switch m.editStrategy {
	case EditRecreate:
		if err := m.recreate(ctx, before, &after, snap.rows); err != nil {
			return EditResult{}, err
		}
	default:
		rng := sheets.Row(m.txTable, before.RowIndex, "A", sheets.ColumnLetter(len(TransactionHeader)-1))
		if err := m.store.Update(ctx, rng, after.Cells()); err != nil {
			return EditResult{}, fmt.Errorf("update row %d: %w", before.RowIndex, err)
		}
	}

	m.logger.InfoContext(ctx, "transaction edited",
		log.FieldTxID, after.ID, log.FieldRowIndex, before.RowIndex, log.FieldStrategy, string(m.editStrategy))
	m.publish(ctx, core.LedgerEvent{Op: core.OpTransactionEdited, Transaction: &after, Previous: &before})
	return EditResult{Before: before, After: after, Strategy: m.editStrategy}, nil
}

// recreate deletes the old row and appends the merged one. If the append
// fails the original row is appended back so the transaction is not lost.
func (m *Manager) recreate(ctx context.Context, before core.Transaction, after *core.Transaction, rows int) error {
	if err := m.deleteRow(ctx, before.RowIndex); err != nil {
		return err
	}
	if _, err := m.store.Append(ctx, m.txTable, after.Cells()); err != nil {
		if _, rerr := m.store.Append(ctx, m.txTable, before.Cells()); rerr != nil {
			m.logger.WithError(rerr).ErrorContext(ctx, "edit lost original row",
				log.FieldTxID, before.ID, log.FieldRowIndex, before.RowIndex)
			return fmt.Errorf("append edited row: %w (restoring the original row also failed: %v)", err, rerr)
		}
		m.logger.WithError(err).WarnContext(ctx, "edit rolled back, original row re-appended",
			log.FieldTxID, before.ID)
		return fmt.Errorf("append edited row, original restored at end of table: %w", err)
	}
	after.RowIndex = rows
	return nil
}

// DeleteTransaction removes the row at rowIndex.
func (m *Manager) DeleteTransaction(ctx context.Context, rowIndex int) (core.Transaction, error) {
	return m.Delete(ctx, ByRow(rowIndex))
}

// DeleteTransactionByID removes the transaction with the given ID.
func (m *Manager) DeleteTransactionByID(ctx context.Context, id string) (core.Transaction, error) {
	return m.Delete(ctx, ByID(id))
}

// DeleteByCriteria removes the single transaction matching c.
func (m *Manager) DeleteByCriteria(ctx context.Context, c core.Criteria) (core.Transaction, error) {
	return m.Delete(ctx, ByCriteria(c))
}

// Delete removes the targeted row. Malformed rows may be deleted by row
// index; the returned transaction then only carries RowIndex.
func (m *Manager) Delete(ctx context.Context, target Target) (core.Transaction, error) {
	if err := m.ready(); err != nil {
		return core.Transaction{}, err
	}
	if err := target.validate(); err != nil {
		return core.Transaction{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	snap, err := m.readTransactions(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	victim, err := snap.resolve(target)
	if err != nil {
		return core.Transaction{}, err
	}
	if victim.RowIndex == 0 {
		victim.RowIndex = target.row
	}
	if err := m.deleteRow(ctx, victim.RowIndex); err != nil {
		return core.Transaction{}, err
	}
	m.logger.InfoContext(ctx, "transaction deleted",
		log.FieldRowIndex, victim.RowIndex, log.FieldTxID, victim.ID)
	m.publish(ctx, core.LedgerEvent{Op: core.OpTransactionDeleted, Transaction: &victim})
	return victim, nil
}

func (m *Manager) deleteRow(ctx context.Context, row int) error {
	if err := m.store.DeleteRows(ctx, m.txTable, row-1, row); err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	return nil
}

func (m *Manager) readTransactions(ctx context.Context) (snapshot, error) {
	rng := sheets.Columns(m.txTable, "A", sheets.ColumnLetter(len(TransactionHeader)-1))
	rows, err := m.store.Read(ctx, rng)
	if err != nil {
		return snapshot{}, fmt.Errorf("read %s: %w", rng, err)
	}
	snap := snapshot{rows: len(rows)}
	for i, row := range rows {
		if i == 0 {
			continue // row 1 is the header whatever it holds
		}
		tx, ok := parseTransactionRow(row, i+1)
		if !ok {
			m.logger.DebugContext(ctx, "skipping malformed row", log.FieldRowIndex, i+1)
			continue
		}
		snap.txs = append(snap.txs, tx)
	}
	return snap, nil
}

func parseTransactionRow(row []string, rowIndex int) (core.Transaction, bool) {
	if len(sheets.TrimRow(row)) == 0 {
		return core.Transaction{}, false
	}
	row = sheets.Pad(row, len(TransactionHeader))
	amount, err := core.ParseAmount(row[2])
	if err != nil {
		return core.Transaction{}, false
	}
	typ := core.TransactionType(row[3])
	if parsed, err := core.ParseTransactionType(row[3]); err == nil {
		typ = parsed
	}
	return core.Transaction{
		ID:          row[5],
		Date:        row[0],
		Description: row[1],
		Amount:      amount,
		Type:        typ,
		Category:    row[4],
		RowIndex:    rowIndex,
	}, true
}

// resolve applies the disambiguation rules: zero matches is not found,
// more than one is ambiguous, exactly one is returned. A row target inside
// the table that holds no well-formed transaction yields a zero RowIndex.
// Whatever the target, row 1 is never returned.
func (s snapshot) resolve(t Target) (core.Transaction, error) {
	tx, err := s.match(t)
	if err == nil && tx.RowIndex == 1 {
		return core.Transaction{}, core.Invalid("row_index", "1", core.ErrHeaderRow)
	}
	return tx, err
}

func (s snapshot) match(t Target) (core.Transaction, error) {
	switch t.kind {
	case targetRow:
		if t.row > s.rows {
			return core.Transaction{}, fmt.Errorf("row %d of %d: %w", t.row, s.rows, core.ErrRowOutOfRange)
		}
		for _, tx := range s.txs {
			if tx.RowIndex == t.row {
				return tx, nil
			}
		}
		return core.Transaction{}, nil
	case targetID:
		for _, tx := range s.txs {
			if tx.ID == t.id {
				return tx, nil
			}
		}
		return core.Transaction{}, fmt.Errorf("id %s: %w", t.id, core.ErrNotFound)
	}
	matches := t.criteria.Filter(s.txs)
	switch len(matches) {
	case 0:
		return core.Transaction{}, core.ErrNotFound
	case 1:
		return matches[0], nil
	}
	return core.Transaction{}, &core.AmbiguousError{Candidates: matches}
}
