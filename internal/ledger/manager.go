// Package ledger implements the budget ledger over a row-oriented store:
// transaction CRUD with criteria matching and disambiguation, budget
// upserts and the category universe.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets"
)

const (
	DefaultTransactionsTable = "Transactions"
	DefaultBudgetsTable      = "Budgets"
)

var (
	TransactionHeader = []string{"Date", "Description", "Amount", "Type", "Category", "ID"}
	BudgetHeader      = []string{"Category", "Budget Limit"}
)

// EditStrategy selects how an edit is written back.
type EditStrategy string

const (
	// EditInPlace overwrites the row; position and ID are preserved.
	EditInPlace EditStrategy = "in_place"
	// EditRecreate deletes the row and appends the merged one at the end.
	EditRecreate EditStrategy = "recreate"
)

// CategorySource selects which tables feed the category universe.
type CategorySource string

const (
	CategoriesFromBudgets CategorySource = "budgets"
	CategoriesFromAll     CategorySource = "all"
)

func (s EditStrategy) IsValid() bool {
	return s == EditInPlace || s == EditRecreate
}

func (s CategorySource) IsValid() bool {
	return s == CategoriesFromBudgets || s == CategoriesFromAll
}

// Publisher receives an event after every successful mutation.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

// Manager is the ledger. It is safe for concurrent use; mutations are
// serialised so read-modify-write sequences from one process never
// interleave.
type Manager struct {
	store          sheets.Store
	txTable        string
	budgetTable    string
	editStrategy   EditStrategy
	categorySource CategorySource
	publisher      Publisher
	logger         *log.Logger
	newID          func() string
	now            func() time.Time

	writeMu   sync.Mutex
	connected atomic.Bool
}

type Option func(*Manager)

func WithTables(transactions, budgets string) Option {
	return func(m *Manager) {
		if transactions != "" {
			m.txTable = transactions
		}
		if budgets != "" {
			m.budgetTable = budgets
		}
	}
}

func WithEditStrategy(s EditStrategy) Option {
	return func(m *Manager) {
		if s.IsValid() {
			m.editStrategy = s
		}
	}
}

func WithCategorySource(s CategorySource) Option {
	return func(m *Manager) {
		if s.IsValid() {
			m.categorySource = s
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

// WithIDGenerator replaces the UUID generator, for deterministic tests.
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New builds a manager without touching the store. Call Connect before use.
func New(store sheets.Store, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		txTable:        DefaultTransactionsTable,
		budgetTable:    DefaultBudgetsTable,
		editStrategy:   EditInPlace,
		categorySource: CategoriesFromBudgets,
		logger:         log.Default().WithComponent(log.ComponentLedger),
		newID:          uuid.NewString,
		now:            time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Connect makes sure both tables exist and carry a header row.
func (m *Manager) Connect(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tables, err := m.store.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("connect: list tables: %w", err)
	}
	if err := m.ensureTable(ctx, tables, m.txTable, TransactionHeader); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := m.ensureTable(ctx, tables, m.budgetTable, BudgetHeader); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	m.connected.Store(true)
	m.logger.InfoContext(ctx, "ledger connected",
		log.FieldOperation, log.OpConnect,
		"transactions_table", m.txTable,
		"budgets_table", m.budgetTable,
		log.FieldStrategy, string(m.editStrategy))
	return nil
}

func (m *Manager) ensureTable(ctx context.Context, existing []string, name string, header []string) error {
	if !slices.Contains(existing, name) {
		if err := m.store.CreateTable(ctx, name); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		m.logger.InfoContext(ctx, "table created", log.FieldTable, name)
	}
	last := sheets.ColumnLetter(len(header) - 1)
	rows, err := m.store.Read(ctx, sheets.Row(name, 1, "A", last))
	if err != nil {
		return fmt.Errorf("read header %s: %w", name, err)
	}
	if len(rows) > 0 && len(sheets.TrimRow(rows[0])) > 0 {
		if !isHeader(rows[0], header) {
			m.logger.WarnContext(ctx, "row 1 is not a header; it is treated as one and never read as data",
				log.FieldTable, name, log.FieldRowIndex, 1)
		}
		return nil
	}
	if err := m.store.Update(ctx, sheets.Row(name, 1, "A", last), header); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	return nil
}

// Connected reports whether Connect has succeeded.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

func (m *Manager) ready() error {
	if !m.connected.Load() {
		return core.ErrNotConnected
	}
	return nil
}

// EditStrategy returns the configured edit strategy.
func (m *Manager) EditStrategy() EditStrategy { return m.editStrategy }

func (m *Manager) publish(ctx context.Context, ev core.LedgerEvent) {
	if m.publisher == nil {
		return
	}
	ev.At = m.now().UTC()
	if err := m.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		// The mutation already happened; a lost event is only logged.
		m.logger.WithError(err).WarnContext(ctx, "publish ledger event failed",
			log.FieldOperation, string(ev.Op))
	}
}

func isHeader(row []string, header []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), header[0])
}
