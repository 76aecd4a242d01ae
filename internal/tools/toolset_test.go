package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neonotso/budget-agent/internal/core"
	"github.com/Neonotso/budget-agent/internal/ledger"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets/memory"
)

var fixedNow = time.Date(2025, 6, 29, 9, 0, 0, 0, time.UTC)

func newToolset(t *testing.T, opts ...Option) (*Toolset, *memory.Store) {
	t.Helper()
	store := memory.New()
	n := 0
	m := ledger.New(store, ledger.WithLogger(log.Discard()), ledger.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	require.NoError(t, m.Connect(context.Background()))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithLogger(log.Discard())}, opts...)
	return New(m, opts...), store
}

func call(t *testing.T, ts *Toolset, name, args string) Result {
	t.Helper()
	return ts.Call(context.Background(), name, json.RawMessage(args))
}

func TestNamesAndSpecs(t *testing.T) {
	ts, _ := newToolset(t)
	names := ts.Names()
	assert.Len(t, names, 10)
	assert.Contains(t, names, "add_transaction")
	assert.Contains(t, names, "budget_summary")
	for i, s := range ts.Specs() {
		assert.Equal(t, names[i], s.Name)
		assert.NotEmpty(t, s.Description)
	}
	assert.True(t, ts.Has("get_categories"))
	assert.False(t, ts.Has("drop_table"))
}

func TestUnknownTool(t *testing.T) {
	ts, _ := newToolset(t)
	res := call(t, ts, "drop_table", `{}`)
	assert.Equal(t, StatusError, res.Status)
}

func TestAddTransactionResolvesYesterday(t *testing.T) {
	ts, store := newToolset(t)
	store.Seed(ledger.DefaultBudgetsTable, []string{"Groceries", "300"})

	res := call(t, ts, "add_transaction",
		`{"date":"yesterday","description":"grocery run","amount":"$20","transaction_type":"expense","category":"groceries"}`)
	require.Equal(t, StatusSuccess, res.Status, res.Message)

	rows := store.Rows(ledger.DefaultTransactionsTable)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2025-06-28", "grocery run", "20.00", "Expense", "Groceries", "id-1"}, rows[1])
	assert.Equal(t, 6, res.Data["cells_written"])
}

func TestAddTransactionUnknownCategory(t *testing.T) {
	ts, store := newToolset(t)
	store.Seed(ledger.DefaultBudgetsTable, []string{"Groceries", "300"}, []string{"Rent", "900"})

	res := call(t, ts, "add_transaction", `{"date":"today","amount":5,"type":"Expense","category":"Snacks"}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Category 'Snacks' does not exist. Would you like to create it or choose an existing category? Existing categories: Groceries, Rent.", res.Message)
	assert.Len(t, store.Rows(ledger.DefaultTransactionsTable), 1)

	loose, looseStore := newToolset(t, WithRequireKnownCategory(false))
	res = call(t, loose, "add_transaction", `{"date":"today","amount":5,"type":"Expense","category":"Snacks"}`)
	assert.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Len(t, looseStore.Rows(ledger.DefaultTransactionsTable), 2)
}

func TestAddTransactionValidation(t *testing.T) {
	ts, _ := newToolset(t)

	res := call(t, ts, "add_transaction", `{"date":"2025-13-01","amount":5,"type":"Expense"}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "Invalid input")

	res = call(t, ts, "add_transaction", `{"date":"today","amount":"lots","type":"Expense"}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "amount")

	res = call(t, ts, "add_transaction", `{"date":"today","type":"Expense"}`)
	assert.Equal(t, StatusError, res.Status)

	res = call(t, ts, "add_transaction", `{not json`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "malformed JSON")
}

func seedTransactions(t *testing.T, ts *Toolset) {
	t.Helper()
	for _, a := range []string{
		`{"date":"2025-06-01","description":"Coffee","amount":3,"type":"Expense"}`,
		`{"date":"2025-06-02","description":"Coffee beans","amount":12,"type":"Expense"}`,
		`{"date":"2025-06-03","description":"Salary","amount":3000,"type":"Income"}`,
	} {
		res := call(t, ts, "add_transaction", a)
		require.Equal(t, StatusSuccess, res.Status, res.Message)
	}
}

func TestDeleteAmbiguousReturnsCandidates(t *testing.T) {
	ts, store := newToolset(t, WithRequireKnownCategory(false))
	seedTransactions(t, ts)

	res := call(t, ts, "delete_transaction", `{"match":{"description":"coffee"}}`)
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, "Multiple transactions match your criteria. Please be more specific.", res.Message)
	candidates, ok := res.Data["candidates"].([]transactionView)
	require.True(t, ok)
	assert.Len(t, candidates, 2)
	assert.Len(t, store.Rows(ledger.DefaultTransactionsTable), 4)

	res = call(t, ts, "delete_transaction", `{"match":{"description":"coffee","amount":12.01}}`)
	assert.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Len(t, store.Rows(ledger.DefaultTransactionsTable), 3)
}

func TestDeleteNotFoundAndHeader(t *testing.T) {
	ts, _ := newToolset(t, WithRequireKnownCategory(false))
	seedTransactions(t, ts)

	res := call(t, ts, "delete_transaction", `{"match":{"description":"tea"}}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "No matching transaction found.", res.Message)

	res = call(t, ts, "delete_transaction", `{"row_index":1}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "header")

	res = call(t, ts, "delete_transaction", `{"row_index":40}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "does not exist")

	res = call(t, ts, "delete_transaction", `{"row_index":4}`)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Message, "Salary")
}

func TestEditTransactionByMatch(t *testing.T) {
	ts, store := newToolset(t, WithRequireKnownCategory(false))
	seedTransactions(t, ts)

	res := call(t, ts, "edit_transaction", `{"match":{"description":"salary"},"changes":{"amount":0,"date":"today"}}`)
	require.Equal(t, StatusSuccess, res.Status, res.Message)

	rows := store.Rows(ledger.DefaultTransactionsTable)
	assert.Equal(t, []string{"2025-06-29", "Salary", "0.00", "Income", "", "id-3"}, rows[3])

	res = call(t, ts, "edit_transaction", `{"match":{"description":"coffee"},"changes":{"amount":1}}`)
	assert.Equal(t, StatusAmbiguous, res.Status)

	res = call(t, ts, "edit_transaction", `{"id":"id-1","changes":{}}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "no fields to update")
}

func TestFindAndGetTransactions(t *testing.T) {
	ts, _ := newToolset(t, WithRequireKnownCategory(false))
	seedTransactions(t, ts)

	res := call(t, ts, "get_transactions", ``)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, res.Data["transactions"], 3)

	res = call(t, ts, "find_transactions", `{"type":"income"}`)
	require.Equal(t, StatusSuccess, res.Status)
	txs := res.Data["transactions"].([]transactionView)
	require.Len(t, txs, 1)
	assert.Equal(t, 4, txs[0].RowIndex)
	assert.Equal(t, "3000.00", txs[0].Amount.String())

	res = call(t, ts, "find_transactions", `{"description":"rent"}`)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "No matching transaction found.", res.Message)
}

func TestBudgetTools(t *testing.T) {
	ts, _ := newToolset(t)

	res := call(t, ts, "modify_budget", `{"category":"Food","limit":300}`)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Budget for Food added with limit 300.00.", res.Message)

	res = call(t, ts, "modify_budget", `{"category":"food","limit":"250.5"}`)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Budget for Food updated to 250.50.", res.Message)

	res = call(t, ts, "modify_budget", `{"category":"food"}`)
	assert.Equal(t, StatusError, res.Status)

	res = call(t, ts, "create_category", `{"category":"Travel"}`)
	require.Equal(t, StatusSuccess, res.Status, res.Message)

	res = call(t, ts, "create_category", `{"category":"TRAVEL","limit":5}`)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "already exists")

	res = call(t, ts, "get_categories", `{}`)
	assert.Equal(t, "Existing categories: Food, Travel.", res.Message)

	res = call(t, ts, "get_budgets", `{}`)
	assert.Len(t, res.Data["budgets"], 2)
}

func TestBudgetSummaryTool(t *testing.T) {
	ts, store := newToolset(t, WithRequireKnownCategory(false))
	store.Seed(ledger.DefaultBudgetsTable, []string{"Food", "10"})
	res := call(t, ts, "add_transaction", `{"date":"today","amount":15,"type":"Expense","category":"food"}`)
	require.Equal(t, StatusSuccess, res.Status)

	res = call(t, ts, "budget_summary", `{"month":"this month"}`)
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Equal(t, "2025-06: 1 categories, 1 over budget.", res.Message)

	res = call(t, ts, "budget_summary", `{"month":"last month"}`)
	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Equal(t, "2025-05", res.Data["month"])

	res = call(t, ts, "budget_summary", `{"month":"sometime"}`)
	assert.Equal(t, StatusError, res.Status)
}

func TestResultJSONShape(t *testing.T) {
	r := success("ok", map[string]any{"categories": []string{"A"}})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","message":"ok","categories":["A"]}`, string(b))
}

type panickingLedger struct{ Ledger }

func (panickingLedger) GetBudgets(context.Context) ([]core.Budget, error) {
	panic("boom")
}

func TestCallRecoversPanics(t *testing.T) {
	ts := New(panickingLedger{}, WithLogger(log.Discard()))
	res := ts.Call(context.Background(), "get_budgets", nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "Internal error")
}

func TestNotConnectedLedger(t *testing.T) {
	ts := New(ledger.New(memory.New(), ledger.WithLogger(log.Discard())), WithLogger(log.Discard()))
	res := ts.Call(context.Background(), "get_transactions", nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "not connected")
}
