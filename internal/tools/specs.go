package tools

// Spec describes a tool for the dialogue agent's function-calling layer.
type Spec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  map[string]Param `json:"parameters"`
}

// Param is one argument of a tool. Object parameters list their fields
// in Properties.
type Param struct {
	Type        string           `json:"type"`
	Description string           `json:"description"`
	Required    bool             `json:"required,omitempty"`
	Properties  map[string]Param `json:"properties,omitempty"`
}

var matchFields = map[string]Param{
	"date":        {Type: "string", Description: "Exact date, YYYY-MM-DD, 'today' or 'yesterday'."},
	"description": {Type: "string", Description: "Case-insensitive substring of the description."},
	"amount":      {Type: "number", Description: "Amount, matched within 0.01."},
	"type":        {Type: "string", Description: "Income or Expense."},
	"category":    {Type: "string", Description: "Category name, case-insensitive."},
}

var (
	specAddTransaction = Spec{
		Name:        "add_transaction",
		Description: "Add an income or expense transaction to the ledger. The category must already exist.",
		Parameters: map[string]Param{
			"date":        {Type: "string", Description: "YYYY-MM-DD, 'today' or 'yesterday'.", Required: true},
			"description": {Type: "string", Description: "What the transaction was for."},
			"amount":      {Type: "number", Description: "Transaction amount.", Required: true},
			"type":        {Type: "string", Description: "Income or Expense.", Required: true},
			"category":    {Type: "string", Description: "Existing budget category."},
		},
	}
	specGetTransactions = Spec{
		Name:        "get_transactions",
		Description: "List every transaction with its current row_index.",
		Parameters:  map[string]Param{},
	}
	specFindTransactions = Spec{
		Name:        "find_transactions",
		Description: "List transactions matching every given field. Omitted fields are ignored.",
		Parameters:  matchFields,
	}
	specEditTransaction = Spec{
		Name: "edit_transaction",
		Description: "Change fields of one transaction, addressed by row_index, id or match. " +
			"If several transactions match, nothing changes and the candidates are returned.",
		Parameters: map[string]Param{
			"row_index": {Type: "integer", Description: "Row of the transaction as returned by a previous listing. Must be 2 or more."},
			"id":        {Type: "string", Description: "Stable transaction id."},
			"match":     {Type: "object", Description: "Fields identifying the transaction.", Properties: matchFields},
			"changes":   {Type: "object", Description: "New values; omitted fields keep their value.", Properties: matchFields, Required: true},
		},
	}
	specDeleteTransaction = Spec{
		Name: "delete_transaction",
		Description: "Delete one transaction, addressed by row_index, id or match. " +
			"If several transactions match, nothing is deleted and the candidates are returned.",
		Parameters: map[string]Param{
			"row_index": {Type: "integer", Description: "Row of the transaction. Must be 2 or more."},
			"id":        {Type: "string", Description: "Stable transaction id."},
			"match":     {Type: "object", Description: "Fields identifying the transaction.", Properties: matchFields},
		},
	}
	specModifyBudget = Spec{
		Name:        "modify_budget",
		Description: "Set the budget limit of a category, creating the category if it does not exist.",
		Parameters: map[string]Param{
			"category": {Type: "string", Description: "Category name.", Required: true},
			"limit":    {Type: "number", Description: "New budget limit.", Required: true},
		},
	}
	specCreateCategory = Spec{
		Name:        "create_category",
		Description: "Create a new budget category. Fails if it already exists.",
		Parameters: map[string]Param{
			"category": {Type: "string", Description: "Category name.", Required: true},
			"limit":    {Type: "number", Description: "Projected budget, defaults to 0."},
		},
	}
	specGetCategories = Spec{
		Name:        "get_categories",
		Description: "List the existing categories.",
		Parameters:  map[string]Param{},
	}
	specGetBudgets = Spec{
		Name:        "get_budgets",
		Description: "List budget categories and their limits.",
		Parameters:  map[string]Param{},
	}
	specBudgetSummary = Spec{
		Name:        "budget_summary",
		Description: "Spending, income and remaining budget per category.",
		Parameters: map[string]Param{
			"month": {Type: "string", Description: "YYYY-MM, 'this month' or 'last month'. Omit for all time."},
		},
	}
)
