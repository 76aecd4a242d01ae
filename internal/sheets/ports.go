package sheets

import (
	"context"
	"errors"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
)

// Store is the row-oriented remote ledger store.
//
// Rows are 1-based in ranges and 0-based in DeleteRows (start inclusive,
// end exclusive), mirroring the Sheets API. Deleting rows shifts every
// later row up. Read returns cells as displayed text; trailing empty cells
// and trailing empty rows may be omitted.
type Store interface {
	Read(ctx context.Context, rng Range) ([][]string, error)
	// Append writes row after the last non-empty row of table and
	// returns the number of cells written.
	Append(ctx context.Context, table string, row []string) (int, error)
	Update(ctx context.Context, rng Range, row []string) error
	DeleteRows(ctx context.Context, table string, start, end int) error
	ListTables(ctx context.Context) ([]string, error)
	CreateTable(ctx context.Context, name string) error
}
