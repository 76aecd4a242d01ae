package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Neonotso/budget-agent/internal/sheets"
)

// Store keeps tables in process memory with spreadsheet row semantics.
type Store struct {
	mu     sync.Mutex
	order  []string
	tables map[string][][]string
}

var _ sheets.Store = (*Store)(nil)

// Seed is the YAML layout accepted by NewFromFile:
//
//	tables:
//	  Budgets:
//	    - [Category, Budget Limit]
//	    - [Groceries, "300"]
type Seed struct {
	Tables map[string][][]string `yaml:"tables"`
}

func New() *Store {
	return &Store{tables: map[string][][]string{}}
}

// NewFromFile loads a YAML seed. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for name, rows := range seed.Tables {
		s.Seed(name, rows...)
	}
	return s, nil
}

// Seed creates table if needed and appends rows verbatim.
func (s *Store) Seed(table string, rows ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.order = append(s.order, table)
	}
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], append([]string(nil), r...))
	}
	if s.tables[table] == nil {
		s.tables[table] = [][]string{}
	}
}

// Rows returns a copy of every row of table, for assertions.
func (s *Store) Rows(table string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, append([]string(nil), r...))
	}
	return out
}

func (s *Store) Read(_ context.Context, rng sheets.Range) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[rng.Table]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", rng, sheets.ErrTableNotFound)
	}
	start, end := 0, len(rows)
	if rng.StartRow > 0 {
		start = rng.StartRow - 1
	}
	if rng.EndRow > 0 && rng.EndRow < end {
		end = rng.EndRow
	}
	var out [][]string
	for i := start; i < end; i++ {
		out = append(out, rng.Slice(rows[i]))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *Store) Append(_ context.Context, table string, row []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return 0, fmt.Errorf("append %s: %w", table, sheets.ErrTableNotFound)
	}
	last := len(rows)
	for last > 0 && len(sheets.TrimRow(rows[last-1])) == 0 {
		last--
	}
	s.tables[table] = append(rows[:last], append([]string(nil), row...))
	return len(row), nil
}

func (s *Store) Update(_ context.Context, rng sheets.Range, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[rng.Table]
	if !ok {
		return fmt.Errorf("update %s: %w", rng, sheets.ErrTableNotFound)
	}
	if rng.StartRow < 1 {
		return fmt.Errorf("update %s: range needs a row", rng)
	}
	for len(rows) < rng.StartRow {
		rows = append(rows, []string{})
	}
	from, to := rng.Bounds()
	target := rows[rng.StartRow-1]
	for i, v := range row {
		col := from + i
		if col > to {
			break
		}
		target = sheets.Pad(target, col+1)
		target[col] = v
	}
	rows[rng.StartRow-1] = target
	s.tables[rng.Table] = rows
	return nil
}

func (s *Store) DeleteRows(_ context.Context, table string, start, end int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("delete rows %s: %w", table, sheets.ErrTableNotFound)
	}
	if start < 0 || end <= start {
		return fmt.Errorf("delete rows %s: invalid span [%d,%d)", table, start, end)
	}
	if start >= len(rows) {
		return nil
	}
	if end > len(rows) {
		end = len(rows)
	}
	s.tables[table] = append(rows[:start], rows[end:]...)
	return nil
}

func (s *Store) ListTables(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *Store) CreateTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return fmt.Errorf("create %s: %w", name, sheets.ErrTableExists)
	}
	s.order = append(s.order, name)
	s.tables[name] = [][]string{}
	return nil
}
