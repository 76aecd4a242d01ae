// Package storage keeps ledger tables in SQLite with the same row semantics
// as a spreadsheet, for running without a Google account.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets"
)

// Store is a sheets.Store persisted in SQLite.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

var _ sheets.Store = (*Store)(nil)

// Open creates the database file if needed and runs migrations.
func Open(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.WithComponent(log.ComponentStorage).Info("sqlite store ready", "path", dbPath)
	return &Store{db: db, logger: logger.WithComponent(log.ComponentStorage)}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Read(ctx context.Context, rng sheets.Range) ([][]string, error) {
	if err := s.requireTable(ctx, s.db, rng.Table); err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	q := `SELECT position, cells FROM ledger_rows WHERE table_name = ? AND position >= ?`
	args := []any{rng.Table, max(rng.StartRow, 1)}
	if rng.EndRow > 0 {
		q += ` AND position <= ?`
		args = append(args, rng.EndRow)
	}
	q += ` ORDER BY position`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	defer rows.Close()

	first := max(rng.StartRow, 1)
	var out [][]string
	for rows.Next() {
		var pos int
		var raw string
		if err := rows.Scan(&pos, &raw); err != nil {
			return nil, fmt.Errorf("read %s: %w", rng, err)
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", rng, pos, err)
		}
		for len(out) < pos-first {
			out = append(out, []string{})
		}
		out = append(out, rng.Slice(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *Store) Append(ctx context.Context, table string, row []string) (int, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTable(ctx, tx, table); err != nil {
			return err
		}
		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(position) FROM ledger_rows WHERE table_name = ? AND cells <> '[]'`, table).Scan(&last); err != nil {
			return err
		}
		return writeRow(ctx, tx, table, int(last.Int64)+1, row)
	})
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", table, err)
	}
	return len(row), nil
}

func (s *Store) Update(ctx context.Context, rng sheets.Range, row []string) error {
	if rng.StartRow < 1 {
		return fmt.Errorf("update %s: range needs a row", rng)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTable(ctx, tx, rng.Table); err != nil {
			return err
		}
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT cells FROM ledger_rows WHERE table_name = ? AND position = ?`, rng.Table, rng.StartRow).Scan(&raw)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		target, err := decodeCells(raw)
		if err != nil {
			return err
		}
		from, to := rng.Bounds()
		for i, v := range row {
			col := from + i
			if col > to {
				break
			}
			target = sheets.Pad(target, col+1)
			target[col] = v
		}
		return writeRow(ctx, tx, rng.Table, rng.StartRow, target)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// DeleteRows removes 0-based rows [start, end) and shifts later rows up.
func (s *Store) DeleteRows(ctx context.Context, table string, start, end int) error {
	if start < 0 || end <= start {
		return fmt.Errorf("delete rows %s: invalid span [%d,%d)", table, start, end)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireTable(ctx, tx, table); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ledger_rows WHERE table_name = ? AND position > ? AND position <= ?`,
			table, start, end); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE ledger_rows SET position = position - ? WHERE table_name = ? AND position > ?`,
			end-start, table, end)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete rows %s: %w", table, err)
	}
	s.logger.DebugContext(ctx, "rows deleted", log.FieldTable, table, "start", start, "end", end)
	return nil
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM ledger_tables ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) CreateTable(ctx context.Context, name string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_tables WHERE name = ?`, name).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return sheets.ErrTableExists
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_tables (name, position) VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM ledger_tables))`,
			name)
		return err
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	s.logger.InfoContext(ctx, "table created", log.FieldTable, name)
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) requireTable(ctx context.Context, q queryer, table string) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_tables WHERE name = ?`, table).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return sheets.ErrTableNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// writeRow replaces whatever is stored at position.
func writeRow(ctx context.Context, tx *sql.Tx, table string, position int, cells []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ledger_rows WHERE table_name = ? AND position = ?`, table, position); err != nil {
		return err
	}
	raw, err := json.Marshal(sheets.TrimRow(append([]string{}, cells...)))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_rows (table_name, position, cells) VALUES (?, ?, ?)`, table, position, string(raw))
	return err
}

func decodeCells(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	return cells, nil
}
