package sheets

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Range addresses a rectangle of a table in A1 terms. Zero StartRow/EndRow
// leave the rows unbounded; an empty EndCol means a single column.
type Range struct {
	Table    string
	StartCol string
	EndCol   string
	StartRow int
	EndRow   int
}

// Columns addresses whole columns, e.g. Transactions!A:F.
func Columns(table, from, to string) Range {
	return Range{Table: table, StartCol: from, EndCol: to}
}

// Row addresses one row between two columns, e.g. Transactions!A5:F5.
func Row(table string, row int, from, to string) Range {
	return Range{Table: table, StartCol: from, EndCol: to, StartRow: row, EndRow: row}
}

// Cell addresses a single cell, e.g. Budgets!B3.
func Cell(table string, row int, col string) Range {
	return Range{Table: table, StartCol: col, EndCol: col, StartRow: row, EndRow: row}
}

// String renders the A1 notation understood by the Sheets API.
func (r Range) String() string {
	end := r.EndCol
	if end == "" {
		end = r.StartCol
	}
	start := r.StartCol
	if r.StartRow > 0 {
		start += fmt.Sprint(r.StartRow)
	}
	if r.EndRow > 0 {
		end += fmt.Sprint(r.EndRow)
	}
	if start == end && r.StartRow > 0 {
		return quoteTable(r.Table) + "!" + start
	}
	return quoteTable(r.Table) + "!" + start + ":" + end
}

// ParseRange parses A1 notation of the form String produces.
func ParseRange(s string) (Range, error) {
	i := strings.LastIndex(s, "!")
	if i <= 0 {
		return Range{}, fmt.Errorf("range %q: missing table", s)
	}
	table := s[:i]
	if len(table) >= 2 && strings.HasPrefix(table, "'") && strings.HasSuffix(table, "'") {
		table = strings.ReplaceAll(table[1:len(table)-1], "''", "'")
	}
	start, end, hasEnd := strings.Cut(s[i+1:], ":")
	col, row, err := splitCell(start)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	r := Range{Table: table, StartCol: col, EndCol: col, StartRow: row, EndRow: row}
	if hasEnd {
		if r.EndCol, r.EndRow, err = splitCell(end); err != nil {
			return Range{}, fmt.Errorf("range %q: %w", s, err)
		}
	}
	return r, nil
}

func splitCell(c string) (string, int, error) {
	j := 0
	for j < len(c) && unicode.IsLetter(rune(c[j])) {
		j++
	}
	if j == 0 {
		return "", 0, fmt.Errorf("bad cell %q", c)
	}
	col := strings.ToUpper(c[:j])
	if j == len(c) {
		return col, 0, nil
	}
	n, err := strconv.Atoi(c[j:])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("bad row in %q", c)
	}
	return col, n, nil
}

// Bounds returns the 0-based inclusive column bounds.
func (r Range) Bounds() (from, to int) {
	from = ColumnIndex(r.StartCol)
	to = from
	if r.EndCol != "" {
		to = ColumnIndex(r.EndCol)
	}
	return from, to
}

// Slice cuts the range's columns out of a full row, trimming trailing
// empty cells.
func (r Range) Slice(row []string) []string {
	from, to := r.Bounds()
	if from >= len(row) {
		return []string{}
	}
	if to >= len(row) {
		to = len(row) - 1
	}
	return TrimRow(append([]string(nil), row[from:to+1]...))
}

// ColumnIndex converts a column letter ("A", "F", "AA") to a 0-based index.
func ColumnIndex(col string) int {
	n := 0
	for _, c := range strings.ToUpper(col) {
		n = n*26 + int(c-'A'+1)
	}
	return n - 1
}

// TrimRow drops trailing empty cells.
func TrimRow(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}

// Pad extends row to n cells with empty strings.
func Pad(row []string, n int) []string {
	if len(row) >= n {
		return row
	}
	out := make([]string, n)
	copy(out, row)
	return out
}

func quoteTable(name string) string {
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// ColumnLetter converts a 0-based column index to its letter.
func ColumnLetter(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
	}
	return s
}
