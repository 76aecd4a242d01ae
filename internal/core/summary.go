package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CategorySummary aggregates one category over a period.
type CategorySummary struct {
	Category   string          `json:"category"`
	Limit      decimal.Decimal `json:"limit"`
	Spent      decimal.Decimal `json:"spent"`
	Income     decimal.Decimal `json:"income"`
	Remaining  decimal.Decimal `json:"remaining"`
	OverBudget bool            `json:"over_budget"`
	HasBudget  bool            `json:"has_budget"`
}

// CategorySet collects category names keeping the first spelling seen for
// each case-insensitive key, in insertion order.
type CategorySet struct {
	names []string
	index map[string]int
}

func NewCategorySet() *CategorySet {
	return &CategorySet{index: make(map[string]int)}
}

// Add inserts name unless an equal category exists. Blank names are
// ignored. It returns the canonical spelling.
func (s *CategorySet) Add(name string) string {
	key := CategoryKey(name)
	if key == "" {
		return ""
	}
	if i, ok := s.index[key]; ok {
		return s.names[i]
	}
	s.index[key] = len(s.names)
	s.names = append(s.names, strings.TrimSpace(name))
	return s.names[len(s.names)-1]
}

// Lookup returns the canonical spelling of name, if present.
func (s *CategorySet) Lookup(name string) (string, bool) {
	i, ok := s.index[CategoryKey(name)]
	if !ok {
		return "", false
	}
	return s.names[i], true
}

func (s *CategorySet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *CategorySet) Len() int { return len(s.names) }
