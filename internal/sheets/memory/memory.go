package memory

import (
	"context"
	"fmt"
	"sync"

	"treasury/internal/export"
	"treasury/internal/sheets"
)

var _ sheets.TablePublisher = (*Store)(nil)

// Store keeps published tables in memory, keyed by tab title.
type Store struct {
	mu     sync.Mutex
	tables map[string]export.Table
	order  []string
}

func New() *Store {
	return &Store{tables: make(map[string]export.Table)}
}

// PublishTable replaces the tab's contents and returns a synthetic reference.
func (s *Store) PublishTable(_ context.Context, title string, t export.Table) (string, error) {
	if title == "" {
		return "", fmt.Errorf("empty tab title")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[title]; !ok {
		s.order = append(s.order, title)
	}
	s.tables[title] = t
	return fmt.Sprintf("mem:%s!%d", title, len(t.Rows)+1), nil
}

// Table returns the table last published under title.
func (s *Store) Table(title string) (export.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[title]
	return t, ok
}

// Titles lists tabs in first-published order.
func (s *Store) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
