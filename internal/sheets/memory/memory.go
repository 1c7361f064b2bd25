// Package memory is an in-process spreadsheet used by tests and local runs
// of the ledger exporter.
package memory

import (
	"context"
	"fmt"
	"sync"

	"gagyebu/internal/core"
	ports "gagyebu/internal/sheets"
)

// Row is one exported record.
type Row struct {
	Transaction core.Transaction
	PeriodKey   string
	Deleted     bool
}

type Store struct {
	mu   sync.Mutex
	rows []Row
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the record and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, t core.Transaction, periodKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Row{Transaction: t, PeriodKey: periodKey})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) MarkDeleted(_ context.Context, year int, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		t := s.rows[i].Transaction
		if t.ID == transactionID && t.Date.Year() == year {
			s.rows[i].Deleted = true
			return nil
		}
	}
	return fmt.Errorf("row for %s: %w", transactionID, core.ErrNotFound)
}

func (s *Store) ExportedIDs(_ context.Context, year int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.rows {
		if r.Transaction.Date.Year() == year {
			out = append(out, r.Transaction.ID)
		}
	}
	return out, nil
}

// Rows returns a copy of every exported row.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
