// Package memory is an in-process ledger.Store used by tests, the CLI's
// memory backend and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

type Store struct {
	mu         sync.Mutex
	txs        []core.Transaction
	fixed      []core.FixedItem
	categories []core.Category
	assets     []core.Asset
	settings   []core.UserSettings
	markers    map[string]time.Time

	// InsertHook, when set, runs before each insert; a non-nil error aborts it.
	InsertHook func(core.Transaction) error
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{markers: map[string]time.Time{}}
}

// Seed helpers.

func (s *Store) AddFixedItem(f core.FixedItem) core.FixedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.fixed = append(s.fixed, f)
	return f
}

func (s *Store) AddCategory(c core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

func (s *Store) AddAsset(a core.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, a)
}

func (s *Store) PutUserSettings(us core.UserSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.settings {
		if s.settings[i].UserID == us.UserID {
			s.settings[i] = us
			return
		}
	}
	s.settings = append(s.settings, us)
}

func (s *Store) SaveFixedItem(_ context.Context, f core.FixedItem) (core.FixedItem, error) {
	s.mu.Lock()
	for i := range s.fixed {
		if f.ID != "" && s.fixed[i].ID == f.ID {
			s.fixed[i] = f
			s.mu.Unlock()
			return f, nil
		}
	}
	s.mu.Unlock()
	return s.AddFixedItem(f), nil
}

func (s *Store) SaveCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == c.ID {
			s.categories[i] = c
			return nil
		}
	}
	s.categories = append(s.categories, c)
	return nil
}

func (s *Store) SaveAsset(_ context.Context, a core.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assets {
		if s.assets[i].ID == a.ID {
			s.assets[i] = a
			return nil
		}
	}
	s.assets = append(s.assets, a)
	return nil
}

func (s *Store) SaveUserSettings(_ context.Context, us core.UserSettings) error {
	s.PutUserSettings(us)
	return nil
}

// Transactions returns a copy of every stored record.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs...)
}

func (s *Store) QueryTransactions(_ context.Context, q ledger.Query) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if s.InsertHook != nil {
		if err := s.InsertHook(t); err != nil {
			return core.Transaction{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Installment != nil {
		in := *t.Installment
		t.Installment = &in
	}
	s.txs = append(s.txs, t)
	return t, nil
}

func (s *Store) TransactionExists(_ context.Context, m ledger.Match) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs {
		if m.Matches(t) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, core.NotFound("transaction", id)
}

func (s *Store) DeleteTransactionsByInstallmentID(_ context.Context, masterID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.txs[:0]
	removed := 0
	for _, t := range s.txs {
		if t.InstallmentID() == masterID {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.txs = kept
	return removed, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.txs {
		if t.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return nil
		}
	}
	return core.NotFound("transaction", id)
}

func (s *Store) GetMarker(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.markers[key]
	return ts, ok, nil
}

func (s *Store) SetMarker(_ context.Context, key string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = ts
	return nil
}

func (s *Store) ListActiveFixedItems(_ context.Context, userID string) ([]core.FixedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.FixedItem
	for _, f := range s.fixed {
		if f.UserID == userID && f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id && c.UserID == userID {
			return c, nil
		}
	}
	return core.Category{}, core.NotFound("category", id)
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetAsset(_ context.Context, userID, id string) (core.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assets {
		if a.ID == id && a.UserID == userID {
			return a, nil
		}
	}
	return core.Asset{}, core.NotFound("asset", id)
}

func (s *Store) ListUserSettings(_ context.Context) ([]core.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.UserSettings(nil), s.settings...), nil
}

func (s *Store) GetUserSettings(_ context.Context, userID string) (core.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, us := range s.settings {
		if us.UserID == userID {
			return us, nil
		}
	}
	return core.UserSettings{}, core.NotFound("user settings", userID)
}
