// Package ledger declares the outbound ports the recurring engine consumes:
// the transaction ledger, the generation-marker store and the template and
// catalog sources. Implementations live in ledger/memory, storage and
// storage/postgres.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
)

type (
	// Query filters QueryTransactions. Zero-valued fields do not filter.
	Query struct {
		UserID     string
		From       core.Date // inclusive
		To         core.Date // inclusive
		Type       core.TransactionType
		AssetID    string
		ToAssetID  string
		BudgetType core.BudgetType
		Kinds      []core.EntryKind
		MasterID   string
	}

	// Match identifies an existing occurrence. When InstallmentID is set the
	// match is (InstallmentID, Date); otherwise it is
	// (UserID, Title, Amount, Date, Type).
	Match struct {
		UserID        string
		Title         string
		Amount        decimal.Decimal
		Date          core.Date
		Type          core.TransactionType
		InstallmentID string
	}

	Ledger interface {
		QueryTransactions(ctx context.Context, q Query) ([]core.Transaction, error)
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		TransactionExists(ctx context.Context, m Match) (bool, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		DeleteTransactionsByInstallmentID(ctx context.Context, masterID string) (int, error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	// MarkerStore holds generation markers. It is a scan-avoidance cache,
	// never the source of truth for whether an occurrence exists.
	MarkerStore interface {
		GetMarker(ctx context.Context, key string) (time.Time, bool, error)
		SetMarker(ctx context.Context, key string, ts time.Time) error
	}

	FixedItemSource interface {
		ListActiveFixedItems(ctx context.Context, userID string) ([]core.FixedItem, error)
	}

	Catalog interface {
		GetCategory(ctx context.Context, userID, id string) (core.Category, error)
		GetAsset(ctx context.Context, userID, id string) (core.Asset, error)
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	}

	SettingsSource interface {
		ListUserSettings(ctx context.Context) ([]core.UserSettings, error)
		GetUserSettings(ctx context.Context, userID string) (core.UserSettings, error)
	}

	// Editor writes the templates and reference data a user manages.
	Editor interface {
		SaveFixedItem(ctx context.Context, f core.FixedItem) (core.FixedItem, error)
		SaveCategory(ctx context.Context, c core.Category) error
		SaveAsset(ctx context.Context, a core.Asset) error
		SaveUserSettings(ctx context.Context, us core.UserSettings) error
	}

	// Store is everything a backend provides.
	Store interface {
		Ledger
		MarkerStore
		FixedItemSource
		Catalog
		SettingsSource
		Editor
	}
)

// Matches reports whether t satisfies the query filters.
func (q Query) Matches(t core.Transaction) bool {
	if q.UserID != "" && t.UserID != q.UserID {
		return false
	}
	if !q.From.IsZero() && t.Date.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && t.Date.After(q.To) {
		return false
	}
	if q.Type != "" && t.Type != q.Type {
		return false
	}
	if q.AssetID != "" && t.AssetID != q.AssetID {
		return false
	}
	if q.ToAssetID != "" && t.ToAssetID != q.ToAssetID {
		return false
	}
	if q.BudgetType != "" && t.BudgetType != q.BudgetType {
		return false
	}
	if q.MasterID != "" && t.InstallmentID() != q.MasterID {
		return false
	}
	if len(q.Kinds) > 0 {
		kind := t.Kind()
		found := false
		for _, k := range q.Kinds {
			if k == kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Matches reports whether t is the occurrence m describes.
func (m Match) Matches(t core.Transaction) bool {
	if m.InstallmentID != "" {
		return t.InstallmentID() == m.InstallmentID && t.Date.Equal(m.Date)
	}
	return t.UserID == m.UserID &&
		t.Title == m.Title &&
		t.Amount.Equal(m.Amount) &&
		t.Date.Equal(m.Date) &&
		t.Type == m.Type
}

// ChargeableKinds are the records that count as card spend: everything but
// installment masters.
var ChargeableKinds = []core.EntryKind{
	core.PlainEntry,
	core.FixedOccurrence,
	core.InstallmentOccurrence,
}
