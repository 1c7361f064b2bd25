package storage

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

func TestTransactionWhere(t *testing.T) {
	tests := []struct {
		name      string
		q         ledger.Query
		d         Dialect
		wantWhere string
		wantArgs  []any
	}{
		{"empty", ledger.Query{}, SQLiteDialect, "", nil},
		{
			name:      "sqlite range",
			q:         ledger.Query{UserID: "u1", From: core.NewDate(2025, 3, 1), To: core.NewDate(2025, 3, 31)},
			d:         SQLiteDialect,
			wantWhere: " WHERE user_id = ? AND date >= ? AND date <= ?",
			wantArgs:  []any{"u1", "2025-03-01", "2025-03-31"},
		},
		{
			name:      "postgres numbering",
			q:         ledger.Query{UserID: "u1", Type: core.Transfer, ToAssetID: "card"},
			d:         PostgresDialect,
			wantWhere: " WHERE user_id = $1 AND type = $2 AND to_asset_id = $3",
			wantArgs:  []any{"u1", "transfer", "card"},
		},
		{
			name:      "kinds",
			q:         ledger.Query{Kinds: []core.EntryKind{core.InstallmentMasterKind}},
			d:         SQLiteDialect,
			wantWhere: " WHERE ((is_installment AND installment_id IS NULL))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := TransactionWhere(tt.q, tt.d)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestMatchWhere(t *testing.T) {
	where, args := MatchWhere(ledger.Match{InstallmentID: "m1", Date: core.NewDate(2025, 2, 10)}, SQLiteDialect)
	if where != " WHERE installment_id = ? AND date = ?" || len(args) != 2 {
		t.Errorf("installment match = %q %v", where, args)
	}

	where, args = MatchWhere(ledger.Match{
		UserID: "u1", Title: "Rent", Amount: decimal.RequireFromString("700000.00"),
		Date: core.NewDate(2025, 3, 10), Type: core.Expense,
	}, PostgresDialect)
	if where != " WHERE user_id = $1 AND title = $2 AND amount = $3 AND date = $4 AND type = $5" {
		t.Errorf("tuple match = %q", where)
	}
	if args[2] != "700000" {
		t.Errorf("amount arg = %v, want canonical 700000", args[2])
	}
}
