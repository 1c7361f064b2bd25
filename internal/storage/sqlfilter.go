package storage

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

// Dialect adapts the shared filter builders to one SQL engine.
type Dialect struct {
	Placeholder func(n int) string
	Date        func(core.Date) any
	Amount      func(decimal.Decimal) any
}

// SQLiteDialect stores dates as YYYY-MM-DD text and amounts as decimal text.
var SQLiteDialect = Dialect{
	Placeholder: func(int) string { return "?" },
	Date:        func(d core.Date) any { return d.String() },
	Amount:      func(a decimal.Decimal) any { return a.String() },
}

// PostgresDialect uses numbered placeholders and native DATE values.
var PostgresDialect = Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Date:        func(d core.Date) any { return d.Time },
	Amount:      func(a decimal.Decimal) any { return a.String() },
}

// kindClause is the SQL spelling of Transaction.Kind.
var kindClause = map[core.EntryKind]string{
	core.InstallmentMasterKind: "(is_installment AND installment_id IS NULL)",
	core.InstallmentOccurrence: "(installment_id IS NOT NULL)",
	core.FixedOccurrence:       "(NOT is_installment AND fixed_item_id <> '')",
	core.PlainEntry:            "(NOT is_installment AND fixed_item_id = '')",
}

type whereBuilder struct {
	d     Dialect
	conds []string
	args  []any
}

func (w *whereBuilder) add(expr string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, expr+" "+w.d.Placeholder(len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// TransactionWhere renders q as a WHERE clause with its arguments.
func TransactionWhere(q ledger.Query, d Dialect) (string, []any) {
	w := &whereBuilder{d: d}
	if q.UserID != "" {
		w.add("user_id =", q.UserID)
	}
	if !q.From.IsZero() {
		w.add("date >=", d.Date(q.From))
	}
	if !q.To.IsZero() {
		w.add("date <=", d.Date(q.To))
	}
	if q.Type != "" {
		w.add("type =", string(q.Type))
	}
	if q.AssetID != "" {
		w.add("asset_id =", q.AssetID)
	}
	if q.ToAssetID != "" {
		w.add("to_asset_id =", q.ToAssetID)
	}
	if q.BudgetType != "" {
		w.add("budget_type =", string(q.BudgetType))
	}
	if q.MasterID != "" {
		w.add("installment_id =", q.MasterID)
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, 0, len(q.Kinds))
		for _, k := range q.Kinds {
			if c, ok := kindClause[k]; ok {
				kinds = append(kinds, c)
			}
		}
		if len(kinds) > 0 {
			w.conds = append(w.conds, "("+strings.Join(kinds, " OR ")+")")
		}
	}
	return w.String(), w.args
}

// MatchWhere renders the occurrence identity m as a WHERE clause.
func MatchWhere(m ledger.Match, d Dialect) (string, []any) {
	w := &whereBuilder{d: d}
	if m.InstallmentID != "" {
		w.add("installment_id =", m.InstallmentID)
		w.add("date =", d.Date(m.Date))
		return w.String(), w.args
	}
	w.add("user_id =", m.UserID)
	w.add("title =", m.Title)
	w.add("amount =", d.Amount(m.Amount))
	w.add("date =", d.Date(m.Date))
	w.add("type =", string(m.Type))
	return w.String(), w.args
}
