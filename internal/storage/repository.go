package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"

	_ "modernc.org/sqlite"
)

const transactionColumns = `id, user_id, title, amount, date, type, category_id, asset_id, to_asset_id,
	budget_type, note, include_in_living_expense, fixed_item_id, is_installment,
	total_term, current_term, installment_day, installment_id, original_amount, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; SQLite locks the file anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                                      core.Transaction
		amount, date, typ, budget, createdAt   string
		living, isInstallment                  bool
		totalTerm, currentTerm, installmentDay sql.NullInt64
		installmentID, originalAmount          sql.NullString
	)
	err := s.Scan(&t.ID, &t.UserID, &t.Title, &amount, &date, &typ, &t.CategoryID, &t.AssetID, &t.ToAssetID,
		&budget, &t.Note, &living, &t.FixedItemID, &isInstallment,
		&totalTerm, &currentTerm, &installmentDay, &installmentID, &originalAmount, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount of %s: %w", t.ID, err)
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date of %s: %w", t.ID, err)
	}
	t.Type = core.TransactionType(typ)
	t.BudgetType = core.BudgetType(budget)
	t.IncludeInLivingExpense = living
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if isInstallment {
		in := &core.Installment{
			TotalTerm:   int(totalTerm.Int64),
			CurrentTerm: int(currentTerm.Int64),
			Day:         int(installmentDay.Int64),
			MasterID:    installmentID.String,
		}
		if originalAmount.Valid {
			if in.OriginalAmount, err = decimal.NewFromString(originalAmount.String); err != nil {
				return core.Transaction{}, fmt.Errorf("parse original amount of %s: %w", t.ID, err)
			}
		}
		t.Installment = in
	}
	return t, nil
}

// installmentArgs flattens the optional installment columns.
func installmentArgs(t core.Transaction) (total, current, day, masterID, original any) {
	in := t.Installment
	if in == nil {
		return nil, nil, nil, nil, nil
	}
	if in.MasterID != "" {
		masterID = in.MasterID
	}
	return in.TotalTerm, in.CurrentTerm, in.Day, masterID, in.OriginalAmount.String()
}

func (r *SQLiteRepository) QueryTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	where, args := TransactionWhere(q, SQLiteDialect)
	rows, err := r.db.QueryContext(ctx, "SELECT "+transactionColumns+" FROM transactions"+where+" ORDER BY date, created_at", args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	total, current, day, masterID, original := installmentArgs(t)

	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Amount.String(), t.Date.String(), string(t.Type),
		t.CategoryID, t.AssetID, t.ToAssetID, string(t.BudgetType), t.Note,
		t.IncludeInLivingExpense, t.FixedItemID, t.Installment != nil,
		total, current, day, masterID, original, t.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"kind", t.Kind(),
		"date", t.Date.String())
	return t, nil
}

func (r *SQLiteRepository) TransactionExists(ctx context.Context, m ledger.Match) (bool, error) {
	where, args := MatchWhere(m, SQLiteDialect)
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM transactions"+where+")", args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transaction exists: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) DeleteTransactionsByInstallmentID(ctx context.Context, masterID string) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE installment_id = ?", masterID)
	if err != nil {
		return 0, fmt.Errorf("delete occurrences: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("transaction", id)
	}
	return nil
}

func (r *SQLiteRepository) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT created_at FROM generation_markers WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get marker: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse marker %s: %w", key, err)
	}
	return ts, true, nil
}

func (r *SQLiteRepository) SetMarker(ctx context.Context, key string, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO generation_markers (key, created_at) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET created_at = excluded.created_at",
		key, ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListActiveFixedItems(ctx context.Context, userID string) ([]core.FixedItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, name, type, amount, day, category_id, asset_id, budget_type, is_active
		FROM fixed_items WHERE user_id = ? AND is_active ORDER BY day, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list fixed items: %w", err)
	}
	defer rows.Close()

	var out []core.FixedItem
	for rows.Next() {
		var (
			f                   core.FixedItem
			typ, amount, budget string
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &typ, &amount, &f.Day, &f.CategoryID, &f.AssetID, &budget, &f.IsActive); err != nil {
			return nil, fmt.Errorf("scan fixed item: %w", err)
		}
		if f.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of fixed item %s: %w", f.ID, err)
		}
		f.Type = core.ItemType(typ)
		f.BudgetType = core.BudgetType(budget)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := r.db.QueryRowContext(ctx, "SELECT id, user_id, name, type FROM categories WHERE id = ? AND user_id = ?", id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.ItemType(typ)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, user_id, name, type FROM categories WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c   core.Category
			typ string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.ItemType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetAsset(ctx context.Context, userID, id string) (core.Asset, error) {
	var (
		a    core.Asset
		kind string
	)
	err := r.db.QueryRowContext(ctx, "SELECT id, user_id, name, kind, settlement_day, billing_day FROM assets WHERE id = ? AND user_id = ?", id, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &kind, &a.SettlementDay, &a.BillingDay)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Asset{}, core.NotFound("asset", id)
	}
	if err != nil {
		return core.Asset{}, fmt.Errorf("get asset: %w", err)
	}
	a.Kind = core.AssetKind(kind)
	return a, nil
}

func (r *SQLiteRepository) ListUserSettings(ctx context.Context) ([]core.UserSettings, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id, month_start_day, monthly_budget FROM user_settings ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list user settings: %w", err)
	}
	defer rows.Close()

	var out []core.UserSettings
	for rows.Next() {
		us, err := scanUserSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetUserSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	row := r.db.QueryRowContext(ctx, "SELECT user_id, month_start_day, monthly_budget FROM user_settings WHERE user_id = ?", userID)
	us, err := scanUserSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserSettings{}, core.NotFound("user settings", userID)
	}
	return us, err
}

func scanUserSettings(s rowScanner) (core.UserSettings, error) {
	var (
		us     core.UserSettings
		budget string
	)
	if err := s.Scan(&us.UserID, &us.MonthStartDay, &budget); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return us, err
		}
		return us, fmt.Errorf("scan user settings: %w", err)
	}
	b, err := decimal.NewFromString(budget)
	if err != nil {
		return us, fmt.Errorf("parse budget of %s: %w", us.UserID, err)
	}
	us.MonthlyBudget = b
	return us, nil
}

func (r *SQLiteRepository) SaveFixedItem(ctx context.Context, f core.FixedItem) (core.FixedItem, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO fixed_items (id, user_id, name, type, amount, day, category_id, asset_id, budget_type, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type, amount = excluded.amount,
			day = excluded.day, category_id = excluded.category_id, asset_id = excluded.asset_id,
			budget_type = excluded.budget_type, is_active = excluded.is_active`,
		f.ID, f.UserID, f.Name, string(f.Type), f.Amount.String(), f.Day, f.CategoryID, f.AssetID, string(f.BudgetType), f.IsActive)
	if err != nil {
		return core.FixedItem{}, fmt.Errorf("save fixed item: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, user_id, name, type) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type`,
		c.ID, c.UserID, c.Name, string(c.Type))
	if err != nil {
		return fmt.Errorf("save category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveAsset(ctx context.Context, a core.Asset) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO assets (id, user_id, name, kind, settlement_day, billing_day) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, kind = excluded.kind,
			settlement_day = excluded.settlement_day, billing_day = excluded.billing_day`,
		a.ID, a.UserID, a.Name, string(a.Kind), a.SettlementDay, a.BillingDay)
	if err != nil {
		return fmt.Errorf("save asset: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveUserSettings(ctx context.Context, us core.UserSettings) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_settings (user_id, month_start_day, monthly_budget) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET month_start_day = excluded.month_start_day, monthly_budget = excluded.monthly_budget`,
		us.UserID, us.MonthStartDay, us.MonthlyBudget.String())
	if err != nil {
		return fmt.Errorf("save user settings: %w", err)
	}
	return nil
}
