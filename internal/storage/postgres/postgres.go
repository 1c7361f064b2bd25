// Package postgres is the PostgreSQL ledger backend. It shares its query
// filters with the SQLite backend through storage.PostgresDialect.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/storage"
)

const transactionColumns = `id, user_id, title, amount::text, date, type, category_id, asset_id, to_asset_id,
	budget_type, note, include_in_living_expense, fixed_item_id, is_installment,
	total_term, current_term, installment_day, installment_id, original_amount::text, created_at`

const insertColumns = `id, user_id, title, amount, date, type, category_id, asset_id, to_asset_id,
	budget_type, note, include_in_living_expense, fixed_item_id, is_installment,
	total_term, current_term, installment_day, installment_id, original_amount, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Repository)(nil)

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	if databaseURL == "" {
		return nil, errors.New("missing POSTGRES_URL")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t                                      core.Transaction
		amount, typ, budget                    string
		date                                   time.Time
		totalTerm, currentTerm, installmentDay *int32
		installmentID, originalAmount          *string
		isInstallment                          bool
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &amount, &date, &typ, &t.CategoryID, &t.AssetID, &t.ToAssetID,
		&budget, &t.Note, &t.IncludeInLivingExpense, &t.FixedItemID, &isInstallment,
		&totalTerm, &currentTerm, &installmentDay, &installmentID, &originalAmount, &t.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount of %s: %w", t.ID, err)
	}
	t.Date = core.DateOf(date)
	t.Type = core.TransactionType(typ)
	t.BudgetType = core.BudgetType(budget)

	if isInstallment {
		in := &core.Installment{
			TotalTerm:   derefInt(totalTerm),
			CurrentTerm: derefInt(currentTerm),
			Day:         derefInt(installmentDay),
		}
		if installmentID != nil {
			in.MasterID = *installmentID
		}
		if originalAmount != nil {
			if in.OriginalAmount, err = decimal.NewFromString(*originalAmount); err != nil {
				return core.Transaction{}, fmt.Errorf("parse original amount of %s: %w", t.ID, err)
			}
		}
		t.Installment = in
	}
	return t, nil
}

func derefInt(v *int32) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

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

func (r *Repository) QueryTransactions(ctx context.Context, q ledger.Query) ([]core.Transaction, error) {
	where, args := storage.TransactionWhere(q, storage.PostgresDialect)
	rows, err := r.pool.Query(ctx, "SELECT "+transactionColumns+" FROM transactions"+where+" ORDER BY date, created_at", args...)
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

func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	total, current, day, masterID, original := installmentArgs(t)

	_, err := r.pool.Exec(ctx, `INSERT INTO transactions (`+insertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		t.ID, t.UserID, t.Title, t.Amount.String(), t.Date.Time, string(t.Type),
		t.CategoryID, t.AssetID, t.ToAssetID, string(t.BudgetType), t.Note,
		t.IncludeInLivingExpense, t.FixedItemID, t.Installment != nil,
		total, current, day, masterID, original, t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to Postgres",
		"id", t.ID,
		"kind", t.Kind(),
		"date", t.Date.String())
	return t, nil
}

func (r *Repository) TransactionExists(ctx context.Context, m ledger.Match) (bool, error) {
	where, args := storage.MatchWhere(m, storage.PostgresDialect)
	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM transactions"+where+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check transaction exists: %w", err)
	}
	return exists, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) DeleteTransactionsByInstallmentID(ctx context.Context, masterID string) (int, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM transactions WHERE installment_id = $1", masterID)
	if err != nil {
		return 0, fmt.Errorf("delete occurrences: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("transaction", id)
	}
	return nil
}

func (r *Repository) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	var ts time.Time
	err := r.pool.QueryRow(ctx, "SELECT created_at FROM generation_markers WHERE key = $1", key).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get marker: %w", err)
	}
	return ts, true, nil
}

func (r *Repository) SetMarker(ctx context.Context, key string, ts time.Time) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO generation_markers (key, created_at) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET created_at = EXCLUDED.created_at",
		key, ts.UTC())
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveFixedItems(ctx context.Context, userID string) ([]core.FixedItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, name, type, amount::text, day, category_id, asset_id, budget_type, is_active
		FROM fixed_items WHERE user_id = $1 AND is_active ORDER BY day, name`, userID)
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

func (r *Repository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := r.pool.QueryRow(ctx, "SELECT id, user_id, name, type FROM categories WHERE id = $1 AND user_id = $2", id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &typ)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.NotFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.ItemType(typ)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, user_id, name, type FROM categories WHERE user_id = $1 ORDER BY name", userID)
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

func (r *Repository) GetAsset(ctx context.Context, userID, id string) (core.Asset, error) {
	var (
		a    core.Asset
		kind string
	)
	err := r.pool.QueryRow(ctx, "SELECT id, user_id, name, kind, settlement_day, billing_day FROM assets WHERE id = $1 AND user_id = $2", id, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &kind, &a.SettlementDay, &a.BillingDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Asset{}, core.NotFound("asset", id)
	}
	if err != nil {
		return core.Asset{}, fmt.Errorf("get asset: %w", err)
	}
	a.Kind = core.AssetKind(kind)
	return a, nil
}

func (r *Repository) ListUserSettings(ctx context.Context) ([]core.UserSettings, error) {
	rows, err := r.pool.Query(ctx, "SELECT user_id, month_start_day, monthly_budget::text FROM user_settings ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list user settings: %w", err)
	}
	defer rows.Close()

	var out []core.UserSettings
	for rows.Next() {
		us, err := scanUserSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user settings: %w", err)
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (r *Repository) GetUserSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	us, err := scanUserSettings(r.pool.QueryRow(ctx,
		"SELECT user_id, month_start_day, monthly_budget::text FROM user_settings WHERE user_id = $1", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.UserSettings{}, core.NotFound("user settings", userID)
	}
	if err != nil {
		return core.UserSettings{}, fmt.Errorf("get user settings: %w", err)
	}
	return us, nil
}

func scanUserSettings(row pgx.Row) (core.UserSettings, error) {
	var (
		us     core.UserSettings
		budget string
	)
	if err := row.Scan(&us.UserID, &us.MonthStartDay, &budget); err != nil {
		return us, err
	}
	b, err := decimal.NewFromString(budget)
	if err != nil {
		return us, fmt.Errorf("parse budget of %s: %w", us.UserID, err)
	}
	us.MonthlyBudget = b
	return us, nil
}

func (r *Repository) SaveFixedItem(ctx context.Context, f core.FixedItem) (core.FixedItem, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO fixed_items (id, user_id, name, type, amount, day, category_id, asset_id, budget_type, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, amount = EXCLUDED.amount,
			day = EXCLUDED.day, category_id = EXCLUDED.category_id, asset_id = EXCLUDED.asset_id,
			budget_type = EXCLUDED.budget_type, is_active = EXCLUDED.is_active`,
		f.ID, f.UserID, f.Name, string(f.Type), f.Amount.String(), f.Day, f.CategoryID, f.AssetID, string(f.BudgetType), f.IsActive)
	if err != nil {
		return core.FixedItem{}, fmt.Errorf("save fixed item: %w", err)
	}
	return f, nil
}

func (r *Repository) SaveCategory(ctx context.Context, c core.Category) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO categories (id, user_id, name, type) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type`,
		c.ID, c.UserID, c.Name, string(c.Type))
	if err != nil {
		return fmt.Errorf("save category: %w", err)
	}
	return nil
}

func (r *Repository) SaveAsset(ctx context.Context, a core.Asset) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO assets (id, user_id, name, kind, settlement_day, billing_day) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind,
			settlement_day = EXCLUDED.settlement_day, billing_day = EXCLUDED.billing_day`,
		a.ID, a.UserID, a.Name, string(a.Kind), a.SettlementDay, a.BillingDay)
	if err != nil {
		return fmt.Errorf("save asset: %w", err)
	}
	return nil
}

func (r *Repository) SaveUserSettings(ctx context.Context, us core.UserSettings) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_settings (user_id, month_start_day, monthly_budget) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET month_start_day = EXCLUDED.month_start_day, monthly_budget = EXCLUDED.monthly_budget`,
		us.UserID, us.MonthStartDay, us.MonthlyBudget.String())
	if err != nil {
		return fmt.Errorf("save user settings: %w", err)
	}
	return nil
}
