// Package storage is the SQLite ledger backend.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
)

const settingCurrency = "currency"

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
	now    func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it.
func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = applog.Default(applog.ComponentStorage)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite database ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, logger: logger, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, icon_name, icon_color, amount, credit_limit, sequence, created_on, updated_on
		FROM accounts ORDER BY sequence, name`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, icon_name, icon_color, amount, credit_limit, sequence, created_on, updated_on
		FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ledger.ErrNotFound
	}
	return a, err
}

func (r *SQLiteRepository) SaveAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	now := r.now()
	a.ID, a.CreatedOn = ledger.Stamp(a.ID, a.CreatedOn, now)
	a.UpdatedOn = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, type, icon_name, icon_color, amount, credit_limit, sequence, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, type = excluded.type,
			icon_name = excluded.icon_name, icon_color = excluded.icon_color,
			amount = excluded.amount, credit_limit = excluded.credit_limit,
			sequence = excluded.sequence, updated_on = excluded.updated_on`,
		a.ID, a.Name, string(a.Type), a.Icon.Name, a.Icon.BackgroundColor,
		a.Amount.String(), a.CreditLimit.String(), a.Sequence,
		a.CreatedOn.UnixNano(), a.UpdatedOn.UnixNano())
	if err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "accounts", id)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, icon_name, icon_color, created_on, updated_on
		FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c                core.Category
			typ              string
			created, updated int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &typ, &c.Icon.Name, &c.Icon.BackgroundColor, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(typ)
		c.CreatedOn, c.UpdatedOn = fromNanos(created), fromNanos(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	now := r.now()
	c.ID, c.CreatedOn = ledger.Stamp(c.ID, c.CreatedOn, now)
	c.UpdatedOn = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, type, icon_name, icon_color, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, type = excluded.type,
			icon_name = excluded.icon_name, icon_color = excluded.icon_color,
			updated_on = excluded.updated_on`,
		c.ID, c.Name, string(c.Type), c.Icon.Name, c.Icon.BackgroundColor,
		c.CreatedOn.UnixNano(), c.UpdatedOn.UnixNano())
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	return c, nil
}

// ListTransactions narrows by date in SQL and applies the rest of the
// filter in memory.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, notes, category_id, from_account_id, to_account_id, type, amount, created_on, updated_on FROM transactions`
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "created_on >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		where = append(where, "created_on <= ?")
		args = append(args, filter.To.UnixNano())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_on DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, notes, category_id, from_account_id, to_account_id, type, amount, created_on, updated_on
		FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return t, err
}

func (r *SQLiteRepository) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := r.now()
	t.ID, t.CreatedOn = ledger.Stamp(t.ID, t.CreatedOn, now)
	t.UpdatedOn = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, notes, category_id, from_account_id, to_account_id, type, amount, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			notes = excluded.notes, category_id = excluded.category_id,
			from_account_id = excluded.from_account_id, to_account_id = excluded.to_account_id,
			type = excluded.type, amount = excluded.amount,
			created_on = excluded.created_on, updated_on = excluded.updated_on`,
		t.ID, t.Notes, t.CategoryID, t.FromAccountID, t.ToAccountID, string(t.Type),
		t.Amount.String(), t.CreatedOn.UnixNano(), t.UpdatedOn.UnixNano())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	r.logger.Debug("Transaction saved", applog.FieldEntityID, t.ID, "type", t.Type)
	return t, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "transactions", id)
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, icon_name, icon_color, amount, selected_month,
			all_accounts, account_ids, all_categories, category_ids, created_on, updated_on
		FROM budgets ORDER BY selected_month DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b                  core.Budget
			amount             string
			accountIDs, catIDs string
			created, updated   int64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Icon.Name, &b.Icon.BackgroundColor, &amount, &b.SelectedMonth,
			&b.IsAllAccountsSelected, &accountIDs, &b.IsAllCategoriesSelected, &catIDs, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("budget %s amount: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(accountIDs), &b.AccountIDs); err != nil {
			return nil, fmt.Errorf("budget %s accounts: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(catIDs), &b.CategoryIDs); err != nil {
			return nil, fmt.Errorf("budget %s categories: %w", b.ID, err)
		}
		b.CreatedOn, b.UpdatedOn = fromNanos(created), fromNanos(updated)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	now := r.now()
	b.ID, b.CreatedOn = ledger.Stamp(b.ID, b.CreatedOn, now)
	b.UpdatedOn = now

	accountIDs, err := json.Marshal(orEmpty(b.AccountIDs))
	if err != nil {
		return core.Budget{}, fmt.Errorf("encode account ids: %w", err)
	}
	catIDs, err := json.Marshal(orEmpty(b.CategoryIDs))
	if err != nil {
		return core.Budget{}, fmt.Errorf("encode category ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, name, icon_name, icon_color, amount, selected_month,
			all_accounts, account_ids, all_categories, category_ids, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, icon_name = excluded.icon_name, icon_color = excluded.icon_color,
			amount = excluded.amount, selected_month = excluded.selected_month,
			all_accounts = excluded.all_accounts, account_ids = excluded.account_ids,
			all_categories = excluded.all_categories, category_ids = excluded.category_ids,
			updated_on = excluded.updated_on`,
		b.ID, b.Name, b.Icon.Name, b.Icon.BackgroundColor, b.Amount.String(), b.SelectedMonth,
		b.IsAllAccountsSelected, string(accountIDs), b.IsAllCategoriesSelected, string(catIDs),
		b.CreatedOn.UnixNano(), b.UpdatedOn.UnixNano())
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) CurrencyCode(ctx context.Context) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingCurrency).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read currency: %w", err)
	}
	return code, nil
}

func (r *SQLiteRepository) SetCurrencyCode(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingCurrency, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Errorf("write currency: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (core.Account, error) {
	var (
		a                   core.Account
		typ                 string
		amount, creditLimit string
		created, updated    int64
	)
	if err := s.Scan(&a.ID, &a.Name, &typ, &a.Icon.Name, &a.Icon.BackgroundColor,
		&amount, &creditLimit, &a.Sequence, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, err
		}
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	var err error
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Account{}, fmt.Errorf("account %s amount: %w", a.ID, err)
	}
	if a.CreditLimit, err = decimal.NewFromString(creditLimit); err != nil {
		return core.Account{}, fmt.Errorf("account %s credit limit: %w", a.ID, err)
	}
	a.Type = core.AccountType(typ)
	a.CreatedOn, a.UpdatedOn = fromNanos(created), fromNanos(updated)
	return a, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		typ, amount      string
		created, updated int64
	)
	if err := s.Scan(&t.ID, &t.Notes, &t.CategoryID, &t.FromAccountID, &t.ToAccountID,
		&typ, &amount, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	t.Type = core.TransactionType(typ)
	t.CreatedOn, t.UpdatedOn = fromNanos(created), fromNanos(updated)
	return t, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
