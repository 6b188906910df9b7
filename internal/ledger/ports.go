// Package ledger defines the storage ports of the expense ledger and the
// change notifications that flow between writers and observers.
package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"expensemanager/internal/core"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Entity names carried by a Change.
const (
	EntityAccount     = "account"
	EntityCategory    = "category"
	EntityTransaction = "transaction"
	EntityBudget      = "budget"
	EntitySettings    = "settings"
	// EntityRefresh asks every observer to reload without a specific record.
	EntityRefresh = "refresh"
)

// Change tells observers that an entity was written.
type Change struct {
	Entity string `json:"entity"`
	ID     string `json:"id,omitempty"`
}

// Affects reports whether observers of entity should reload.
func (c Change) Affects(entity string) bool {
	return c.Entity == EntityRefresh || c.Entity == entity
}

// Ports for outbound adapters.
type (
	AccountStore interface {
		ListAccounts(ctx context.Context) ([]core.Account, error)
		GetAccount(ctx context.Context, id string) (core.Account, error)
		SaveAccount(ctx context.Context, a core.Account) (core.Account, error)
		DeleteAccount(ctx context.Context, id string) error
	}

	CategoryStore interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		SaveCategory(ctx context.Context, c core.Category) (core.Category, error)
	}

	TransactionStore interface {
		// ListTransactions returns the matching transactions, newest first.
		ListTransactions(ctx context.Context, filter core.TransactionFilter) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	BudgetStore interface {
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		SaveBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	}

	// SettingsStore persists the currency preference. An empty code means
	// none was stored yet.
	SettingsStore interface {
		CurrencyCode(ctx context.Context) (string, error)
		SetCurrencyCode(ctx context.Context, code string) error
	}

	// Store is a complete ledger backend.
	Store interface {
		AccountStore
		CategoryStore
		TransactionStore
		BudgetStore
		SettingsStore
	}
)

// Stamp assigns an id to new records and maintains the timestamps. It
// returns the id and creation time to store.
func Stamp(id string, created time.Time, now time.Time) (string, time.Time) {
	if id == "" {
		id = uuid.NewString()
	}
	if created.IsZero() {
		created = now
	}
	return id, created
}

// JoinRecords joins transactions with their categories and accounts.
// Transactions whose category or source account is unknown keep zero-value
// joins; order is preserved.
func JoinRecords(txs []core.Transaction, accounts []core.Account, categories []core.Category) []core.TransactionRecord {
	accByID := make(map[string]core.Account, len(accounts))
	for _, a := range accounts {
		accByID[a.ID] = a
	}
	catByID := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		catByID[c.ID] = c
	}

	out := make([]core.TransactionRecord, 0, len(txs))
	for _, t := range txs {
		r := core.TransactionRecord{
			Transaction: t,
			Category:    catByID[t.CategoryID],
			FromAccount: accByID[t.FromAccountID],
		}
		if to, ok := accByID[t.ToAccountID]; ok && t.ToAccountID != "" {
			r.ToAccount = &to
		}
		out = append(out, r)
	}
	return out
}

// SortNewestFirst orders transactions by creation time, newest first, with
// the id as tie breaker.
func SortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedOn.Equal(txs[j].CreatedOn) {
			return txs[i].CreatedOn.After(txs[j].CreatedOn)
		}
		return txs[i].ID > txs[j].ID
	})
}

// SortBySequence orders accounts by their list position, then by name.
func SortBySequence(accounts []core.Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].Sequence != accounts[j].Sequence {
			return accounts[i].Sequence < accounts[j].Sequence
		}
		return accounts[i].Name < accounts[j].Name
	})
}
