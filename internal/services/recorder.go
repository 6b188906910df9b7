package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
)

// Recorder writes ledger entries, keeps account balances in step with the
// transactions and notifies observers.
type Recorder struct {
	store    ledger.Store
	notifier *Notifier
	log      *applog.StructuredLogger

	// Balance updates are read-modify-write on the accounts.
	mu sync.Mutex
}

func NewRecorder(store ledger.Store, notifier *Notifier, logger *applog.Logger) *Recorder {
	if logger == nil {
		logger = applog.Default(applog.ComponentServices)
	}
	return &Recorder{store: store, notifier: notifier, log: applog.NewStructuredLogger(logger)}
}

// Record saves a new transaction and applies it to the account balances.
// When a balance cannot be updated the transaction is removed again.
func (r *Recorder) Record(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkReferences(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	saved, err := r.store.SaveTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	if err := r.applyBalances(ctx, saved, false); err != nil {
		if rbErr := r.store.DeleteTransaction(ctx, saved.ID); rbErr != nil {
			r.log.LogError(ctx, "Failed to roll back transaction", rbErr, applog.ComponentServices, applog.OpCreate,
				applog.NewFields().WithEntity(ledger.EntityTransaction, saved.ID))
		}
		return core.Transaction{}, err
	}
	r.notifier.Notify(ctx, ledger.Change{Entity: ledger.EntityTransaction, ID: saved.ID})
	return saved, nil
}

// Delete removes a transaction and reverts its effect on the balances.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := r.applyBalances(ctx, t, true); err != nil {
		if _, rbErr := r.store.SaveTransaction(ctx, t); rbErr != nil {
			r.log.LogError(ctx, "Failed to restore transaction", rbErr, applog.ComponentServices, applog.OpDelete,
				applog.NewFields().WithEntity(ledger.EntityTransaction, id))
		}
		return err
	}
	r.notifier.Notify(ctx, ledger.Change{Entity: ledger.EntityTransaction, ID: id})
	return nil
}

func (r *Recorder) checkReferences(ctx context.Context, t core.Transaction) error {
	for id := range t.BalanceDeltas() {
		if _, err := r.store.GetAccount(ctx, id); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("%w: %s", core.ErrMissingAccount, id)
			}
			return err
		}
	}
	if t.Type == core.TransactionTransfer {
		return nil
	}
	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	for _, c := range cats {
		if c.ID == t.CategoryID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", core.ErrMissingCategory, t.CategoryID)
}

// applyBalances adds the deltas of t to its accounts, or subtracts them when
// revert is set. Either every account is updated or none is.
func (r *Recorder) applyBalances(ctx context.Context, t core.Transaction, revert bool) error {
	deltas := t.BalanceDeltas()
	originals := make([]core.Account, 0, len(deltas))
	for id := range deltas {
		acc, err := r.store.GetAccount(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) && revert {
			continue // the account was removed since
		}
		if err != nil {
			return fmt.Errorf("get account %s: %w", id, err)
		}
		originals = append(originals, acc)
	}

	for i, acc := range originals {
		delta := deltas[acc.ID]
		if revert {
			delta = delta.Neg()
		}
		acc.Amount = acc.Amount.Add(delta)
		if _, err := r.store.SaveAccount(ctx, acc); err != nil {
			r.restoreAccounts(ctx, originals[:i])
			return fmt.Errorf("update balance of %s: %w", acc.ID, err)
		}
	}
	return nil
}

func (r *Recorder) restoreAccounts(ctx context.Context, accounts []core.Account) {
	for _, acc := range accounts {
		if _, err := r.store.SaveAccount(ctx, acc); err != nil {
			r.log.LogError(ctx, "Failed to restore account balance", err, applog.ComponentServices, applog.OpUpdate,
				applog.NewFields().WithEntity(ledger.EntityAccount, acc.ID))
		}
	}
}

// EnsureAccount returns the account named name, creating a REGULAR one if
// none exists. Names compare case-insensitively.
func (r *Recorder) EnsureAccount(ctx context.Context, name string) (core.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return core.Account{}, fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Name, strings.TrimSpace(name)) {
			return a, nil
		}
	}
	a, err := r.store.SaveAccount(ctx, core.Account{Name: strings.TrimSpace(name), Type: core.Regular, Sequence: len(accounts)})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	r.notifier.Notify(ctx, ledger.Change{Entity: ledger.EntityAccount, ID: a.ID})
	return a, nil
}

// EnsureCategory returns the category of type t named name, creating it if
// none exists.
func (r *Recorder) EnsureCategory(ctx context.Context, name string, t core.CategoryType) (core.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return core.Category{}, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range cats {
		if c.Type == t && strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	c, err := r.store.SaveCategory(ctx, core.Category{Name: strings.TrimSpace(name), Type: t})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	r.notifier.Notify(ctx, ledger.Change{Entity: ledger.EntityCategory, ID: c.ID})
	return c, nil
}
