package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu           sync.Mutex
	accounts     map[string]core.Account
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	currency     string
	now          func() time.Time
}

func New() *Store {
	return &Store{
		accounts:     map[string]core.Account{},
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		budgets:      map[string]core.Budget{},
		now:          time.Now,
	}
}

// NewFromFiles seeds a store from seed_accounts.json, seed_categories.json,
// seed_transactions.json and seed_budgets.json under base. Missing files are
// skipped; without account or category seeds a small default set is used.
func NewFromFiles(base string) (*Store, error) {
	s := New()

	var (
		accounts     []core.Account
		categories   []core.Category
		transactions []core.Transaction
		budgets      []core.Budget
	)
	for name, dst := range map[string]any{
		"seed_accounts.json":     &accounts,
		"seed_categories.json":   &categories,
		"seed_transactions.json": &transactions,
		"seed_budgets.json":      &budgets,
	} {
		if err := readJSON(filepath.Join(base, name), dst); err != nil {
			return nil, err
		}
	}
	if len(accounts) == 0 {
		accounts = defaultAccounts()
	}
	if len(categories) == 0 {
		categories = defaultCategories()
	}

	ctx := context.Background()
	for _, a := range accounts {
		if _, err := s.SaveAccount(ctx, a); err != nil {
			return nil, err
		}
	}
	for _, c := range categories {
		if _, err := s.SaveCategory(ctx, c); err != nil {
			return nil, err
		}
	}
	for _, t := range transactions {
		if _, err := s.SaveTransaction(ctx, t); err != nil {
			return nil, err
		}
	}
	for _, b := range budgets {
		if _, err := s.SaveBudget(ctx, b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	ledger.SortBySequence(out)
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, ledger.ErrNotFound
	}
	return a, nil
}

// SaveAccount inserts or replaces the account. New accounts are appended to
// the end of the list.
func (s *Store) SaveAccount(_ context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[a.ID]; !exists && a.Sequence == 0 {
		a.Sequence = len(s.accounts)
	}
	now := s.now()
	a.ID, a.CreatedOn = ledger.Stamp(a.ID, a.CreatedOn, now)
	a.UpdatedOn = now
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sortCategories(out)
	return out, nil
}

func (s *Store) SaveCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c.ID, c.CreatedOn = ledger.Stamp(c.ID, c.CreatedOn, now)
	c.UpdatedOn = now
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) ListTransactions(_ context.Context, filter core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	ledger.SortNewestFirst(out)
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return t, nil
}

func (s *Store) SaveTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t.ID, t.CreatedOn = ledger.Stamp(t.ID, t.CreatedOn, now)
	t.UpdatedOn = now
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, b)
	}
	sortBudgets(out)
	return out, nil
}

func (s *Store) SaveBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	b.ID, b.CreatedOn = ledger.Stamp(b.ID, b.CreatedOn, now)
	b.UpdatedOn = now
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) CurrencyCode(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currency, nil
}

func (s *Store) SetCurrencyCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currency = strings.ToUpper(strings.TrimSpace(code))
	return nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func defaultAccounts() []core.Account {
	return []core.Account{
		{ID: "cash", Name: "Cash", Type: core.Regular, Icon: core.StoredIcon{Name: "ic_wallet", BackgroundColor: "#4CAF50"}},
	}
}

func defaultCategories() []core.Category {
	expense := []string{"Food", "Transport", "Housing", "Health", "Shopping", "Entertainment"}
	income := []string{"Salary", "Gifts"}
	out := make([]core.Category, 0, len(expense)+len(income))
	for _, n := range expense {
		out = append(out, core.Category{ID: strings.ToLower(n), Name: n, Type: core.Expense})
	}
	for _, n := range income {
		out = append(out, core.Category{ID: strings.ToLower(n), Name: n, Type: core.Income})
	}
	return out
}
