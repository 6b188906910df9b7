package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Regular AccountType = "REGULAR"
	Credit  AccountType = "CREDIT"

	Income  CategoryType = "INCOME"
	Expense CategoryType = "EXPENSE"

	TransactionIncome   TransactionType = "INCOME"
	TransactionExpense  TransactionType = "EXPENSE"
	TransactionTransfer TransactionType = "TRANSFER"
)

type (
	AccountType     string
	CategoryType    string
	TransactionType string

	// StoredIcon is an icon name plus the background colour it is drawn on.
	StoredIcon struct {
		Name            string `json:"name"`
		BackgroundColor string `json:"backgroundColor"`
	}

	Account struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Type        AccountType     `json:"type"`
		Icon        StoredIcon      `json:"icon"`
		Amount      decimal.Decimal `json:"amount"`
		CreditLimit decimal.Decimal `json:"creditLimit"` // CREDIT accounts only
		Sequence    int             `json:"sequence"`
		CreatedOn   time.Time       `json:"createdOn"`
		UpdatedOn   time.Time       `json:"updatedOn"`
	}

	Category struct {
		ID        string       `json:"id"`
		Name      string       `json:"name"`
		Type      CategoryType `json:"type"`
		Icon      StoredIcon   `json:"icon"`
		CreatedOn time.Time    `json:"createdOn"`
		UpdatedOn time.Time    `json:"updatedOn"`
	}

	Transaction struct {
		ID            string          `json:"id"`
		Notes         string          `json:"notes"`
		CategoryID    string          `json:"categoryId"`
		FromAccountID string          `json:"fromAccountId"`
		ToAccountID   string          `json:"toAccountId,omitempty"` // transfers only
		Type          TransactionType `json:"type"`
		Amount        decimal.Decimal `json:"amount"`
		CreatedOn     time.Time       `json:"createdOn"`
		UpdatedOn     time.Time       `json:"updatedOn"`
	}

	// TransactionRecord is a transaction joined with its category and accounts.
	TransactionRecord struct {
		Transaction
		Category    Category
		FromAccount Account
		ToAccount   *Account
	}

	Budget struct {
		ID                      string          `json:"id"`
		Name                    string          `json:"name"`
		Icon                    StoredIcon      `json:"icon"`
		Amount                  decimal.Decimal `json:"amount"`
		SelectedMonth           string          `json:"selectedMonth"` // YYYY-MM
		IsAllAccountsSelected   bool            `json:"isAllAccountsSelected"`
		AccountIDs              []string        `json:"accountIds,omitempty"`
		IsAllCategoriesSelected bool            `json:"isAllCategoriesSelected"`
		CategoryIDs             []string        `json:"categoryIds,omitempty"`
		CreatedOn               time.Time       `json:"createdOn"`
		UpdatedOn               time.Time       `json:"updatedOn"`
	}

	// TransactionFilter selects transactions by date range, type, account and category.
	// Empty selections match everything.
	TransactionFilter struct {
		From        time.Time
		To          time.Time
		Types       []TransactionType
		AccountIDs  []string
		CategoryIDs []string
	}
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrEmptyName              = errors.New("empty name")
	ErrInvalidAccountType     = errors.New("invalid account type")
	ErrInvalidCategoryType    = errors.New("invalid category type")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrMissingCategory        = errors.New("missing category")
	ErrMissingAccount         = errors.New("missing account")
	ErrInvalidMonth           = errors.New("invalid month")
)

func (t AccountType) IsValid() bool {
	return t == Regular || t == Credit
}

func (t CategoryType) IsValid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionIncome, TransactionExpense, TransactionTransfer:
		return true
	}
	return false
}

// AvailableCreditLimit returns the credit still available on a CREDIT account.
// The balance of a card in debt is negative, so it is added to the limit.
func (a Account) AvailableCreditLimit() decimal.Decimal {
	return a.CreditLimit.Add(a.Amount)
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.IsValid() {
		return ErrInvalidAccountType
	}
	if a.Type == Credit && a.CreditLimit.IsNegative() {
		return errors.New("credit limit cannot be negative")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.IsValid() {
		return ErrInvalidCategoryType
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return ErrInvalidTransactionType
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.FromAccountID) == "" {
		return ErrMissingAccount
	}
	if t.Type == TransactionTransfer {
		if strings.TrimSpace(t.ToAccountID) == "" {
			return ErrMissingAccount
		}
		if t.ToAccountID == t.FromAccountID {
			return errors.New("transfer accounts must differ")
		}
	} else if strings.TrimSpace(t.CategoryID) == "" {
		return ErrMissingCategory
	}
	if len(t.Notes) > 200 {
		return errors.New("notes too long (max 200 characters)")
	}
	if t.CreatedOn.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := b.Month(); err != nil {
		return err
	}
	return nil
}

// Month returns the first instant of the budget's selected month in UTC.
func (b Budget) Month() (time.Time, error) {
	m, err := time.Parse("2006-01", b.SelectedMonth)
	if err != nil {
		return time.Time{}, ErrInvalidMonth
	}
	return m, nil
}

// Includes reports whether the transaction counts against the budget.
func (b Budget) Includes(t Transaction) bool {
	if t.Type != TransactionExpense {
		return false
	}
	if !b.IsAllAccountsSelected && !contains(b.AccountIDs, t.FromAccountID) {
		return false
	}
	if !b.IsAllCategoriesSelected && !contains(b.CategoryIDs, t.CategoryID) {
		return false
	}
	month, err := b.Month()
	if err != nil {
		return false
	}
	created := t.CreatedOn.UTC()
	return !created.Before(month) && created.Before(month.AddDate(0, 1, 0))
}

// Matches reports whether the transaction passes the filter.
func (f TransactionFilter) Matches(t Transaction) bool {
	if !f.From.IsZero() && t.CreatedOn.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.CreatedOn.After(f.To) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, typ := range f.Types {
			if typ == t.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.AccountIDs) > 0 && !contains(f.AccountIDs, t.FromAccountID) && !contains(f.AccountIDs, t.ToAccountID) {
		return false
	}
	if len(f.CategoryIDs) > 0 && !contains(f.CategoryIDs, t.CategoryID) {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// BalanceDeltas returns how the transaction moves each account balance.
func (t Transaction) BalanceDeltas() map[string]decimal.Decimal {
	switch t.Type {
	case TransactionIncome:
		return map[string]decimal.Decimal{t.FromAccountID: t.Amount}
	case TransactionExpense:
		return map[string]decimal.Decimal{t.FromAccountID: t.Amount.Neg()}
	case TransactionTransfer:
		return map[string]decimal.Decimal{
			t.FromAccountID: t.Amount.Neg(),
			t.ToAccountID:   t.Amount,
		}
	}
	return nil
}
