package core

import "github.com/shopspring/decimal"

// Text colours for signed amounts.
const (
	ColorPositive = "#4CAF50"
	ColorNegative = "#E72B2B"
)

// Amount is a raw value plus its display string.
type Amount struct {
	Value   decimal.Decimal `json:"value"`
	Display string          `json:"display"`
}

// AmountUiState summarises income, expense and balance over the current filter.
type AmountUiState struct {
	Balance Amount `json:"balance"`
	Income  Amount `json:"income"`
	Expense Amount `json:"expense"`
}

// TransactionUiItem is a display row of the transaction list.
type TransactionUiItem struct {
	ID              string          `json:"id"`
	Notes           string          `json:"notes"`
	CategoryName    string          `json:"categoryName"`
	CategoryIcon    StoredIcon      `json:"categoryIcon"`
	Type            TransactionType `json:"type"`
	Amount          Amount          `json:"amount"`
	Date            string          `json:"date"`
	FromAccountName string          `json:"fromAccountName"`
	ToAccountName   string          `json:"toAccountName,omitempty"`
}

// AccountUiModel is a display row of an account. AvailableCreditLimit is set
// for CREDIT accounts only.
type AccountUiModel struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Type                 AccountType `json:"type"`
	Icon                 StoredIcon  `json:"icon"`
	Amount               Amount      `json:"amount"`
	AvailableCreditLimit *Amount     `json:"availableCreditLimit,omitempty"`
	AmountTextColor      string      `json:"amountTextColor"`
}

// PieChartData is one slice of the category chart; Value is a percentage.
type PieChartData struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// CategoryTransaction totals the transactions of a single category.
type CategoryTransaction struct {
	Category     Category            `json:"category"`
	Amount       Amount              `json:"amount"`
	Percent      float64             `json:"percent"`
	Transactions []TransactionRecord `json:"-"`
}

// CategoryTransactionUiModel is the per-category breakdown of one category type.
type CategoryTransactionUiModel struct {
	PieChartData         []PieChartData        `json:"pieChartData"`
	TotalAmount          Amount                `json:"totalAmount"`
	CategoryTransactions []CategoryTransaction `json:"categoryTransactions"`
}

// BudgetUiModel is the progress of one budget.
type BudgetUiModel struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Icon              StoredIcon `json:"icon"`
	Amount            Amount     `json:"amount"`
	TransactionAmount Amount     `json:"transactionAmount"`
	Percent           float64    `json:"percent"`
	ProgressBarColor  string     `json:"progressBarColor"`
}

// ToTransactionUiItem maps a record to a display row carrying the formatted amount.
func (r TransactionRecord) ToTransactionUiItem(formatted string) TransactionUiItem {
	item := TransactionUiItem{
		ID:              r.ID,
		Notes:           r.Notes,
		CategoryName:    r.Category.Name,
		CategoryIcon:    r.Category.Icon,
		Type:            r.Type,
		Amount:          Amount{Value: r.Amount, Display: formatted},
		Date:            r.CreatedOn.Format("02/01/2006"),
		FromAccountName: r.FromAccount.Name,
	}
	if r.ToAccount != nil {
		item.ToAccountName = r.ToAccount.Name
	}
	return item
}

// ToAccountUiModel maps an account to a display row. availableCreditLimit is
// nil for accounts that have none.
func (a Account) ToAccountUiModel(formatted string, availableCreditLimit *Amount) AccountUiModel {
	color := ColorPositive
	if a.Amount.IsNegative() {
		color = ColorNegative
	}
	return AccountUiModel{
		ID:                   a.ID,
		Name:                 a.Name,
		Type:                 a.Type,
		Icon:                 a.Icon,
		Amount:               Amount{Value: a.Amount, Display: formatted},
		AvailableCreditLimit: availableCreditLimit,
		AmountTextColor:      color,
	}
}

// ColorWarning marks a budget close to its limit.
const ColorWarning = "#FFA000"
