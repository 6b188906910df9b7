// Package dashboard fans the ledger's observable sources into the state
// slices rendered by the dashboard screen.
package dashboard

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
	applog "expensemanager/internal/log"
	"expensemanager/internal/navigation"
	"expensemanager/internal/stream"
)

const (
	// MaxTransactions caps the recent transaction slice.
	MaxTransactions = 10
	// MaxCategories caps both the chart data and the category breakdown.
	MaxCategories = 4
)

// AmountFormatter renders a raw amount in a currency.
type AmountFormatter func(amount decimal.Decimal, currency core.Currency) string

// CreditLimitCalculator returns the raw available credit of a CREDIT account.
type CreditLimitCalculator func(account core.Account) decimal.Decimal

// CategorySource produces the aggregate breakdown for one category type.
type CategorySource interface {
	ByCategoryType(t core.CategoryType) stream.Source[core.CategoryTransactionUiModel]
}

// Deps are the collaborators of an Aggregator. Every field is required
// except Logger.
type Deps struct {
	Currency     stream.Source[core.Currency]
	Transactions stream.Source[[]core.TransactionRecord]
	AmountState  stream.Source[core.AmountUiState]
	Accounts     stream.Source[[]core.Account]
	Categories   CategorySource
	Budgets      stream.Source[[]core.BudgetUiModel]

	FormatAmount         AmountFormatter
	AvailableCreditLimit CreditLimitCalculator
	Navigator            navigation.Navigator
	Logger               *applog.Logger
}

// Snapshot is every slice read at one instant.
type Snapshot struct {
	AmountSummary      core.AmountUiState              `json:"amountSummary"`
	RecentTransactions []core.TransactionUiItem        `json:"recentTransactions"`
	Accounts           []core.AccountUiModel           `json:"accounts"`
	CategoryBreakdown  core.CategoryTransactionUiModel `json:"categoryBreakdown"`
	Budgets            []core.BudgetUiModel            `json:"budgets"`
}

// Aggregator owns the dashboard state. All slice mutations happen on a
// single goroutine started by New and stopped by Close.
type Aggregator struct {
	deps Deps
	log  *applog.StructuredLogger

	amountSummary      *stream.State[core.AmountUiState]
	recentTransactions *stream.State[[]core.TransactionUiItem]
	accounts           *stream.State[[]core.AccountUiModel]
	categoryBreakdown  *stream.State[core.CategoryTransactionUiModel]
	budgets            *stream.State[[]core.BudgetUiModel]

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New builds the aggregator with empty slices and starts subscribing to
// every source. Subscriptions live until Close or until parent is done.
func New(parent context.Context, deps Deps) *Aggregator {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentDashboard)
	}
	ctx, cancel := context.WithCancel(parent)

	a := &Aggregator{
		deps:               deps,
		log:                applog.NewStructuredLogger(deps.Logger),
		amountSummary:      stream.NewState(core.AmountUiState{}),
		recentTransactions: stream.NewState([]core.TransactionUiItem{}),
		accounts:           stream.NewState([]core.AccountUiModel{}),
		categoryBreakdown:  stream.NewState(EmptyCategoryBreakdown()),
		budgets:            stream.NewState([]core.BudgetUiModel{}),
		cancel:             cancel,
		done:               make(chan struct{}),
	}

	go a.run(ctx)
	return a
}

// EmptyCategoryBreakdown is the category slice before any emission.
func EmptyCategoryBreakdown() core.CategoryTransactionUiModel {
	return core.CategoryTransactionUiModel{
		PieChartData:         []core.PieChartData{},
		TotalAmount:          core.Amount{Value: decimal.Zero},
		CategoryTransactions: []core.CategoryTransaction{},
	}
}

func (a *Aggregator) AmountSummary() stream.Observable[core.AmountUiState] {
	return a.amountSummary
}

func (a *Aggregator) RecentTransactions() stream.Observable[[]core.TransactionUiItem] {
	return a.recentTransactions
}

func (a *Aggregator) Accounts() stream.Observable[[]core.AccountUiModel] {
	return a.accounts
}

func (a *Aggregator) CategoryBreakdown() stream.Observable[core.CategoryTransactionUiModel] {
	return a.categoryBreakdown
}

func (a *Aggregator) Budgets() stream.Observable[[]core.BudgetUiModel] {
	return a.budgets
}

// Snapshot reads every slice.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		AmountSummary:      a.amountSummary.Value(),
		RecentTransactions: a.recentTransactions.Value(),
		Accounts:           a.accounts.Value(),
		CategoryBreakdown:  a.categoryBreakdown.Value(),
		Budgets:            a.budgets.Value(),
	}
}

// Close cancels every subscription and waits for the update goroutine.
// Slices keep their last values.
func (a *Aggregator) Close() {
	a.once.Do(a.cancel)
	<-a.done
}

// run is the single update queue. Each case handles one source; the two
// combine-latest pairs recompute from the latest value of their partner.
func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)

	currencies := a.deps.Currency.Subscribe(ctx)
	transactions := a.deps.Transactions.Subscribe(ctx)
	amounts := a.deps.AmountState.Subscribe(ctx)
	accounts := a.deps.Accounts.Subscribe(ctx)
	categories := a.deps.Categories.ByCategoryType(core.Expense).Subscribe(ctx)
	budgets := a.deps.Budgets.Subscribe(ctx)

	var (
		currency    stream.Latest[core.Currency]
		txRecords   stream.Latest[[]core.TransactionRecord]
		accountList stream.Latest[[]core.Account]
	)

	for {
		select {
		case <-ctx.Done():
			return

		case c, ok := <-currencies:
			if !ok {
				currencies = nil
				continue
			}
			currency.Store(c)
			if txRecords.Ok {
				a.updateTransactions(ctx, c, txRecords.Value)
			}
			if accountList.Ok {
				a.updateAccounts(ctx, c, accountList.Value)
			}

		case records, ok := <-transactions:
			if !ok {
				transactions = nil
				continue
			}
			txRecords.Store(records)
			if currency.Ok {
				a.updateTransactions(ctx, currency.Value, records)
			}

		case list, ok := <-accounts:
			if !ok {
				accounts = nil
				continue
			}
			accountList.Store(list)
			if currency.Ok {
				a.updateAccounts(ctx, currency.Value, list)
			}

		case s, ok := <-amounts:
			if !ok {
				amounts = nil
				continue
			}
			a.amountSummary.Set(s)

		case m, ok := <-categories:
			if !ok {
				categories = nil
				continue
			}
			a.categoryBreakdown.Set(TruncateBreakdown(m, MaxCategories))
			a.log.LogSliceUpdated(ctx, applog.ComponentDashboard, "category_breakdown", len(m.CategoryTransactions))

		case b, ok := <-budgets:
			if !ok {
				budgets = nil
				continue
			}
			a.budgets.Set(b)
		}
	}
}

func (a *Aggregator) updateTransactions(ctx context.Context, currency core.Currency, records []core.TransactionRecord) {
	items := FormatTransactions(records, currency, a.deps.FormatAmount, MaxTransactions)
	a.recentTransactions.Set(items)
	a.log.LogSliceUpdated(ctx, applog.ComponentDashboard, "recent_transactions", len(items))
}

func (a *Aggregator) updateAccounts(ctx context.Context, currency core.Currency, accounts []core.Account) {
	rows := FormatAccounts(accounts, currency, a.deps.FormatAmount, a.deps.AvailableCreditLimit)
	a.accounts.Set(rows)
	a.log.LogSliceUpdated(ctx, applog.ComponentDashboard, "accounts", len(rows))
}

// FormatTransactions renders the first max records, in upstream order, with
// the given currency.
func FormatTransactions(records []core.TransactionRecord, currency core.Currency, format AmountFormatter, max int) []core.TransactionUiItem {
	if len(records) > max {
		records = records[:max]
	}
	items := make([]core.TransactionUiItem, 0, len(records))
	for _, r := range records {
		items = append(items, r.ToTransactionUiItem(format(r.Amount, currency)))
	}
	return items
}

// FormatAccounts renders account rows. Only CREDIT accounts carry an
// available credit limit.
func FormatAccounts(accounts []core.Account, currency core.Currency, format AmountFormatter, available CreditLimitCalculator) []core.AccountUiModel {
	rows := make([]core.AccountUiModel, 0, len(accounts))
	for _, acc := range accounts {
		var limit *core.Amount
		if acc.Type == core.Credit {
			raw := available(acc)
			limit = &core.Amount{Value: raw, Display: format(raw, currency)}
		}
		rows = append(rows, acc.ToAccountUiModel(format(acc.Amount, currency), limit))
	}
	return rows
}

// TruncateBreakdown caps the chart data and the category list independently,
// keeping upstream order and the upstream total.
func TruncateBreakdown(m core.CategoryTransactionUiModel, max int) core.CategoryTransactionUiModel {
	out := m
	out.PieChartData = take(m.PieChartData, max)
	out.CategoryTransactions = take(m.CategoryTransactions, max)
	return out
}

func take[T any](in []T, n int) []T {
	if len(in) > n {
		in = in[:n]
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
