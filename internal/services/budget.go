package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
	"expensemanager/internal/stream"
)

// Percent thresholds of the budget progress colour.
const (
	budgetWarnPercent = 75
	budgetOverPercent = 100
)

// BudgetService publishes the progress of every budget.
type BudgetService struct {
	budgets      ledger.BudgetStore
	transactions ledger.TransactionStore
	currency     stream.Source[core.Currency]
	formatter    *Formatter
	notifier     *Notifier
	log          *applog.StructuredLogger
	state        *stream.State[[]core.BudgetUiModel]
}

func NewBudgetService(store ledger.Store, currency stream.Source[core.Currency], formatter *Formatter, notifier *Notifier, logger *applog.Logger) *BudgetService {
	if logger == nil {
		logger = applog.Default(applog.ComponentServices)
	}
	return &BudgetService{
		budgets:      store,
		transactions: store,
		currency:     currency,
		formatter:    formatter,
		notifier:     notifier,
		log:          applog.NewStructuredLogger(logger),
		state:        stream.NewEmptyState[[]core.BudgetUiModel](),
	}
}

func (s *BudgetService) Budgets() stream.Observable[[]core.BudgetUiModel] {
	return s.state
}

// Run recomputes on currency changes and on budget or transaction writes.
// Nothing is published before the first currency arrives.
func (s *BudgetService) Run(ctx context.Context) error {
	currencies := s.currency.Subscribe(ctx)
	changes := s.notifier.Watch(ctx, ledger.EntityBudget, ledger.EntityTransaction)

	var cur stream.Latest[core.Currency]
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-currencies:
			if !ok {
				return nil
			}
			cur.Store(c)
		case _, ok := <-changes:
			if !ok {
				return nil
			}
		}
		if cur.Ok {
			s.reload(ctx, cur.Value)
		}
	}
}

func (s *BudgetService) reload(ctx context.Context, currency core.Currency) {
	models, err := s.load(ctx, currency)
	if err != nil {
		s.log.LogError(ctx, "Failed to load budgets", err, applog.ComponentServices, applog.OpList, nil)
		return
	}
	s.state.Set(models)
	s.log.LogSliceUpdated(ctx, applog.ComponentServices, "budgets", len(models))
}

func (s *BudgetService) load(ctx context.Context, currency core.Currency) ([]core.BudgetUiModel, error) {
	budgets, err := s.budgets.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.BudgetUiModel, 0, len(budgets))
	for _, b := range budgets {
		month, err := b.Month()
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", b.ID, err)
		}
		txs, err := s.transactions.ListTransactions(ctx, core.TransactionFilter{
			From:  month,
			To:    month.AddDate(0, 1, 0).Add(-1),
			Types: []core.TransactionType{core.TransactionExpense},
		})
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, BudgetProgress(b, txs, currency, s.formatter))
	}
	return out, nil
}

// BudgetProgress computes how much of b the transactions have used.
func BudgetProgress(b core.Budget, txs []core.Transaction, currency core.Currency, f *Formatter) core.BudgetUiModel {
	spent := decimal.Zero
	for _, t := range txs {
		if b.Includes(t) {
			spent = spent.Add(t.Amount)
		}
	}
	percent := 0.0
	if b.Amount.IsPositive() {
		percent = spent.Div(b.Amount).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return core.BudgetUiModel{
		ID:                b.ID,
		Name:              b.Name,
		Icon:              b.Icon,
		Amount:            f.Amount(b.Amount, currency),
		TransactionAmount: f.Amount(spent, currency),
		Percent:           percent,
		ProgressBarColor:  progressColor(percent),
	}
}

func progressColor(percent float64) string {
	switch {
	case percent >= budgetOverPercent:
		return core.ColorNegative
	case percent >= budgetWarnPercent:
		return core.ColorWarning
	default:
		return core.ColorPositive
	}
}
