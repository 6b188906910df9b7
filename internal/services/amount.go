package services

import (
	"context"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
	"expensemanager/internal/stream"
)

// AmountStateService publishes income, expense and balance over the
// filtered transactions in the current currency.
type AmountStateService struct {
	currency  stream.Source[core.Currency]
	records   stream.Source[[]core.TransactionRecord]
	formatter *Formatter
	state     *stream.State[core.AmountUiState]
}

func NewAmountStateService(currency stream.Source[core.Currency], records stream.Source[[]core.TransactionRecord], formatter *Formatter) *AmountStateService {
	return &AmountStateService{
		currency:  currency,
		records:   records,
		formatter: formatter,
		state:     stream.NewEmptyState[core.AmountUiState](),
	}
}

func (s *AmountStateService) AmountState() stream.Observable[core.AmountUiState] {
	return s.state
}

func (s *AmountStateService) Run(ctx context.Context) error {
	currencies := s.currency.Subscribe(ctx)
	records := s.records.Subscribe(ctx)

	var (
		cur  stream.Latest[core.Currency]
		recs stream.Latest[[]core.TransactionRecord]
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-currencies:
			if !ok {
				return nil
			}
			cur.Store(c)
		case r, ok := <-records:
			if !ok {
				return nil
			}
			recs.Store(r)
		}
		if cur.Ok && recs.Ok {
			s.state.Set(Summarize(recs.Value, cur.Value, s.formatter))
		}
	}
}

// Summarize totals income and expense; the balance is their difference.
// Transfers move money between accounts and are left out.
func Summarize(records []core.TransactionRecord, currency core.Currency, f *Formatter) core.AmountUiState {
	income, expense := decimal.Zero, decimal.Zero
	for _, r := range records {
		switch r.Type {
		case core.TransactionIncome:
			income = income.Add(r.Amount)
		case core.TransactionExpense:
			expense = expense.Add(r.Amount)
		}
	}
	return core.AmountUiState{
		Balance: f.Amount(income.Sub(expense), currency),
		Income:  f.Amount(income, currency),
		Expense: f.Amount(expense, currency),
	}
}
