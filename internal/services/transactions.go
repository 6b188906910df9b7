package services

import (
	"context"
	"fmt"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
	"expensemanager/internal/stream"
)

// TransactionService publishes the joined transactions matching the current
// filter, newest first.
type TransactionService struct {
	transactions ledger.TransactionStore
	accounts     ledger.AccountStore
	categories   ledger.CategoryStore
	notifier     *Notifier
	log          *applog.StructuredLogger

	filter  *stream.State[core.TransactionFilter]
	records *stream.State[[]core.TransactionRecord]
}

func NewTransactionService(store ledger.Store, notifier *Notifier, logger *applog.Logger) *TransactionService {
	if logger == nil {
		logger = applog.Default(applog.ComponentServices)
	}
	return &TransactionService{
		transactions: store,
		accounts:     store,
		categories:   store,
		notifier:     notifier,
		log:          applog.NewStructuredLogger(logger),
		filter:       stream.NewState(core.TransactionFilter{}),
		records:      stream.NewEmptyState[[]core.TransactionRecord](),
	}
}

func (s *TransactionService) Records() stream.Observable[[]core.TransactionRecord] {
	return s.records
}

func (s *TransactionService) Filter() core.TransactionFilter {
	return s.filter.Value()
}

// SetFilter replaces the filter; the records are reloaded by Run.
func (s *TransactionService) SetFilter(f core.TransactionFilter) {
	s.filter.Set(f)
}

// Run reloads the records on every filter change and every ledger change
// that can alter them.
func (s *TransactionService) Run(ctx context.Context) error {
	filters := s.filter.Subscribe(ctx)
	changes := s.notifier.Watch(ctx, ledger.EntityTransaction, ledger.EntityAccount, ledger.EntityCategory)
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-filters:
			if !ok {
				return nil
			}
			s.reload(ctx, f)
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			s.reload(ctx, s.filter.Value())
		}
	}
}

func (s *TransactionService) reload(ctx context.Context, f core.TransactionFilter) {
	records, err := s.load(ctx, f)
	if err != nil {
		s.log.LogError(ctx, "Failed to load transactions", err, applog.ComponentServices, applog.OpList, nil)
		return
	}
	s.records.Set(records)
	s.log.LogSliceUpdated(ctx, applog.ComponentServices, "transactions", len(records))
}

func (s *TransactionService) load(ctx context.Context, f core.TransactionFilter) ([]core.TransactionRecord, error) {
	txs, err := s.transactions.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return ledger.JoinRecords(txs, accounts, categories), nil
}
