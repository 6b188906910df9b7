package services

import (
	"context"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
	"expensemanager/internal/stream"
)

// AccountService publishes every account ordered by sequence.
type AccountService struct {
	store    ledger.AccountStore
	notifier *Notifier
	log      *applog.StructuredLogger
	accounts *stream.State[[]core.Account]
}

func NewAccountService(store ledger.AccountStore, notifier *Notifier, logger *applog.Logger) *AccountService {
	if logger == nil {
		logger = applog.Default(applog.ComponentServices)
	}
	return &AccountService{
		store:    store,
		notifier: notifier,
		log:      applog.NewStructuredLogger(logger),
		accounts: stream.NewEmptyState[[]core.Account](),
	}
}

func (s *AccountService) Accounts() stream.Observable[[]core.Account] {
	return s.accounts
}

// Run loads the accounts and reloads them when accounts or balances change.
func (s *AccountService) Run(ctx context.Context) error {
	changes := s.notifier.Watch(ctx, ledger.EntityAccount, ledger.EntityTransaction)
	s.reload(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			s.reload(ctx)
		}
	}
}

func (s *AccountService) reload(ctx context.Context) {
	list, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.log.LogError(ctx, "Failed to load accounts", err, applog.ComponentServices, applog.OpList, nil)
		return
	}
	ledger.SortBySequence(list)
	s.accounts.Set(list)
	s.log.LogSliceUpdated(ctx, applog.ComponentServices, "accounts", len(list))
}
