package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
	"expensemanager/internal/stream"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// CurrencyService publishes the display currency preference.
type CurrencyService struct {
	store    ledger.SettingsStore
	fallback core.Currency
	notifier *Notifier
	log      *applog.StructuredLogger
	current  *stream.State[core.Currency]
}

// NewCurrencyService publishes fallback until a stored preference is read.
func NewCurrencyService(store ledger.SettingsStore, fallback string, notifier *Notifier, logger *applog.Logger) *CurrencyService {
	if logger == nil {
		logger = applog.Default(applog.ComponentServices)
	}
	return &CurrencyService{
		store:    store,
		fallback: core.NewCurrency(fallback),
		notifier: notifier,
		log:      applog.NewStructuredLogger(logger),
		current:  stream.NewEmptyState[core.Currency](),
	}
}

func (s *CurrencyService) Currency() stream.Observable[core.Currency] {
	return s.current
}

// Run publishes the stored currency and reloads it whenever settings change.
func (s *CurrencyService) Run(ctx context.Context) error {
	changes := s.notifier.Watch(ctx, ledger.EntitySettings)
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

func (s *CurrencyService) reload(ctx context.Context) {
	code, err := s.store.CurrencyCode(ctx)
	if err != nil {
		s.log.LogError(ctx, "Failed to load currency", err, applog.ComponentServices, applog.OpRead, nil)
		if !s.current.Has() {
			s.current.Set(s.fallback)
		}
		return
	}
	cur := s.fallback
	if code != "" {
		cur = core.NewCurrency(code)
	}
	if s.current.Has() && s.current.Value() == cur {
		return
	}
	s.current.Set(cur)
}

// SetCurrency stores and publishes a new display currency.
func (s *CurrencyService) SetCurrency(ctx context.Context, code string) (core.Currency, error) {
	requested := core.Currency{Code: strings.ToUpper(strings.TrimSpace(code))}
	if !requested.IsKnown() {
		return core.Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	cur := requested
	if err := s.store.SetCurrencyCode(ctx, cur.Code); err != nil {
		return core.Currency{}, fmt.Errorf("store currency: %w", err)
	}
	s.current.Set(cur)
	s.notifier.Notify(ctx, ledger.Change{Entity: ledger.EntitySettings})
	return cur, nil
}
