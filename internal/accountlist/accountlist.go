// Package accountlist holds the state of the account list screen.
package accountlist

import (
	"context"
	"sync"

	"expensemanager/internal/core"
	"expensemanager/internal/dashboard"
	applog "expensemanager/internal/log"
	"expensemanager/internal/navigation"
	"expensemanager/internal/stream"
)

// Status is the phase of the account list.
type Status string

const (
	Loading Status = "loading"
	Empty   Status = "empty"
	Success Status = "success"
)

// UiState is what the account list renders. Accounts is only populated in
// the Success phase.
type UiState struct {
	Status      Status                `json:"status"`
	Accounts    []core.AccountUiModel `json:"accounts,omitempty"`
	ShowReorder bool                  `json:"showReorder"`
}

// Deps are the collaborators of an Aggregator.
type Deps struct {
	Currency             stream.Source[core.Currency]
	Accounts             stream.Source[[]core.Account]
	FormatAmount         dashboard.AmountFormatter
	AvailableCreditLimit dashboard.CreditLimitCalculator
	Navigator            navigation.Navigator
	Logger               *applog.Logger
}

type Aggregator struct {
	deps  Deps
	log   *applog.StructuredLogger
	state *stream.State[UiState]

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func New(parent context.Context, deps Deps) *Aggregator {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentAccountList)
	}
	ctx, cancel := context.WithCancel(parent)
	a := &Aggregator{
		deps:   deps,
		log:    applog.NewStructuredLogger(deps.Logger),
		state:  stream.NewState(UiState{Status: Loading}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

// State is the observable account list state.
func (a *Aggregator) State() stream.Observable[UiState] {
	return a.state
}

// Close stops the aggregator and waits for it to exit.
func (a *Aggregator) Close() {
	a.once.Do(a.cancel)
	<-a.done
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.done)

	currencies := a.deps.Currency.Subscribe(ctx)
	accounts := a.deps.Accounts.Subscribe(ctx)

	var (
		currency stream.Latest[core.Currency]
		list     stream.Latest[[]core.Account]
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
		case l, ok := <-accounts:
			if !ok {
				accounts = nil
				continue
			}
			list.Store(l)
		}
		if currency.Ok && list.Ok {
			s := Build(list.Value, currency.Value, a.deps.FormatAmount, a.deps.AvailableCreditLimit)
			a.state.Set(s)
			a.log.LogSliceUpdated(ctx, applog.ComponentAccountList, "accounts", len(s.Accounts))
		}
	}
}

// Build renders the list state for accounts in the given currency.
func Build(accounts []core.Account, currency core.Currency, format dashboard.AmountFormatter, available dashboard.CreditLimitCalculator) UiState {
	if len(accounts) == 0 {
		return UiState{Status: Empty}
	}
	return UiState{
		Status:      Success,
		Accounts:    dashboard.FormatAccounts(accounts, currency, format, available),
		ShowReorder: len(accounts) > 1,
	}
}

// Command names accepted by Dispatch.
const (
	CmdClosePage   = "close-page"
	CmdOpenCreate  = "open-create"
	CmdOpenReorder = "open-reorder"
)

// ClosePage navigates back.
func (a *Aggregator) ClosePage() {
	a.deps.Navigator.Navigate(navigation.To(navigation.Back))
}

// OpenCreate opens the account editor; an empty id creates a new account.
func (a *Aggregator) OpenCreate(accountID string) {
	a.deps.Navigator.Navigate(navigation.WithID(navigation.AccountCreate, accountID))
}

func (a *Aggregator) OpenReorder() {
	a.deps.Navigator.Navigate(navigation.To(navigation.AccountReorder))
}

// Dispatch runs the named command and reports whether it was known.
func (a *Aggregator) Dispatch(command, id string) bool {
	switch command {
	case CmdClosePage:
		a.ClosePage()
	case CmdOpenCreate:
		a.OpenCreate(id)
	case CmdOpenReorder:
		a.OpenReorder()
	default:
		return false
	}
	return true
}
