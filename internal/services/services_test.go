package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
	"expensemanager/internal/ledger"
	"expensemanager/internal/ledger/memory"
	applog "expensemanager/internal/log"
	"expensemanager/internal/stream"
)

var usd = core.Currency{Code: "USD"}

func waitFor[T any](t *testing.T, o stream.Observable[T], pred func(T) bool) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for v := range o.Subscribe(ctx) {
		if pred(v) {
			return v
		}
	}
	t.Fatalf("condition not met; last value: %+v", o.Value())
	var zero T
	return zero
}

func run(t *testing.T, fn func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fn(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	for _, a := range []core.Account{
		{ID: "bank", Name: "Bank", Type: core.Regular, Amount: decimal.NewFromInt(1000), Sequence: 0},
		{ID: "card", Name: "Card", Type: core.Credit, CreditLimit: decimal.NewFromInt(500), Sequence: 1},
	} {
		if _, err := s.SaveAccount(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range []core.Category{
		{ID: "food", Name: "Food", Type: core.Expense, Icon: core.StoredIcon{BackgroundColor: "#111111"}},
		{ID: "rent", Name: "Rent", Type: core.Expense, Icon: core.StoredIcon{BackgroundColor: "#222222"}},
		{ID: "salary", Name: "Salary", Type: core.Income},
	} {
		if _, err := s.SaveCategory(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func expense(cat string, amount int64, day int) core.Transaction {
	return core.Transaction{
		CategoryID: cat, FromAccountID: "bank", Type: core.TransactionExpense,
		Amount: decimal.NewFromInt(amount), CreatedOn: time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestFormatterCaches(t *testing.T) {
	f := NewFormatter(16, 0)
	a := f.Format(decimal.RequireFromString("1234.56"), usd)
	b := f.Format(decimal.RequireFromString("1234.56"), usd)
	if a != "$1,234.56" || a != b {
		t.Fatalf("unexpected format %q %q", a, b)
	}
	if s := f.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if f.Format(decimal.NewFromInt(1), core.Currency{Code: "EUR"}) == f.Format(decimal.NewFromInt(1), usd) {
		t.Fatal("currency not part of the cache key")
	}
}

func TestFormatterCleanExpired(t *testing.T) {
	f := NewFormatter(16, time.Nanosecond)
	f.Format(decimal.NewFromInt(5), usd)
	time.Sleep(time.Millisecond)
	if n := f.CleanExpired(); n != 1 {
		t.Fatalf("expected one expired entry, got %d", n)
	}
	if f.Stats().Size != 0 {
		t.Fatalf("cache not emptied: %+v", f.Stats())
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []ledger.Change
	err     error
}

func (p *recordingPublisher) PublishChange(_ context.Context, c ledger.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

func TestNotifierPublishesOnlyOnNotify(t *testing.T) {
	n := NewNotifier(applog.Discard())
	pub := &recordingPublisher{err: errors.New("broker down")}
	n.SetPublisher(pub)

	n.Notify(context.Background(), ledger.Change{Entity: ledger.EntityAccount, ID: "a"})
	n.Deliver(context.Background(), ledger.Change{Entity: ledger.EntityBudget, ID: "b"})

	if len(pub.changes) != 1 || pub.changes[0].ID != "a" {
		t.Fatalf("unexpected published changes %+v", pub.changes)
	}
	if got := n.Changes().Value(); got.ID != "b" {
		t.Fatalf("local delivery missing, latest is %+v", got)
	}
}

func TestNotifierWatchFilters(t *testing.T) {
	n := NewNotifier(applog.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := n.Watch(ctx, ledger.EntityAccount)

	n.Deliver(ctx, ledger.Change{Entity: ledger.EntityBudget})
	select {
	case <-ch:
		t.Fatal("budget change should be filtered out")
	case <-time.After(20 * time.Millisecond):
	}
	n.Deliver(ctx, ledger.Change{Entity: ledger.EntityRefresh})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("refresh should pass the filter")
	}
}

func TestCurrencyService(t *testing.T) {
	store := memory.New()
	n := NewNotifier(applog.Discard())
	svc := NewCurrencyService(store, "eur", n, applog.Discard())
	run(t, svc.Run)

	waitFor(t, svc.Currency(), func(c core.Currency) bool { return c.Code == "EUR" })

	if _, err := svc.SetCurrency(context.Background(), "XXX-NOPE"); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
	cur, err := svc.SetCurrency(context.Background(), "gbp")
	if err != nil || cur.Code != "GBP" {
		t.Fatalf("set currency: %+v %v", cur, err)
	}
	if code, _ := store.CurrencyCode(context.Background()); code != "GBP" {
		t.Fatalf("not persisted: %q", code)
	}
	waitFor(t, svc.Currency(), func(c core.Currency) bool { return c.Code == "GBP" })
}

func TestCurrencyServiceUsesStoredCode(t *testing.T) {
	store := memory.New()
	_ = store.SetCurrencyCode(context.Background(), "JPY")
	svc := NewCurrencyService(store, "USD", NewNotifier(applog.Discard()), applog.Discard())
	run(t, svc.Run)
	waitFor(t, svc.Currency(), func(c core.Currency) bool { return c.Code == "JPY" })
}

func TestTransactionServiceFilterAndChanges(t *testing.T) {
	store := seededStore(t)
	n := NewNotifier(applog.Discard())
	rec := NewRecorder(store, n, applog.Discard())
	svc := NewTransactionService(store, n, applog.Discard())
	run(t, svc.Run)

	waitFor(t, svc.Records(), func(r []core.TransactionRecord) bool { return len(r) == 0 })

	ctx := context.Background()
	for i, cat := range []string{"food", "rent", "food"} {
		if _, err := rec.Record(ctx, expense(cat, int64(10*(i+1)), i+1)); err != nil {
			t.Fatal(err)
		}
	}
	records := waitFor(t, svc.Records(), func(r []core.TransactionRecord) bool { return len(r) == 3 })
	if records[0].CreatedOn.Day() != 3 || records[0].Category.Name != "Food" || records[0].FromAccount.Name != "Bank" {
		t.Fatalf("records not joined newest first: %+v", records[0])
	}

	svc.SetFilter(core.TransactionFilter{CategoryIDs: []string{"rent"}})
	records = waitFor(t, svc.Records(), func(r []core.TransactionRecord) bool { return len(r) == 1 })
	if records[0].CategoryID != "rent" {
		t.Fatalf("filter not applied: %+v", records)
	}
}

func TestAccountServiceReloadsBalances(t *testing.T) {
	store := seededStore(t)
	n := NewNotifier(applog.Discard())
	rec := NewRecorder(store, n, applog.Discard())
	svc := NewAccountService(store, n, applog.Discard())
	run(t, svc.Run)

	list := waitFor(t, svc.Accounts(), func(a []core.Account) bool { return len(a) == 2 })
	if list[0].ID != "bank" || list[1].ID != "card" {
		t.Fatalf("not ordered by sequence: %+v", list)
	}

	if _, err := rec.Record(context.Background(), expense("food", 25, 1)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc.Accounts(), func(a []core.Account) bool {
		return len(a) == 2 && a[0].Amount.Equal(decimal.NewFromInt(975))
	})
}

func TestRecorderBalancesAndDelete(t *testing.T) {
	store := seededStore(t)
	rec := NewRecorder(store, NewNotifier(applog.Discard()), applog.Discard())
	ctx := context.Background()

	tr, err := rec.Record(ctx, core.Transaction{
		FromAccountID: "bank", ToAccountID: "card", Type: core.TransactionTransfer,
		Amount: decimal.NewFromInt(100), CreatedOn: time.Now(),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bank, _ := store.GetAccount(ctx, "bank")
	card, _ := store.GetAccount(ctx, "card")
	if !bank.Amount.Equal(decimal.NewFromInt(900)) || !card.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balances after transfer: bank=%s card=%s", bank.Amount, card.Amount)
	}

	if err := rec.Delete(ctx, tr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	bank, _ = store.GetAccount(ctx, "bank")
	if !bank.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance not reverted: %s", bank.Amount)
	}
	if err := rec.Delete(ctx, tr.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// flakyStore fails the failOn-th SaveAccount call. Zero never fails.
type flakyStore struct {
	*memory.Store
	failOn int
	saves  int
}

func (f *flakyStore) SaveAccount(ctx context.Context, a core.Account) (core.Account, error) {
	f.saves++
	if f.saves == f.failOn {
		return core.Account{}, errors.New("disk full")
	}
	return f.Store.SaveAccount(ctx, a)
}

func TestRecorderRollsBackOnBalanceFailure(t *testing.T) {
	ctx := context.Background()
	balances := func(t *testing.T, s ledger.Store) (decimal.Decimal, decimal.Decimal) {
		t.Helper()
		bank, _ := s.GetAccount(ctx, "bank")
		card, _ := s.GetAccount(ctx, "card")
		return bank.Amount, card.Amount
	}
	transfer := core.Transaction{
		FromAccountID: "bank", ToAccountID: "card", Type: core.TransactionTransfer,
		Amount: decimal.NewFromInt(100), CreatedOn: time.Now(),
	}

	// failing the second save leaves one account to restore
	for _, failOn := range []int{1, 2} {
		store := &flakyStore{Store: seededStore(t), failOn: failOn}
		notifier := NewNotifier(applog.Discard())
		rec := NewRecorder(store, notifier, applog.Discard())

		if _, err := rec.Record(ctx, transfer); err == nil {
			t.Fatalf("failOn=%d: expected balance update error", failOn)
		}
		txs, err := store.ListTransactions(ctx, core.TransactionFilter{})
		if err != nil || len(txs) != 0 {
			t.Fatalf("failOn=%d: transaction kept after failure: %d %v", failOn, len(txs), err)
		}
		bank, card := balances(t, store)
		if !bank.Equal(decimal.NewFromInt(1000)) || !card.IsZero() {
			t.Fatalf("failOn=%d: balances changed: bank=%s card=%s", failOn, bank, card)
		}
		if notifier.Changes().Value() != (ledger.Change{}) {
			t.Fatalf("failOn=%d: failed record must not notify", failOn)
		}
	}
}

func TestRecorderDeleteRestoresOnBalanceFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: seededStore(t)}
	rec := NewRecorder(store, NewNotifier(applog.Discard()), applog.Discard())

	tr, err := rec.Record(ctx, expense("food", 40, 3))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	store.failOn = store.saves + 1

	if err := rec.Delete(ctx, tr.ID); err == nil {
		t.Fatal("expected balance update error")
	}
	if _, err := store.GetTransaction(ctx, tr.ID); err != nil {
		t.Fatalf("transaction not restored: %v", err)
	}
	bank, _ := store.GetAccount(ctx, "bank")
	if !bank.Amount.Equal(decimal.NewFromInt(960)) {
		t.Fatalf("balance changed: %s", bank.Amount)
	}
}

func TestRecorderRejectsUnknownReferences(t *testing.T) {
	store := seededStore(t)
	rec := NewRecorder(store, NewNotifier(applog.Discard()), applog.Discard())
	ctx := context.Background()

	bad := expense("food", 1, 1)
	bad.FromAccountID = "nope"
	if _, err := rec.Record(ctx, bad); !errors.Is(err, core.ErrMissingAccount) {
		t.Fatalf("expected ErrMissingAccount, got %v", err)
	}
	if _, err := rec.Record(ctx, expense("nope", 1, 1)); !errors.Is(err, core.ErrMissingCategory) {
		t.Fatalf("expected ErrMissingCategory, got %v", err)
	}
	if _, err := rec.Record(ctx, expense("food", 0, 1)); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRecorderEnsure(t *testing.T) {
	store := seededStore(t)
	rec := NewRecorder(store, NewNotifier(applog.Discard()), applog.Discard())
	ctx := context.Background()

	a, err := rec.EnsureAccount(ctx, "bank")
	if err != nil || a.ID != "bank" {
		t.Fatalf("existing account not matched: %+v %v", a, err)
	}
	b, err := rec.EnsureAccount(ctx, "Wallet")
	if err != nil || b.ID == "" || b.Type != core.Regular {
		t.Fatalf("account not created: %+v %v", b, err)
	}
	c, err := rec.EnsureCategory(ctx, "Food", core.Income)
	if err != nil || c.ID == "food" || c.Type != core.Income {
		t.Fatalf("category type must be part of the match: %+v %v", c, err)
	}
	again, _ := rec.EnsureCategory(ctx, "food", core.Income)
	if again.ID != c.ID {
		t.Fatal("category created twice")
	}
}

func records(t *testing.T) []core.TransactionRecord {
	t.Helper()
	food := core.Category{ID: "food", Name: "Food", Type: core.Expense, Icon: core.StoredIcon{BackgroundColor: "#111111"}}
	rent := core.Category{ID: "rent", Name: "Rent", Type: core.Expense}
	salary := core.Category{ID: "salary", Name: "Salary", Type: core.Income}
	rec := func(c core.Category, typ core.TransactionType, amount string) core.TransactionRecord {
		return core.TransactionRecord{
			Transaction: core.Transaction{CategoryID: c.ID, Type: typ, Amount: decimal.RequireFromString(amount)},
			Category:    c,
		}
	}
	return []core.TransactionRecord{
		rec(food, core.TransactionExpense, "25"),
		rec(rent, core.TransactionExpense, "50"),
		rec(food, core.TransactionExpense, "25"),
		rec(salary, core.TransactionIncome, "300"),
		{Transaction: core.Transaction{Type: core.TransactionTransfer, Amount: decimal.NewFromInt(999)}},
	}
}

func TestAggregateByCategory(t *testing.T) {
	m := AggregateByCategory(records(t), core.Expense, usd, NewFormatter(16, 0))

	if len(m.CategoryTransactions) != 2 || len(m.PieChartData) != 2 {
		t.Fatalf("expected 2 categories, got %+v", m)
	}
	// Food and Rent both total 50; ties sort by name.
	if m.CategoryTransactions[0].Category.Name != "Food" || m.CategoryTransactions[1].Category.Name != "Rent" {
		t.Fatalf("unexpected order %+v", m.CategoryTransactions)
	}
	if m.TotalAmount.Display != "$100.00" {
		t.Fatalf("total %q", m.TotalAmount.Display)
	}
	if m.PieChartData[0].Value != 50 || m.CategoryTransactions[0].Percent != 50 {
		t.Fatalf("percent %v", m.PieChartData[0].Value)
	}
	if m.PieChartData[0].Color != "#111111" {
		t.Fatalf("colour %q", m.PieChartData[0].Color)
	}
	if len(m.CategoryTransactions[0].Transactions) != 2 {
		t.Fatal("transactions not grouped")
	}

	income := AggregateByCategory(records(t), core.Income, usd, NewFormatter(16, 0))
	if len(income.CategoryTransactions) != 1 || income.PieChartData[0].Value != 100 {
		t.Fatalf("income aggregate %+v", income)
	}
}

func TestCategoryServiceByCategoryType(t *testing.T) {
	currency := stream.NewEmptyState[core.Currency]()
	recs := stream.NewEmptyState[[]core.TransactionRecord]()
	svc := NewCategoryService(currency, recs, NewFormatter(16, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := svc.ByCategoryType(core.Expense).Subscribe(ctx)

	recs.Set(records(t))
	currency.Set(usd)
	select {
	case m := <-ch:
		if m.TotalAmount.Display != "$100.00" {
			t.Fatalf("unexpected total %q", m.TotalAmount.Display)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no aggregate emitted")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(records(t), usd, NewFormatter(16, 0))
	if s.Income.Display != "$300.00" || s.Expense.Display != "$100.00" || s.Balance.Display != "$200.00" {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestAmountStateService(t *testing.T) {
	currency := stream.NewEmptyState[core.Currency]()
	recs := stream.NewEmptyState[[]core.TransactionRecord]()
	svc := NewAmountStateService(currency, recs, NewFormatter(16, 0))
	run(t, svc.Run)

	recs.Set(records(t))
	currency.Set(usd)
	waitFor(t, svc.AmountState(), func(s core.AmountUiState) bool { return s.Balance.Display == "$200.00" })
}

func TestBudgetProgress(t *testing.T) {
	b := core.Budget{
		ID: "b", Name: "Groceries", Amount: decimal.NewFromInt(200), SelectedMonth: "2025-03",
		IsAllAccountsSelected: true, CategoryIDs: []string{"food"},
	}
	txs := []core.Transaction{
		expense("food", 100, 5),
		expense("food", 60, 6),
		expense("rent", 500, 7),
	}
	m := BudgetProgress(b, txs, usd, NewFormatter(16, 0))
	if m.Percent != 80 || m.ProgressBarColor != core.ColorWarning {
		t.Fatalf("unexpected progress %+v", m)
	}
	if m.TransactionAmount.Display != "$160.00" || m.Amount.Display != "$200.00" {
		t.Fatalf("unexpected amounts %+v", m)
	}

	if got := progressColor(10); got != core.ColorPositive {
		t.Fatalf("low usage colour %q", got)
	}
	if got := progressColor(120); got != core.ColorNegative {
		t.Fatalf("overspent colour %q", got)
	}
}

func TestBudgetServiceRecomputesOnTransactions(t *testing.T) {
	store := seededStore(t)
	n := NewNotifier(applog.Discard())
	if _, err := store.SaveBudget(context.Background(), core.Budget{
		ID: "b", Name: "Food", Amount: decimal.NewFromInt(100), SelectedMonth: "2025-03",
		IsAllAccountsSelected: true, IsAllCategoriesSelected: true,
	}); err != nil {
		t.Fatal(err)
	}
	currency := stream.NewState(usd)
	svc := NewBudgetService(store, currency, NewFormatter(16, 0), n, applog.Discard())
	run(t, svc.Run)

	waitFor(t, svc.Budgets(), func(b []core.BudgetUiModel) bool { return len(b) == 1 && b[0].Percent == 0 })

	rec := NewRecorder(store, n, applog.Discard())
	if _, err := rec.Record(context.Background(), expense("food", 40, 10)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc.Budgets(), func(b []core.BudgetUiModel) bool { return len(b) == 1 && b[0].Percent == 40 })
}
