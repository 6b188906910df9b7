package dashboard

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
	applog "expensemanager/internal/log"
	"expensemanager/internal/navigation"
	"expensemanager/internal/stream"
)

type fakeCategories struct {
	requested []core.CategoryType
	state     *stream.State[core.CategoryTransactionUiModel]
}

func (f *fakeCategories) ByCategoryType(t core.CategoryType) stream.Source[core.CategoryTransactionUiModel] {
	f.requested = append(f.requested, t)
	return f.state
}

type harness struct {
	currency     *stream.State[core.Currency]
	transactions *stream.State[[]core.TransactionRecord]
	amounts      *stream.State[core.AmountUiState]
	accounts     *stream.State[[]core.Account]
	categories   *fakeCategories
	budgets      *stream.State[[]core.BudgetUiModel]
	nav          *navigation.Queue
	agg          *Aggregator
}

func testFormat(amount decimal.Decimal, c core.Currency) string {
	return c.Code + " " + amount.StringFixed(2)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		currency:     stream.NewEmptyState[core.Currency](),
		transactions: stream.NewEmptyState[[]core.TransactionRecord](),
		amounts:      stream.NewEmptyState[core.AmountUiState](),
		accounts:     stream.NewEmptyState[[]core.Account](),
		categories:   &fakeCategories{state: stream.NewEmptyState[core.CategoryTransactionUiModel]()},
		budgets:      stream.NewEmptyState[[]core.BudgetUiModel](),
		nav:          navigation.NewQueue(),
	}
	h.agg = New(context.Background(), Deps{
		Currency:             h.currency,
		Transactions:         h.transactions,
		AmountState:          h.amounts,
		Accounts:             h.accounts,
		Categories:           h.categories,
		Budgets:              h.budgets,
		FormatAmount:         testFormat,
		AvailableCreditLimit: core.Account.AvailableCreditLimit,
		Navigator:            h.nav,
		Logger:               applog.Discard(),
	})
	t.Cleanup(h.agg.Close)
	return h
}

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

func records(n int) []core.TransactionRecord {
	out := make([]core.TransactionRecord, n)
	base := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = core.TransactionRecord{
			Transaction: core.Transaction{
				ID:        fmt.Sprintf("t%d", i),
				Type:      core.TransactionExpense,
				Amount:    decimal.NewFromInt(int64(i + 1)),
				CreatedOn: base.Add(-time.Duration(i) * time.Hour),
			},
			Category:    core.Category{Name: "Food"},
			FromAccount: core.Account{Name: "Wallet"},
		}
	}
	return out
}

func TestDefaultsBeforeAnyEmission(t *testing.T) {
	h := newHarness(t)
	s := h.agg.Snapshot()

	if !reflect.DeepEqual(s.AmountSummary, core.AmountUiState{}) {
		t.Errorf("amount summary not empty: %+v", s.AmountSummary)
	}
	if s.RecentTransactions == nil || len(s.RecentTransactions) != 0 {
		t.Errorf("expected empty transaction list, got %v", s.RecentTransactions)
	}
	if s.Accounts == nil || len(s.Accounts) != 0 {
		t.Errorf("expected empty account list, got %v", s.Accounts)
	}
	if len(s.CategoryBreakdown.PieChartData) != 0 || len(s.CategoryBreakdown.CategoryTransactions) != 0 || !s.CategoryBreakdown.TotalAmount.Value.IsZero() {
		t.Errorf("expected empty breakdown, got %+v", s.CategoryBreakdown)
	}
	if s.Budgets == nil || len(s.Budgets) != 0 {
		t.Errorf("expected empty budgets, got %v", s.Budgets)
	}
}

func TestCategoriesRequestedForExpense(t *testing.T) {
	h := newHarness(t)
	h.categories.state.Set(core.CategoryTransactionUiModel{PieChartData: []core.PieChartData{{Name: "x"}}})
	waitFor(t, h.agg.CategoryBreakdown(), func(m core.CategoryTransactionUiModel) bool { return len(m.PieChartData) == 1 })

	if len(h.categories.requested) != 1 || h.categories.requested[0] != core.Expense {
		t.Fatalf("expected a single EXPENSE request, got %v", h.categories.requested)
	}
}

func TestRecentTransactionsCappedInUpstreamOrder(t *testing.T) {
	h := newHarness(t)
	h.currency.Set(core.Currency{Code: "USD"})
	h.transactions.Set(records(15))

	got := waitFor(t, h.agg.RecentTransactions(), func(items []core.TransactionUiItem) bool { return len(items) > 0 })
	if len(got) != MaxTransactions {
		t.Fatalf("expected %d items, got %d", MaxTransactions, len(got))
	}
	for i, item := range got {
		if item.ID != fmt.Sprintf("t%d", i) {
			t.Fatalf("item %d out of order: %s", i, item.ID)
		}
		if want := fmt.Sprintf("USD %d.00", i+1); item.Amount.Display != want {
			t.Fatalf("item %d: display %q, want %q", i, item.Amount.Display, want)
		}
	}
}

func TestRecentTransactionsWaitForCurrency(t *testing.T) {
	h := newHarness(t)
	h.transactions.Set(records(3))

	time.Sleep(30 * time.Millisecond)
	if n := len(h.agg.RecentTransactions().Value()); n != 0 {
		t.Fatalf("expected no update before currency emits, got %d items", n)
	}

	h.currency.Set(core.Currency{Code: "USD"})
	waitFor(t, h.agg.RecentTransactions(), func(items []core.TransactionUiItem) bool { return len(items) == 3 })
}

func TestCurrencyChangeRerendersTransactions(t *testing.T) {
	h := newHarness(t)
	h.currency.Set(core.Currency{Code: "USD"})
	h.transactions.Set(records(12))
	waitFor(t, h.agg.RecentTransactions(), func(items []core.TransactionUiItem) bool {
		return len(items) == MaxTransactions && items[0].Amount.Display == "USD 1.00"
	})

	h.currency.Set(core.Currency{Code: "EUR"})
	got := waitFor(t, h.agg.RecentTransactions(), func(items []core.TransactionUiItem) bool {
		return len(items) > 0 && items[0].Amount.Display == "EUR 1.00"
	})
	if len(got) != MaxTransactions {
		t.Fatalf("cap changed after currency switch: %d", len(got))
	}
	for i, item := range got {
		if want := fmt.Sprintf("EUR %d.00", i+1); item.Amount.Display != want || item.ID != fmt.Sprintf("t%d", i) {
			t.Fatalf("item %d not re-rendered: %+v", i, item)
		}
	}
}

func TestAccountsCreditLimitOnlyForCredit(t *testing.T) {
	h := newHarness(t)
	h.currency.Set(core.Currency{Code: "USD"})
	h.accounts.Set([]core.Account{
		{ID: "cash", Name: "Cash", Type: core.Regular, Amount: decimal.NewFromInt(100), CreditLimit: decimal.NewFromInt(999)},
		{ID: "card", Name: "Card", Type: core.Credit, Amount: decimal.NewFromInt(-200), CreditLimit: decimal.NewFromInt(1000)},
	})

	rows := waitFor(t, h.agg.Accounts(), func(rows []core.AccountUiModel) bool { return len(rows) == 2 })
	if rows[0].AvailableCreditLimit != nil {
		t.Fatalf("regular account carries credit limit: %+v", rows[0].AvailableCreditLimit)
	}
	if rows[0].Amount.Display != "USD 100.00" {
		t.Fatalf("unexpected balance display %q", rows[0].Amount.Display)
	}
	card := rows[1]
	if card.AvailableCreditLimit == nil || card.AvailableCreditLimit.Display != "USD 800.00" {
		t.Fatalf("unexpected credit limit: %+v", card.AvailableCreditLimit)
	}
	if card.AmountTextColor != core.ColorNegative {
		t.Fatalf("expected negative colour for card in debt")
	}

	h.currency.Set(core.Currency{Code: "GBP"})
	rows = waitFor(t, h.agg.Accounts(), func(rows []core.AccountUiModel) bool {
		return len(rows) == 2 && rows[1].AvailableCreditLimit != nil && rows[1].AvailableCreditLimit.Display == "GBP 800.00"
	})
	if rows[0].AvailableCreditLimit != nil {
		t.Fatal("regular account gained a credit limit after currency change")
	}
}

func breakdown(n int) core.CategoryTransactionUiModel {
	m := core.CategoryTransactionUiModel{TotalAmount: core.Amount{Value: decimal.NewFromInt(100), Display: "100"}}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("c%d", i)
		m.PieChartData = append(m.PieChartData, core.PieChartData{Name: name, Value: float64(n - i)})
		m.CategoryTransactions = append(m.CategoryTransactions, core.CategoryTransaction{Category: core.Category{Name: name}})
	}
	return m
}

func TestCategoryBreakdownTruncatedToFour(t *testing.T) {
	h := newHarness(t)
	h.categories.state.Set(breakdown(7))

	got := waitFor(t, h.agg.CategoryBreakdown(), func(m core.CategoryTransactionUiModel) bool { return len(m.PieChartData) > 0 })
	if len(got.PieChartData) != MaxCategories || len(got.CategoryTransactions) != MaxCategories {
		t.Fatalf("expected %d entries each, got %d/%d", MaxCategories, len(got.PieChartData), len(got.CategoryTransactions))
	}
	for i := 0; i < MaxCategories; i++ {
		name := fmt.Sprintf("c%d", i)
		if got.PieChartData[i].Name != name || got.CategoryTransactions[i].Category.Name != name {
			t.Fatalf("entry %d out of order", i)
		}
	}
	if got.TotalAmount.Display != "100" {
		t.Fatalf("total not carried through: %+v", got.TotalAmount)
	}
}

func TestCategoryBreakdownSmallPassesThrough(t *testing.T) {
	for _, n := range []int{0, 3, 4} {
		in := breakdown(n)
		got := TruncateBreakdown(in, MaxCategories)
		if len(got.PieChartData) != n || len(got.CategoryTransactions) != n {
			t.Fatalf("n=%d: got %d/%d", n, len(got.PieChartData), len(got.CategoryTransactions))
		}
		for i := 0; i < n; i++ {
			if !reflect.DeepEqual(got.PieChartData[i], in.PieChartData[i]) || got.CategoryTransactions[i].Category != in.CategoryTransactions[i].Category {
				t.Fatalf("n=%d: entry %d changed", n, i)
			}
		}
	}
}

func TestPassThroughSlices(t *testing.T) {
	h := newHarness(t)
	summary := core.AmountUiState{Balance: core.Amount{Value: decimal.NewFromInt(5), Display: "5"}}
	h.amounts.Set(summary)
	budgets := []core.BudgetUiModel{{ID: "b1", Name: "Food", Percent: 40}}
	h.budgets.Set(budgets)

	got := waitFor(t, h.agg.AmountSummary(), func(s core.AmountUiState) bool { return s.Balance.Display == "5" })
	if !got.Balance.Value.Equal(summary.Balance.Value) {
		t.Fatalf("amount summary changed: %+v", got)
	}
	gotBudgets := waitFor(t, h.agg.Budgets(), func(b []core.BudgetUiModel) bool { return len(b) == 1 })
	if !reflect.DeepEqual(gotBudgets, budgets) {
		t.Fatalf("budgets changed: %+v", gotBudgets)
	}
}

func TestSlicesUpdateIndependently(t *testing.T) {
	h := newHarness(t)
	h.currency.Set(core.Currency{Code: "USD"})
	h.transactions.Set(records(2))
	waitFor(t, h.agg.RecentTransactions(), func(items []core.TransactionUiItem) bool { return len(items) == 2 })

	h.budgets.Set([]core.BudgetUiModel{{ID: "b"}})
	waitFor(t, h.agg.Budgets(), func(b []core.BudgetUiModel) bool { return len(b) == 1 })

	if n := len(h.agg.RecentTransactions().Value()); n != 2 {
		t.Fatalf("budget update cleared transactions: %d", n)
	}
}

func TestCommandsDispatchOnce(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		run  func()
		want navigation.Destination
	}{
		{h.agg.OpenSettings, navigation.To(navigation.Settings)},
		{h.agg.OpenAccountList, navigation.To(navigation.AccountList)},
		{func() { h.agg.OpenAccountCreate("") }, navigation.WithID(navigation.AccountCreate, "")},
		{func() { h.agg.OpenAccountCreate("a1") }, navigation.WithID(navigation.AccountCreate, "a1")},
		{h.agg.OpenBudgetList, navigation.To(navigation.BudgetList)},
		{func() { h.agg.OpenBudgetCreate("b1") }, navigation.WithID(navigation.BudgetDetails, "b1")},
		{h.agg.OpenTransactionList, navigation.To(navigation.TransactionList)},
		{func() { h.agg.OpenTransactionCreate("") }, navigation.WithID(navigation.TransactionCreate, "")},
	}
	for i, tt := range tests {
		tt.run()
		got := h.nav.Drain()
		if len(got) != 1 || got[0] != tt.want {
			t.Fatalf("case %d: got %+v, want exactly %+v", i, got, tt.want)
		}
	}

	h.agg.OpenSettings()
	h.agg.OpenSettings()
	if n := h.nav.Len(); n != 2 {
		t.Fatalf("duplicate calls should not be debounced, got %d requests", n)
	}
}

func TestDispatchByName(t *testing.T) {
	h := newHarness(t)
	if !h.agg.Dispatch(CmdOpenBudgetCreate, "b9") {
		t.Fatal("known command rejected")
	}
	if h.agg.Dispatch("open-nowhere", "") {
		t.Fatal("unknown command accepted")
	}
	got := h.nav.Drain()
	if len(got) != 1 || got[0] != navigation.WithID(navigation.BudgetDetails, "b9") {
		t.Fatalf("unexpected navigation: %+v", got)
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	h := newHarness(t)
	h.agg.Close()

	h.currency.Set(core.Currency{Code: "USD"})
	h.transactions.Set(records(1))
	time.Sleep(30 * time.Millisecond)
	if n := len(h.agg.RecentTransactions().Value()); n != 0 {
		t.Fatalf("update after Close: %d items", n)
	}
	h.agg.Close() // idempotent
}
