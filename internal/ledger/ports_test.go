package ledger

import (
	"testing"
	"time"

	"expensemanager/internal/core"
)

func TestJoinRecords(t *testing.T) {
	accounts := []core.Account{{ID: "a", Name: "Bank"}, {ID: "b", Name: "Card"}}
	cats := []core.Category{{ID: "food", Name: "Food"}}
	txs := []core.Transaction{
		{ID: "1", CategoryID: "food", FromAccountID: "a", Type: core.TransactionExpense},
		{ID: "2", FromAccountID: "a", ToAccountID: "b", Type: core.TransactionTransfer},
		{ID: "3", CategoryID: "gone", FromAccountID: "zz", Type: core.TransactionExpense},
	}
	got := JoinRecords(txs, accounts, cats)
	if len(got) != 3 || got[0].ID != "1" || got[2].ID != "3" {
		t.Fatalf("order not preserved: %+v", got)
	}
	if got[0].Category.Name != "Food" || got[0].FromAccount.Name != "Bank" || got[0].ToAccount != nil {
		t.Fatalf("bad join: %+v", got[0])
	}
	if got[1].ToAccount == nil || got[1].ToAccount.Name != "Card" {
		t.Fatalf("transfer target missing: %+v", got[1])
	}
	if got[2].Category.Name != "" {
		t.Fatalf("unknown category should stay empty: %+v", got[2].Category)
	}
}

func TestSortNewestFirst(t *testing.T) {
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "a", CreatedOn: day},
		{ID: "b", CreatedOn: day.Add(time.Hour)},
		{ID: "c", CreatedOn: day},
	}
	SortNewestFirst(txs)
	if txs[0].ID != "b" || txs[1].ID != "c" || txs[2].ID != "a" {
		t.Fatalf("unexpected order %v %v %v", txs[0].ID, txs[1].ID, txs[2].ID)
	}
}

func TestChangeAffects(t *testing.T) {
	if !(Change{Entity: EntityRefresh}).Affects(EntityAccount) {
		t.Fatal("refresh should affect every entity")
	}
	if (Change{Entity: EntityBudget}).Affects(EntityAccount) {
		t.Fatal("budget change should not affect accounts")
	}
}
