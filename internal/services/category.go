package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
	"expensemanager/internal/stream"
)

// CategoryService aggregates the filtered transactions per category.
type CategoryService struct {
	currency  stream.Source[core.Currency]
	records   stream.Source[[]core.TransactionRecord]
	formatter *Formatter
}

func NewCategoryService(currency stream.Source[core.Currency], records stream.Source[[]core.TransactionRecord], formatter *Formatter) *CategoryService {
	return &CategoryService{currency: currency, records: records, formatter: formatter}
}

// ByCategoryType returns the aggregate of categories of type t. Each
// subscription recomputes from the latest currency and records.
func (s *CategoryService) ByCategoryType(t core.CategoryType) stream.Source[core.CategoryTransactionUiModel] {
	return categorySource{s: s, t: t}
}

type categorySource struct {
	s *CategoryService
	t core.CategoryType
}

func (c categorySource) Subscribe(ctx context.Context) <-chan core.CategoryTransactionUiModel {
	combined := stream.CombineLatest(ctx, c.s.currency, c.s.records,
		func(cur core.Currency, records []core.TransactionRecord) core.CategoryTransactionUiModel {
			return AggregateByCategory(records, c.t, cur, c.s.formatter)
		})
	return combined.Subscribe(ctx)
}

// AggregateByCategory totals the transactions of type t per category,
// largest first. Percentages are of the grand total, rounded to two places.
func AggregateByCategory(records []core.TransactionRecord, t core.CategoryType, currency core.Currency, f *Formatter) core.CategoryTransactionUiModel {
	want := core.TransactionExpense
	if t == core.Income {
		want = core.TransactionIncome
	}

	type bucket struct {
		category core.Category
		total    decimal.Decimal
		records  []core.TransactionRecord
	}
	buckets := map[string]*bucket{}
	total := decimal.Zero
	for _, r := range records {
		if r.Type != want {
			continue
		}
		b, ok := buckets[r.CategoryID]
		if !ok {
			b = &bucket{category: r.Category}
			buckets[r.CategoryID] = b
		}
		b.total = b.total.Add(r.Amount)
		b.records = append(b.records, r)
		total = total.Add(r.Amount)
	}

	list := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].total.Cmp(list[j].total); c != 0 {
			return c > 0
		}
		return list[i].category.Name < list[j].category.Name
	})

	out := core.CategoryTransactionUiModel{
		PieChartData:         make([]core.PieChartData, 0, len(list)),
		TotalAmount:          f.Amount(total, currency),
		CategoryTransactions: make([]core.CategoryTransaction, 0, len(list)),
	}
	for _, b := range list {
		percent := 0.0
		if total.IsPositive() {
			percent = b.total.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		out.PieChartData = append(out.PieChartData, core.PieChartData{
			Name:  b.category.Name,
			Value: percent,
			Color: b.category.Icon.BackgroundColor,
		})
		out.CategoryTransactions = append(out.CategoryTransactions, core.CategoryTransaction{
			Category:     b.category,
			Amount:       f.Amount(b.total, currency),
			Percent:      percent,
			Transactions: b.records,
		})
	}
	return out
}
