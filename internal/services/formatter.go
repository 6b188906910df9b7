package services

import (
	"time"

	"github.com/shopspring/decimal"

	"expensemanager/internal/cache"
	"expensemanager/internal/core"
)

// Formatter renders amounts for display and caches the results. Rendering
// the same amount in the same currency is common: every currency change
// re-renders every visible amount.
type Formatter struct {
	cache *cache.LRUCache[string]
}

// NewFormatter creates a formatter holding up to size rendered amounts.
// Rendering is pure; ttl only bounds how long idle entries stay resident,
// and 0 keeps them until evicted.
func NewFormatter(size int, ttl time.Duration) *Formatter {
	return &Formatter{cache: cache.NewLRUCache[string](size, ttl)}
}

// Format renders amount in currency, e.g. "$1,234.56".
func (f *Formatter) Format(amount decimal.Decimal, currency core.Currency) string {
	key := currency.Code + "|" + amount.String()
	return f.cache.GetOrCompute(key, func() string {
		return core.FormatAmount(amount, currency)
	})
}

func (f *Formatter) Amount(amount decimal.Decimal, currency core.Currency) core.Amount {
	return core.Amount{Value: amount, Display: f.Format(amount, currency)}
}

func (f *Formatter) Stats() cache.Stats {
	return f.cache.Stats()
}

// CleanExpired drops entries older than the formatter's ttl.
func (f *Formatter) CleanExpired() int {
	return f.cache.CleanExpired()
}
