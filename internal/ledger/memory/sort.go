package memory

import (
	"sort"

	"expensemanager/internal/core"
)

func sortCategories(cs []core.Category) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].ID < cs[j].ID
	})
}

// Budgets are listed newest month first.
func sortBudgets(bs []core.Budget) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].SelectedMonth != bs[j].SelectedMonth {
			return bs[i].SelectedMonth > bs[j].SelectedMonth
		}
		return bs[i].Name < bs[j].Name
	})
}
