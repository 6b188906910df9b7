package dashboard

import "expensemanager/internal/navigation"

// Commands issue exactly one navigation request per call. Rapid duplicate
// calls produce duplicate requests.

func (a *Aggregator) OpenSettings() {
	a.deps.Navigator.Navigate(navigation.To(navigation.Settings))
}

func (a *Aggregator) OpenAccountList() {
	a.deps.Navigator.Navigate(navigation.To(navigation.AccountList))
}

// OpenAccountCreate opens the account editor; an empty id creates a new account.
func (a *Aggregator) OpenAccountCreate(accountID string) {
	a.deps.Navigator.Navigate(navigation.WithID(navigation.AccountCreate, accountID))
}

func (a *Aggregator) OpenBudgetList() {
	a.deps.Navigator.Navigate(navigation.To(navigation.BudgetList))
}

// OpenBudgetCreate opens the budget details; an empty id creates a new budget.
func (a *Aggregator) OpenBudgetCreate(budgetID string) {
	a.deps.Navigator.Navigate(navigation.WithID(navigation.BudgetDetails, budgetID))
}

func (a *Aggregator) OpenTransactionList() {
	a.deps.Navigator.Navigate(navigation.To(navigation.TransactionList))
}

// OpenTransactionCreate opens the transaction editor; an empty id creates a new one.
func (a *Aggregator) OpenTransactionCreate(transactionID string) {
	a.deps.Navigator.Navigate(navigation.WithID(navigation.TransactionCreate, transactionID))
}

// Command names accepted by Dispatch.
const (
	CmdOpenSettings          = "open-settings"
	CmdOpenAccountList       = "open-account-list"
	CmdOpenAccountCreate     = "open-account-create"
	CmdOpenBudgetList        = "open-budget-list"
	CmdOpenBudgetCreate      = "open-budget-create"
	CmdOpenTransactionList   = "open-transaction-list"
	CmdOpenTransactionCreate = "open-transaction-create"
)

// Dispatch runs the named command with an optional id and reports whether
// the name was known.
func (a *Aggregator) Dispatch(command, id string) bool {
	switch command {
	case CmdOpenSettings:
		a.OpenSettings()
	case CmdOpenAccountList:
		a.OpenAccountList()
	case CmdOpenAccountCreate:
		a.OpenAccountCreate(id)
	case CmdOpenBudgetList:
		a.OpenBudgetList()
	case CmdOpenBudgetCreate:
		a.OpenBudgetCreate(id)
	case CmdOpenTransactionList:
		a.OpenTransactionList()
	case CmdOpenTransactionCreate:
		a.OpenTransactionCreate(id)
	default:
		return false
	}
	return true
}
