package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expensemanager/internal/core"
)

// Row is one parsed spreadsheet transaction.
type Row struct {
	Line        int
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Category    string
	Account     string
	Type        core.TransactionType
}

var headers = []string{"Date", "Description", "Amount", "Category", "Account", "Type"}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", time.RFC3339}

// parseRows converts a values matrix (as returned by the Sheets API) into
// rows. The first row must hold the headers; Description and Type are
// optional. Blank rows are skipped and counted.
func parseRows(values [][]interface{}) ([]Row, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	head := toStrings(values[0])
	cols := make(map[string]int, len(headers))
	var missing []string
	for _, h := range headers {
		cols[h] = indexOf(head, h)
		if cols[h] == -1 && h != "Description" && h != "Type" {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), head)
	}

	var (
		out     []Row
		skipped int
	)
	for i := 1; i < len(values); i++ {
		line := i + 1
		row := toStrings(values[i])
		if isBlank(row) {
			skipped++
			continue
		}
		date, err := parseDate(safeGet(row, cols["Date"]))
		if err != nil {
			return nil, skipped, fmt.Errorf("row %d: %w", line, err)
		}
		amount, negative, err := parseSheetAmount(safeGet(row, cols["Amount"]))
		if err != nil {
			return nil, skipped, fmt.Errorf("row %d: %w", line, err)
		}
		typ, err := parseType(safeGet(row, cols["Type"]), negative)
		if err != nil {
			return nil, skipped, fmt.Errorf("row %d: %w", line, err)
		}
		category := safeGet(row, cols["Category"])
		account := safeGet(row, cols["Account"])
		if category == "" || account == "" {
			return nil, skipped, fmt.Errorf("row %d: category and account are required", line)
		}
		out = append(out, Row{
			Line:        line,
			Date:        date,
			Description: safeGet(row, cols["Description"]),
			Amount:      amount,
			Category:    category,
			Account:     account,
			Type:        typ,
		})
	}
	return out, skipped, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseSheetAmount strips currency symbols and grouping and reports whether
// the cell was negative.
func parseSheetAmount(s string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-") || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	// "1,234.56": comma is grouping when a dot follows it
	if strings.Contains(clean, ".") {
		clean = strings.ReplaceAll(clean, ",", "")
	}
	amount, err := core.ParseAmount(clean)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("amount %q: %w", s, err)
	}
	return amount, negative, nil
}

func parseType(s string, negative bool) (core.TransactionType, error) {
	if s == "" {
		if negative {
			return core.TransactionExpense, nil
		}
		return core.TransactionIncome, nil
	}
	t := core.TransactionType(strings.ToUpper(s))
	if t != core.TransactionIncome && t != core.TransactionExpense {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidTransactionType, s)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
