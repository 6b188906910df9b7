// Package google imports ledger transactions from a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensemanager/internal/core"
	applog "expensemanager/internal/log"
)

// DefaultSheetName is read when no sheet name is configured.
const DefaultSheetName = "Transactions"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
}

// New creates a Sheets client authenticated with service account credentials
// (see newSheetsService). Extra options are appended after the credentials,
// which lets tests point the client at a fake endpoint.
func New(ctx context.Context, spreadsheetID, sheetName string, logger *applog.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = DefaultSheetName
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentSheets)
	}

	svc, err := newSheetsService(ctx, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, logger: logger}, nil
}

// newSheetsService initializes a read-only Sheets service. Credentials come
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, in that order. When opts are given and no
// credentials are set, the options alone configure the service.
func newSheetsService(ctx context.Context, logger *applog.Logger, opts ...goption.ClientOption) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	var all []goption.ClientOption
	if credentialsJSON != nil {
		all = append(all,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	}
	all = append(all, opts...)

	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.DebugContext(ctx, "Google Sheets service created", "has_credentials", credentialsJSON != nil)
	return svc, nil
}

// ReadRows reads and parses every transaction row of the sheet.
func (c *Client) ReadRows(ctx context.Context) ([]Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:F", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows, skipped, err := parseRows(resp.Values)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "Read spreadsheet rows",
		applog.FieldCount, len(rows),
		"skipped", skipped,
		"range", rng)
	return rows, nil
}

// Recorder is what Import writes through.
type Recorder interface {
	EnsureCategory(ctx context.Context, name string, t core.CategoryType) (core.Category, error)
	EnsureAccount(ctx context.Context, name string) (core.Account, error)
	Record(ctx context.Context, t core.Transaction) (core.Transaction, error)
}

// Import writes rows as transactions, creating unknown categories and
// accounts by name. It stops at the first failure and returns how many rows
// were written.
func Import(ctx context.Context, rows []Row, rec Recorder) (int, error) {
	for i, r := range rows {
		acc, err := rec.EnsureAccount(ctx, r.Account)
		if err != nil {
			return i, fmt.Errorf("row %d: account %q: %w", r.Line, r.Account, err)
		}
		catType := core.Expense
		if r.Type == core.TransactionIncome {
			catType = core.Income
		}
		cat, err := rec.EnsureCategory(ctx, r.Category, catType)
		if err != nil {
			return i, fmt.Errorf("row %d: category %q: %w", r.Line, r.Category, err)
		}
		_, err = rec.Record(ctx, core.Transaction{
			Notes:         r.Description,
			CategoryID:    cat.ID,
			FromAccountID: acc.ID,
			Type:          r.Type,
			Amount:        r.Amount,
			CreatedOn:     r.Date,
		})
		if err != nil {
			return i, fmt.Errorf("row %d: %w", r.Line, err)
		}
	}
	return len(rows), nil
}
