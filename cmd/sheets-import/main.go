// Command sheets-import copies transactions from a Google spreadsheet into
// the configured ledger backend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"expensemanager/internal/amqp"
	"expensemanager/internal/backend"
	"expensemanager/internal/config"
	"expensemanager/internal/ledger"
	"expensemanager/internal/ledger/google"
	applog "expensemanager/internal/log"
	"expensemanager/internal/services"
)

func main() {
	_ = godotenv.Load()

	dryRun := flag.Bool("dry-run", false, "read and validate the sheet without writing")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.Logger(applog.ComponentSheets)
	// libraries logging through slog.Default share the handler
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if err := cfg.ValidateImport(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *dryRun); err != nil {
		logger.Error("Import failed", applog.FieldError, err, applog.FieldOperation, applog.OpImport)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger, dryRun bool) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	// Reading the sheet and opening the store are independent.
	var (
		rows   []google.Row
		result *backend.BackendResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client, err := google.New(gctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			return err
		}
		rows, err = client.ReadRows(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		result, err = backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(gctx, backendCfg)
		return err
	})
	err = g.Wait()
	if result != nil {
		defer result.Close()
	}
	if err != nil {
		return err
	}

	if dryRun {
		logger.InfoContext(ctx, "Dry run complete", applog.FieldCount, len(rows))
		return nil
	}

	// Rows are recorded locally; the running service hears about them through
	// one refresh message instead of one message per row.
	notifier := services.NewNotifier(logger.WithComponent(applog.ComponentServices))
	recorder := services.NewRecorder(result.Store, notifier, logger.WithComponent(applog.ComponentServices))

	imported, err := google.Import(ctx, rows, recorder)
	logger.InfoContext(ctx, "Imported transactions",
		applog.FieldCount, imported,
		"total", len(rows),
		applog.FieldOperation, applog.OpImport)
	if imported > 0 {
		publishRefresh(ctx, cfg, logger)
	}
	return err
}

func publishRefresh(ctx context.Context, cfg *config.Config, logger *applog.Logger) {
	if cfg.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP))
	if err != nil {
		logger.WarnContext(ctx, "Could not announce import", applog.FieldError, err)
		return
	}
	defer client.Close()
	if err := client.PublishChange(ctx, ledger.Change{Entity: ledger.EntityRefresh}); err != nil {
		logger.WarnContext(ctx, "Could not announce import", applog.FieldError, err)
	}
}
