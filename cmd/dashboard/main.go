package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"expensemanager/internal/accountlist"
	"expensemanager/internal/amqp"
	"expensemanager/internal/backend"
	"expensemanager/internal/cache"
	"expensemanager/internal/config"
	"expensemanager/internal/core"
	"expensemanager/internal/dashboard"
	apphttp "expensemanager/internal/http"
	applog "expensemanager/internal/log"
	"expensemanager/internal/navigation"
	"expensemanager/internal/services"
	"expensemanager/internal/worker"
)

const cacheCleanupInterval = 10 * time.Minute

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := cfg.Logger(applog.ComponentApp)
	// libraries logging through slog.Default share the handler
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Service stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()
	store := result.Store

	notifier := services.NewNotifier(logger.WithComponent(applog.ComponentServices))

	// AMQP is optional; without it changes stay in-process.
	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP))
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without broker", applog.FieldError, err)
		} else {
			defer client.Close()
			notifier.SetPublisher(client)
			consumer = client
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	formatter := services.NewFormatter(cfg.FormatCacheSize, cfg.FormatCacheTTL)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	caches.Register("format", formatter)

	currency := services.NewCurrencyService(store, cfg.DefaultCurrency, notifier, logger.WithComponent(applog.ComponentServices))
	transactions := services.NewTransactionService(store, notifier, logger.WithComponent(applog.ComponentServices))
	accounts := services.NewAccountService(store, notifier, logger.WithComponent(applog.ComponentServices))
	categories := services.NewCategoryService(currency.Currency(), transactions.Records(), formatter)
	amounts := services.NewAmountStateService(currency.Currency(), transactions.Records(), formatter)
	budgets := services.NewBudgetService(store, currency.Currency(), formatter, notifier, logger.WithComponent(applog.ComponentServices))
	recorder := services.NewRecorder(store, notifier, logger.WithComponent(applog.ComponentServices))

	queue := navigation.NewQueue()

	dash := dashboard.New(ctx, dashboard.Deps{
		Currency:             currency.Currency(),
		Transactions:         transactions.Records(),
		AmountState:          amounts.AmountState(),
		Accounts:             accounts.Accounts(),
		Categories:           categories,
		Budgets:              budgets.Budgets(),
		FormatAmount:         formatter.Format,
		AvailableCreditLimit: core.Account.AvailableCreditLimit,
		Navigator:            queue,
		Logger:               logger.WithComponent(applog.ComponentDashboard),
	})
	defer dash.Close()

	accountList := accountlist.New(ctx, accountlist.Deps{
		Currency:             currency.Currency(),
		Accounts:             accounts.Accounts(),
		FormatAmount:         formatter.Format,
		AvailableCreditLimit: core.Account.AvailableCreditLimit,
		Navigator:            queue,
		Logger:               logger.WithComponent(applog.ComponentAccountList),
	})
	defer accountList.Close()

	changes := worker.NewChangeWorker(notifier, consumer,
		worker.Config{RefreshInterval: cfg.RefreshInterval},
		logger.WithComponent(applog.ComponentWorker))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Dashboard:      dash,
		AccountList:    accountList,
		Currency:       currency,
		Recorder:       recorder,
		Navigation:     queue,
		CacheStats:     formatter.Stats,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	logger.Info("Starting expense dashboard",
		"port", cfg.Port,
		"backend", backendCfg.Type,
		"currency", cfg.DefaultCurrency,
		applog.FieldOperation, applog.OpStartup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return currency.Run(gctx) })
	g.Go(func() error { return transactions.Run(gctx) })
	g.Go(func() error { return accounts.Run(gctx) })
	g.Go(func() error { return amounts.Run(gctx) })
	g.Go(func() error { return budgets.Run(gctx) })
	g.Go(func() error { return changes.Run(gctx) })
	g.Go(func() error { return caches.Run(gctx, cacheCleanupInterval) })
	g.Go(func() error { return srv.Run(gctx, cfg.ShutdownTimeout) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
