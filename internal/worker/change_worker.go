// Package worker applies change notifications that arrive from outside the
// process and triggers periodic refreshes of the observable ledger state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"expensemanager/internal/amqp"
	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
)

// Deliverer fans a change out to local subscribers only. Messages consumed
// from the broker must not be published again.
type Deliverer interface {
	Deliver(ctx context.Context, c ledger.Change)
}

// Consumer streams change messages into a handler until ctx is done.
type Consumer interface {
	ConsumeChanges(ctx context.Context, handler amqp.Handler) error
}

// Config holds configuration for the change worker
type Config struct {
	// RefreshInterval is how often every source reloads from the store (default: 5m)
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{RefreshInterval: 5 * time.Minute}
}

// ChangeWorker delivers broker messages and periodic refresh ticks to the
// local notifier. The consumer is optional.
type ChangeWorker struct {
	deliverer Deliverer
	consumer  Consumer
	config    Config
	logger    *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewChangeWorker(deliverer Deliverer, consumer Consumer, config Config, logger *applog.Logger) *ChangeWorker {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &ChangeWorker{
		deliverer: deliverer,
		consumer:  consumer,
		config:    config,
		logger:    logger,
	}
}

// HandleMessage delivers one consumed change message.
func (w *ChangeWorker) HandleMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg == nil {
		return fmt.Errorf("nil change message")
	}
	w.logger.DebugContext(ctx, "Applying remote change",
		applog.FieldEntity, msg.Entity,
		applog.FieldEntityID, msg.ID)
	w.deliverer.Deliver(ctx, msg.Change())
	return nil
}

// Refresh asks every source to reload.
func (w *ChangeWorker) Refresh(ctx context.Context) {
	w.deliverer.Deliver(ctx, ledger.Change{Entity: ledger.EntityRefresh})
}

// Start begins the processing loop. Returns an error if already running.
func (w *ChangeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("change worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "Change worker started",
		"refresh_interval", w.config.RefreshInterval,
		"consuming", w.consumer != nil)
	return nil
}

// Stop gracefully stops the worker and waits for completion.
func (w *ChangeWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Change worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Change worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ChangeWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Run starts the worker and blocks until ctx is done.
func (w *ChangeWorker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop(context.Background())
}

func (w *ChangeWorker) runLoop(parent context.Context) {
	defer close(w.doneCh)

	ctx, cancel := context.WithCancel(parent)
	var consuming sync.WaitGroup
	defer func() {
		cancel()
		consuming.Wait()
	}()

	if w.consumer != nil {
		consuming.Add(1)
		go func() {
			defer consuming.Done()
			err := w.consumer.ConsumeChanges(ctx, w.HandleMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "Change consumption failed", applog.FieldError, err)
			}
		}()
	}

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}
