package services

import (
	"context"

	"expensemanager/internal/ledger"
	applog "expensemanager/internal/log"
	"expensemanager/internal/stream"
)

// ChangePublisher forwards ledger changes to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, c ledger.Change) error
}

// Notifier is the in-process hub of ledger change notifications.
type Notifier struct {
	changes   *stream.State[ledger.Change]
	publisher ChangePublisher
	log       *applog.StructuredLogger
}

func NewNotifier(logger *applog.Logger) *Notifier {
	if logger == nil {
		logger = applog.Default(applog.ComponentServices)
	}
	return &Notifier{
		changes: stream.NewEmptyState[ledger.Change](),
		log:     applog.NewStructuredLogger(logger),
	}
}

// SetPublisher makes Notify also forward every change. Call before the
// notifier is shared.
func (n *Notifier) SetPublisher(p ChangePublisher) {
	n.publisher = p
}

// Notify delivers c locally and publishes it. A failed publish is logged;
// local observers are updated regardless.
func (n *Notifier) Notify(ctx context.Context, c ledger.Change) {
	n.Deliver(ctx, c)
	if n.publisher == nil {
		return
	}
	if err := n.publisher.PublishChange(ctx, c); err != nil {
		n.log.LogError(ctx, "Failed to publish ledger change", err,
			applog.ComponentServices, applog.OpNotify,
			applog.NewFields().WithEntity(c.Entity, c.ID))
	}
}

// Deliver updates local observers only. Consumers of remote changes use it
// so a change is never published back.
func (n *Notifier) Deliver(ctx context.Context, c ledger.Change) {
	n.log.LogChange(ctx, c.Entity, c.ID)
	n.changes.Set(c)
}

// Changes is the stream of local changes. A new subscriber first receives
// the most recent change, if any.
func (n *Notifier) Changes() stream.Observable[ledger.Change] {
	return n.changes
}

// Watch signals whenever a change affecting any of entities arrives.
// Pending signals collapse into one. The channel closes when ctx is done.
func (n *Notifier) Watch(ctx context.Context, entities ...string) <-chan struct{} {
	in := n.changes.Subscribe(ctx)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for c := range in {
			if !affectsAny(c, entities) {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out
}

func affectsAny(c ledger.Change, entities []string) bool {
	for _, e := range entities {
		if c.Affects(e) {
			return true
		}
	}
	return false
}
