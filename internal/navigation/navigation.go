// Package navigation turns user commands into destination requests that an
// external router consumes.
package navigation

import (
	"context"
	"net/url"
	"sync"
)

// Screen identifies a destination of the app.
type Screen string

const (
	Back              Screen = "back"
	Settings          Screen = "settings"
	AccountList       Screen = "account_list"
	AccountCreate     Screen = "account/create"
	AccountReorder    Screen = "account/reorder"
	BudgetList        Screen = "budget_list"
	BudgetDetails     Screen = "budget/details"
	TransactionList   Screen = "transaction_list"
	TransactionCreate Screen = "transaction/create"
)

// idParams names the query parameter carrying the optional id per screen.
var idParams = map[Screen]string{
	AccountCreate:     "accountId",
	BudgetDetails:     "budgetId",
	TransactionCreate: "transactionId",
}

// Destination is one navigation request. An empty ID on a create/details
// screen means "create"; a non-empty one means "edit".
type Destination struct {
	Screen Screen `json:"screen"`
	ID     string `json:"id,omitempty"`
}

// To builds a destination without an id.
func To(screen Screen) Destination {
	return Destination{Screen: screen}
}

// WithID builds a destination carrying an optional id.
func WithID(screen Screen, id string) Destination {
	return Destination{Screen: screen, ID: id}
}

// Route renders the router path, e.g. "account/create?accountId=42".
func (d Destination) Route() string {
	param, ok := idParams[d.Screen]
	if !ok || d.ID == "" {
		return string(d.Screen)
	}
	return string(d.Screen) + "?" + url.Values{param: {d.ID}}.Encode()
}

// Navigator accepts fire-and-forget navigation requests.
type Navigator interface {
	Navigate(d Destination)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Destination)

func (f NavigatorFunc) Navigate(d Destination) { f(d) }

// Queue is an unbounded FIFO of navigation requests. Navigate never blocks
// and never drops; duplicates are kept.
type Queue struct {
	mu      sync.Mutex
	pending []Destination
	ready   chan struct{}
}

var _ Navigator = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Navigate enqueues d.
func (q *Queue) Navigate(d Destination) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Next blocks until a request is available or ctx is done.
func (q *Queue) Next(ctx context.Context) (Destination, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			d := q.pending[0]
			q.pending = q.pending[1:]
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Destination{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain returns every pending request in order and clears the queue.
func (q *Queue) Drain() []Destination {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	if out == nil {
		out = []Destination{}
	}
	return out
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
