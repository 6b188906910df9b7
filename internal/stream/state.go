// Package stream provides the observable building blocks used to fan
// independent data sources into derived state.
//
// Delivery is conflated: a subscriber that falls behind only ever receives the
// most recent value, and a publisher never blocks on a slow subscriber.
package stream

import (
	"context"
	"sync"
)

// Source emits values to each subscriber until its context is done, then
// closes the subscriber's channel.
type Source[T any] interface {
	Subscribe(ctx context.Context) <-chan T
}

// Observable is a Source that also exposes its current value.
type Observable[T any] interface {
	Source[T]
	Value() T
}

// State holds the latest value of T and publishes every change.
type State[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	subs  map[chan T]struct{}
}

var (
	_ Observable[int] = (*State[int])(nil)
)

// NewState creates a State holding initial. Subscribers receive it immediately.
func NewState[T any](initial T) *State[T] {
	return &State[T]{value: initial, set: true, subs: make(map[chan T]struct{})}
}

// NewEmptyState creates a State with no value yet. Subscribers receive
// nothing until the first Set.
func NewEmptyState[T any]() *State[T] {
	return &State[T]{subs: make(map[chan T]struct{})}
}

// Value returns the current value, or the zero value if none was set.
func (s *State[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Has reports whether a value has been set.
func (s *State[T]) Has() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Set replaces the value and publishes it to every subscriber.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.set = true
	for ch := range s.subs {
		offer(ch, v)
	}
}

// Update applies fn to the current value under the lock and publishes the result.
func (s *State[T]) Update(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	s.set = true
	for ch := range s.subs {
		offer(ch, s.value)
	}
}

// Subscribe returns a channel receiving the current value (if any) and every
// later one. The channel is closed once ctx is done.
func (s *State[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	s.mu.Lock()
	if s.set {
		ch <- s.value
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of live subscriptions.
func (s *State[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// offer replaces whatever is buffered in ch with v. Callers hold the State
// lock, so they are the only writer and the final send cannot block.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
