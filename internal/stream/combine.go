package stream

import (
	"context"
	"sync"
)

// Latest remembers the most recent value received from one input.
type Latest[T any] struct {
	Value T
	Ok    bool
}

// Store records v as the latest value.
func (l *Latest[T]) Store(v T) {
	l.Value = v
	l.Ok = true
}

// CombineLatest emits f(a, b) every time either input emits, using the latest
// value of the other. Nothing is emitted until both inputs have emitted once.
// The returned Observable is fed by a goroutine that stops when ctx is done.
func CombineLatest[A, B, R any](ctx context.Context, a Source[A], b Source[B], f func(A, B) R) *State[R] {
	out := NewEmptyState[R]()
	ca, cb := a.Subscribe(ctx), b.Subscribe(ctx)

	go func() {
		var la Latest[A]
		var lb Latest[B]
		for ca != nil || cb != nil {
			select {
			case v, ok := <-ca:
				if !ok {
					ca = nil
					continue
				}
				la.Store(v)
			case v, ok := <-cb:
				if !ok {
					cb = nil
					continue
				}
				lb.Store(v)
			}
			if la.Ok && lb.Ok {
				out.Set(f(la.Value, lb.Value))
			}
		}
	}()

	return out
}

// Ticks turns every emission of src into an empty signal.
func Ticks[T any](ctx context.Context, src Source[T]) <-chan struct{} {
	in := src.Subscribe(ctx)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range in {
			select {
			case out <- struct{}{}:
			default:
				// a signal is already pending
			}
		}
	}()
	return out
}

// Merge fans signals from every input into one channel. Pending signals
// collapse into one. The output closes after all inputs are closed.
func Merge(ctx context.Context, inputs ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func(in <-chan struct{}) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
