package async

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled resolves a future whose caller gave up on it.
var ErrCancelled = errors.New("operation cancelled")

// Future is a single-resolution result slot.
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	value  T
	err    error
	cancel context.CancelFunc
}

// New returns an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already holding value and err.
func Resolved[T any](value T, err error) *Future[T] {
	f := New[T]()
	f.Resolve(value, err)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	var zero T
	return Resolved(zero, err)
}

// Go runs fn in a goroutine under a cancellable child of ctx and resolves the
// future with its result. Cancel stops fn's context and resolves the future
// with ErrCancelled if fn has not finished yet.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := New[T]()
	f.cancel = cancel
	go func() {
		defer cancel()
		v, err := fn(ctx)
		f.Resolve(v, err)
	}()
	return f
}

// Resolve stores the outcome. It reports false if the future was already resolved.
func (f *Future[T]) Resolve(value T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Cancel resolves the future with ErrCancelled and stops the producing
// goroutine's context. It is a no-op on a resolved future.
func (f *Future[T]) Cancel() {
	var zero T
	f.Resolve(zero, ErrCancelled)
	if f.cancel != nil {
		f.cancel()
	}
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the outcome without blocking; ok is false while unresolved.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Await blocks until the future resolves or ctx ends. Giving up through ctx
// does not resolve the future; call Cancel for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
